package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/ledger"
)

// JournalRepo implements ledger.Repository. (reference, kind) is unique.
type JournalRepo struct{ s *Store }

var _ ledger.Repository = (*JournalRepo)(nil)

func copyBatch(b ledger.Batch) ledger.Batch {
	b.Entries = append([]ledger.Entry(nil), b.Entries...)
	return b
}

func (r *JournalRepo) FindBatch(_ context.Context, reference string, kind ledger.BatchKind) (ledger.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.batches[batchKey{reference, kind}]
	if !ok {
		return ledger.Batch{}, apperror.NewNotFound("journal batch", reference+"/"+string(kind))
	}
	return copyBatch(b), nil
}

func (r *JournalRepo) InsertBatch(ctx context.Context, b *ledger.Batch) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := batchKey{b.Reference, b.Kind}
	if _, ok := r.s.batches[key]; ok {
		return false, nil
	}
	r.s.batches[key] = copyBatch(*b)
	r.s.batchOrder = append(r.s.batchOrder, key)
	r.s.onRollback(ctx, func() {
		delete(r.s.batches, key)
		r.s.batchOrder = slices.DeleteFunc(r.s.batchOrder, func(k batchKey) bool { return k == key })
	})
	return true, nil
}

func (r *JournalRepo) EntriesByReference(_ context.Context, reference string) ([]ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []ledger.Entry
	for _, key := range r.s.batchOrder {
		if key.reference == reference {
			out = append(out, r.s.batches[key].Entries...)
		}
	}
	return out, nil
}

func (r *JournalRepo) BatchTotals(_ context.Context, from, to time.Time) ([]ledger.BatchTotal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []ledger.BatchTotal
	for _, key := range r.s.batchOrder {
		b := r.s.batches[key]
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		debit, credit := ledger.Sums(b.Entries)
		out = append(out, ledger.BatchTotal{
			BatchID:   b.ID,
			Reference: b.Reference,
			Kind:      b.Kind,
			Date:      b.Date,
			Lines:     len(b.Entries),
			Debit:     debit,
			Credit:    credit,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// CorruptBatch replaces the entries of a stored batch. Tests use it to
// simulate a damaged ledger.
func (r *JournalRepo) CorruptBatch(reference string, kind ledger.BatchKind, entries []ledger.Entry) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := batchKey{reference, kind}
	b := r.s.batches[key]
	b.Entries = entries
	r.s.batches[key] = b
}

// Batches returns every stored batch in insertion order.
func (r *JournalRepo) Batches() []ledger.Batch {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]ledger.Batch, 0, len(r.s.batchOrder))
	for _, key := range r.s.batchOrder {
		out = append(out, copyBatch(r.s.batches[key]))
	}
	return out
}
