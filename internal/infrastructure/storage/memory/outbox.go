package memory

import (
	"context"
	"slices"

	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/events"
)

type eventRow struct {
	seq   int64
	event events.Event
}

type auditRow struct {
	seq   int64
	entry audit.Entry
}

// Outbox implements events.Publisher.
type Outbox struct{ s *Store }

var _ events.Publisher = (*Outbox)(nil)

func (o *Outbox) Publish(ctx context.Context, e events.Event) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	o.s.seq++
	seq := o.s.seq
	o.s.events = append(o.s.events, eventRow{seq: seq, event: e})
	o.s.onRollback(ctx, func() {
		o.s.events = slices.DeleteFunc(o.s.events, func(r eventRow) bool { return r.seq == seq })
	})
	return nil
}

// Events returns the published events, oldest first.
func (o *Outbox) Events() []events.Event {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	out := make([]events.Event, 0, len(o.s.events))
	for _, r := range o.s.events {
		out = append(out, r.event)
	}
	return out
}

// Types returns the published event types, oldest first.
func (o *Outbox) Types() []string {
	var out []string
	for _, e := range o.Events() {
		out = append(out, e.Type)
	}
	return out
}

// AuditLog implements audit.Recorder.
type AuditLog struct{ s *Store }

var _ audit.Recorder = (*AuditLog)(nil)

func (a *AuditLog) Record(ctx context.Context, e audit.Entry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	a.s.seq++
	seq := a.s.seq
	a.s.audit = append(a.s.audit, auditRow{seq: seq, entry: e})
	a.s.onRollback(ctx, func() {
		a.s.audit = slices.DeleteFunc(a.s.audit, func(r auditRow) bool { return r.seq == seq })
	})
	return nil
}

// Entries returns the recorded entries, oldest first.
func (a *AuditLog) Entries() []audit.Entry {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	out := make([]audit.Entry, 0, len(a.s.audit))
	for _, r := range a.s.audit {
		out = append(out, r.entry)
	}
	return out
}
