package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"

	"tradeledger/internal/core/apperror"
)

const idempotencyTable = "sys_idempotency"

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// staleAfter is how long a pending key may stay unanswered before another
// request may take it over.
const staleAfter = time.Minute

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  *int              `db:"response_status"`
	ContentType *string           `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored HTTP response.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore keeps HTTP idempotency keys, so that a retried payment
// request is answered from the stored response instead of recorded twice.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// AcquireKey claims key for a request. It returns
//   - (nil, nil) when the caller now owns the key,
//   - (replay, nil) when the request already completed,
//   - (nil, err) when the key is in use or belongs to another request.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()
	q := s.txManager.GetQuerier(ctx)

	var (
		rec      IdempotencyRecord
		inserted bool
	)
	// xmax is zero only on a freshly inserted row.
	err := q.QueryRow(ctx, `
		INSERT INTO `+idempotencyTable+` (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET expires_at = GREATEST(`+idempotencyTable+`.expires_at, EXCLUDED.expires_at)
		RETURNING (xmax = 0), user_id, operation, status, request_hash, response, response_status, response_content_type, created_at, updated_at
	`, key, userID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl)).Scan(
		&rec.UserID, &rec.Operation, &rec.Status, &rec.RequestHash,
		&rec.Response, &rec.StatusCode, &rec.ContentType, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	if inserted {
		return nil, nil
	}
	if rec.UserID != userID || rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("operation", rec.Operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return replayOf(rec), nil
	default:
		if now.Sub(rec.UpdatedAt) < staleAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		if err := s.touch(ctx, key, now); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func (s *IdempotencyStore) touch(ctx context.Context, key string, now time.Time) error {
	sql, args, err := builder().
		Update(idempotencyTable).
		Set("updated_at", now).
		Where(squirrel.Eq{"idempotency_key": key, "status": IdempotencyStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reclaim: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("reclaim stale key: %w", err)
	}
	return nil
}

func replayOf(rec IdempotencyRecord) *IdempotencyReplay {
	r := &IdempotencyReplay{StatusCode: http.StatusOK, ContentType: "application/json", Body: rec.Response}
	if rec.StatusCode != nil && *rec.StatusCode != 0 {
		r.StatusCode = *rec.StatusCode
	}
	if rec.ContentType != nil && *rec.ContentType != "" {
		r.ContentType = *rec.ContentType
	}
	return r
}

// CompleteKey stores the response of the request owning key. Responses
// with a 5xx status release the key instead, so the client may retry.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	if statusCode >= http.StatusInternalServerError {
		return s.release(ctx, key)
	}

	status := IdempotencyStatusSuccess
	if statusCode >= http.StatusBadRequest {
		status = IdempotencyStatusFailed
	}
	sql, args, err := builder().
		Update(idempotencyTable).
		Set("status", status).
		Set("response", body).
		Set("response_status", statusCode).
		Set("response_content_type", contentType).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete: %w", err)
	}
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

func (s *IdempotencyStore) release(ctx context.Context, key string) error {
	sql, args, err := builder().Delete(idempotencyTable).Where(squirrel.Eq{"idempotency_key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build release: %w", err)
	}
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	sql, args, err := builder().
		Delete(idempotencyTable).
		Where(squirrel.Lt{"expires_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
