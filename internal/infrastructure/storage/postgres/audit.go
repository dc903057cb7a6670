package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/audit"
)

const auditTable = "sys_audit"

// CompressionAlgo names the encoding of AuditRow.ChangesCompressed.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditRow is a stored audit entry.
type AuditRow struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	EntityKey         string          `db:"entity_key"`
	Action            audit.Action    `db:"action"`
	UserID            string          `db:"user_id"`
	RequestID         string          `db:"request_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

var auditColumns = ExtractDBColumns[AuditRow]()

// AuditLog implements audit.Recorder on sys_audit. Change sets larger than
// the threshold are stored zstd-compressed.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Recorder = (*AuditLog)(nil)

// NewAuditLog creates an audit log.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// Record stores entry with the acting user and request id of ctx.
func (l *AuditLog) Record(ctx context.Context, entry audit.Entry) error {
	row, err := l.encode(entry)
	if err != nil {
		return err
	}
	row.UserID = appctx.GetUserID(ctx)
	row.RequestID = appctx.GetRequestID(ctx)

	sql, args, err := builder().Insert(auditTable).SetMap(StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (l *AuditLog) encode(entry audit.Entry) (AuditRow, error) {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return AuditRow{}, fmt.Errorf("marshal changes: %w", err)
	}

	row := AuditRow{
		ID:              id.New(),
		EntityType:      entry.EntityType,
		EntityID:        entry.EntityID,
		EntityKey:       entry.EntityKey,
		Action:          entry.Action,
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}
	if len(changes) > l.compressThreshold {
		row.ChangesCompressed = l.encoder.EncodeAll(changes, nil)
		row.Changes = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row, nil
}

func (l *AuditLog) decode(row *AuditRow) error {
	if row.CompressionAlgo != CompressionZstd || len(row.ChangesCompressed) == 0 {
		return nil
	}
	plain, err := l.decoder.DecodeAll(row.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	row.Changes = plain
	row.ChangesCompressed = nil
	return nil
}

// History returns the audit trail of one entity, newest first.
func (l *AuditLog) History(ctx context.Context, entityType, entityKey string, limit int) ([]AuditRow, error) {
	sql, args, err := builder().
		Select(auditColumns...).
		From(auditTable).
		Where(squirrel.Eq{"entity_type": entityType, "entity_key": entityKey}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []AuditRow
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range rows {
		if err := l.decode(&rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
