package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "tally/internal/core/context"
	"tally/internal/core/id"
	"tally/internal/domain/posting"
)

const auditTable = "sys_audit_log"

// auditRow is the persisted shape of one posting snapshot.
type auditRow struct {
	ID              id.ID     `db:"id"`
	CompanyID       string    `db:"company_id"`
	DocumentID      id.ID     `db:"document_id"`
	Action          string    `db:"action"`
	UserID          string    `db:"user_id"`
	Snapshot        []byte    `db:"snapshot"`
	CompressionAlgo string    `db:"compression_algo"`
	CreatedAt       time.Time `db:"created_at"`
}

// AuditLog stores posting snapshots append-only, zstd-compressed above a
// size threshold. Implements posting.AuditRecorder.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ posting.AuditRecorder = (*AuditLog)(nil)

// NewAuditLog creates an audit log service.
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

// encodeSnapshot marshals a record and compresses it when it is large
// enough to be worth the CPU.
func (a *AuditLog) encodeSnapshot(rec posting.AuditRecord) ([]byte, string, error) {
	snapshot, err := json.Marshal(rec)
	if err != nil {
		return nil, "", fmt.Errorf("marshal audit snapshot: %w", err)
	}
	if len(snapshot) > a.compressThreshold {
		return a.encoder.EncodeAll(snapshot, nil), "zstd", nil
	}
	return snapshot, "none", nil
}

// decodeSnapshot reverses encodeSnapshot.
func (a *AuditLog) decodeSnapshot(payload []byte, algo string) (posting.AuditRecord, error) {
	var err error
	if algo == "zstd" {
		payload, err = a.decoder.DecodeAll(payload, nil)
		if err != nil {
			return posting.AuditRecord{}, fmt.Errorf("decompress audit snapshot: %w", err)
		}
	}
	var rec posting.AuditRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return posting.AuditRecord{}, fmt.Errorf("unmarshal audit snapshot: %w", err)
	}
	return rec, nil
}

// RecordPosting appends one snapshot, inside the posting transaction when
// one is in context.
func (a *AuditLog) RecordPosting(ctx context.Context, rec posting.AuditRecord) error {
	snapshot, algo, err := a.encodeSnapshot(rec)
	if err != nil {
		return err
	}

	createdAt := rec.RecordedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	querier := a.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, `
		INSERT INTO `+auditTable+` (
			id, company_id, document_id, action, user_id,
			snapshot, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id.New(), appctx.GetCompanyID(ctx), rec.DocumentID, rec.Action,
		appctx.GetUserID(ctx), snapshot, algo, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit snapshot: %w", err)
	}
	return nil
}

// ByDocument reconstructs every snapshot recorded for a document, oldest
// first. This is the read path for "what exactly did this posting do".
func (a *AuditLog) ByDocument(ctx context.Context, documentID id.ID) ([]posting.AuditRecord, error) {
	var rows []auditRow
	querier := a.txManager.GetQuerier(ctx)
	err := pgxscan.Select(ctx, querier, &rows, `
		SELECT id, company_id, document_id, action, user_id,
		       snapshot, compression_algo, created_at
		FROM `+auditTable+`
		WHERE company_id = $1 AND document_id = $2
		ORDER BY created_at`,
		appctx.GetCompanyID(ctx), documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit snapshots: %w", err)
	}

	records := make([]posting.AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := a.decodeSnapshot(row.Snapshot, row.CompressionAlgo)
		if err != nil {
			return nil, fmt.Errorf("audit snapshot %s: %w", row.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
