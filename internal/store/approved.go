package store

import (
	"context"
	"fmt"

	"github.com/roach88/canvaspipe/internal/ir"
)

const approvedColumns = `id, store, project_id, segment_id, pain_id, ordinal, payload, top, source_draft_id, source_version, approved_at`

// ReplaceApproved swaps a scope's approved set for records in one
// transaction: the previous records are deleted and the new ones inserted.
// Any failure rolls back and leaves the previous set intact.
//
// Returns the number of records that were replaced.
func (s *Store) ReplaceApproved(ctx context.Context, store string, scope ir.Scope, records []ir.ApprovedRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("replace approved: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	args := append([]any{store}, scopeArgs(scope)...)
	res, err := tx.ExecContext(ctx, `
		DELETE FROM approved_records
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
	`, args...)
	if err != nil {
		return 0, classify("replace approved: clear scope", err)
	}
	replaced, err := res.RowsAffected()
	if err != nil {
		return 0, classify("replace approved: rows affected", err)
	}

	for _, rec := range records {
		payload, err := marshalPayload(rec.Payload)
		if err != nil {
			return 0, fmt.Errorf("replace approved: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO approved_records
			(`+approvedColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID, store, scope.ProjectID, scope.SegmentID, scope.PainID,
			rec.Ordinal, payload, boolToInt(rec.Top),
			rec.SourceDraftID, rec.SourceVersion, formatTime(rec.ApprovedAt),
		)
		if err != nil {
			return 0, classify("replace approved: insert record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("replace approved: commit", err)
	}
	return int(replaced), nil
}

// ApprovedExists reports whether a scope has at least one approved record.
// Always a fresh query; approval state is never cached.
func (s *Store) ApprovedExists(ctx context.Context, store string, scope ir.Scope) (bool, error) {
	args := append([]any{store}, scopeArgs(scope)...)
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM approved_records
			WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
		)
	`, args...).Scan(&exists)
	if err != nil {
		return false, classify("approved exists", err)
	}
	return exists, nil
}

// ListApproved returns a scope's approved records ordered by ordinal ASC,
// id ASC. Returns an empty slice (not nil) if none exist.
func (s *Store) ListApproved(ctx context.Context, store string, scope ir.Scope) ([]ir.ApprovedRecord, error) {
	args := append([]any{store}, scopeArgs(scope)...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+approvedColumns+`
		FROM approved_records
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
		ORDER BY ordinal ASC, id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, classify("query approved", err)
	}
	defer rows.Close()

	out := []ir.ApprovedRecord{}
	for rows.Next() {
		rec, err := scanApproved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate approved", err)
	}
	return out, nil
}

// DeleteApproved removes a scope's approved records and returns how many
// were deleted.
func (s *Store) DeleteApproved(ctx context.Context, store string, scope ir.Scope) (int, error) {
	args := append([]any{store}, scopeArgs(scope)...)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM approved_records
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
	`, args...)
	if err != nil {
		return 0, classify("delete approved", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete approved: rows affected", err)
	}
	return int(n), nil
}

func scanApproved(sc scanner) (ir.ApprovedRecord, error) {
	var (
		rec        ir.ApprovedRecord
		storeName  string
		payload    string
		top        int
		approvedAt string
	)
	err := sc.Scan(
		&rec.ID, &storeName,
		&rec.Scope.ProjectID, &rec.Scope.SegmentID, &rec.Scope.PainID,
		&rec.Ordinal, &payload, &top, &rec.SourceDraftID, &rec.SourceVersion, &approvedAt,
	)
	if err != nil {
		return ir.ApprovedRecord{}, classify("scan approved", err)
	}
	if rec.Payload, err = unmarshalPayload(payload); err != nil {
		return ir.ApprovedRecord{}, err
	}
	rec.Top = top != 0
	if rec.ApprovedAt, err = parseTime(approvedAt); err != nil {
		return ir.ApprovedRecord{}, err
	}
	return rec, nil
}
