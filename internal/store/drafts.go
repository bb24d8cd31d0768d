package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// NewDraft is one generated row handed to InsertDrafts.
// Ordinal 0 asks the store to assign the next free slot.
type NewDraft struct {
	ID      string
	Ordinal int64
	Payload ir.IRObject
}

const draftColumns = `id, store, project_id, segment_id, pain_id, ordinal, payload, top, version, created_at, updated_at`

// ListDrafts returns a scope's draft rows ordered by ordinal ASC, id ASC.
// Returns an empty slice (not nil) if the scope has no rows.
//
// Rows come back without Stage set; the store only knows store names.
func (s *Store) ListDrafts(ctx context.Context, store string, scope ir.Scope) ([]ir.DraftRow, error) {
	return listDrafts(ctx, s.db, store, scope)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listDrafts(ctx context.Context, q querier, store string, scope ir.Scope) ([]ir.DraftRow, error) {
	args := append([]any{store}, scopeArgs(scope)...)
	rows, err := q.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM draft_rows
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
		ORDER BY ordinal ASC, id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, classify("query drafts", err)
	}
	defer rows.Close()

	out := []ir.DraftRow{}
	for rows.Next() {
		row, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate drafts", err)
	}
	return out, nil
}

// GetDraft returns one draft row. A missing row is ir.CodeNotFound.
func (s *Store) GetDraft(ctx context.Context, store, id string) (ir.DraftRow, error) {
	return getDraft(ctx, s.db, store, id)
}

func getDraft(ctx context.Context, q querier, store, id string) (ir.DraftRow, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM draft_rows
		WHERE store = ? AND id = ?
	`, store, id)
	draft, err := scanDraft(row)
	if isNoRows(err) {
		return ir.DraftRow{}, ir.NotFound("draft row %s not found in %s", id, store)
	}
	if err != nil {
		return ir.DraftRow{}, err
	}
	return draft, nil
}

// InsertDrafts writes one generation pass for a scope in a single
// transaction. Every written row gets version max(scope version)+1.
//
// InsertReplace deletes the scope's rows first. InsertAugment keeps them:
// a new row whose ordinal collides with an existing slot refreshes that
// row's payload in place (id and top flag kept), and rows without an
// ordinal are appended after the current maximum.
//
// Returns the written rows in ordinal order.
func (s *Store) InsertDrafts(ctx context.Context, store string, scope ir.Scope, mode registry.InsertMode, rows []NewDraft) ([]ir.DraftRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("insert drafts: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	args := append([]any{store}, scopeArgs(scope)...)
	var maxVersion, maxOrdinal int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0), COALESCE(MAX(ordinal), 0)
		FROM draft_rows
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
	`, args...).Scan(&maxVersion, &maxOrdinal)
	if err != nil {
		return nil, classify("insert drafts: read scope version", err)
	}
	version := maxVersion + 1

	if mode == registry.InsertReplace {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM draft_rows
			WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
		`, args...); err != nil {
			return nil, classify("insert drafts: clear scope", err)
		}
		maxOrdinal = 0
	}

	ordinals, err := assignOrdinals(rows, maxOrdinal)
	if err != nil {
		return nil, err
	}

	now := formatTime(s.timestamp())
	written := make([]string, 0, len(rows))
	for i, nd := range rows {
		payload, err := marshalPayload(nd.Payload)
		if err != nil {
			return nil, fmt.Errorf("insert drafts: %w", err)
		}
		ordinal := ordinals[i]

		// The slot index makes the second pass over an ordinal an update.
		// RETURNING reports whichever id now owns the slot.
		var id string
		err = tx.QueryRowContext(ctx, `
			INSERT INTO draft_rows
			(id, store, project_id, segment_id, pain_id, ordinal, payload, top, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(store, project_id, segment_id, pain_id, ordinal) DO UPDATE SET
				payload = excluded.payload,
				version = excluded.version,
				updated_at = excluded.updated_at
			RETURNING id
		`,
			nd.ID, store, scope.ProjectID, scope.SegmentID, scope.PainID,
			ordinal, payload, version, now, now,
		).Scan(&id)
		if err != nil {
			return nil, classify("insert drafts: write row", err)
		}
		if !slices.Contains(written, id) {
			written = append(written, id)
		}
	}

	out := make([]ir.DraftRow, 0, len(written))
	for _, id := range written {
		row, err := getDraft(ctx, tx, store, id)
		if err != nil {
			return nil, fmt.Errorf("insert drafts: %w", err)
		}
		out = append(out, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("insert drafts: commit", err)
	}
	sortDrafts(out)
	return out, nil
}

// assignOrdinals gives every row of a batch its slot. Explicit ordinals are
// kept and reserved first; rows without one take the next free ordinal after
// both after and any explicit ordinal that precedes them. Two rows of one
// batch never share a slot.
func assignOrdinals(rows []NewDraft, after int64) ([]int64, error) {
	reserved := make(map[int64]int, len(rows))
	for i, nd := range rows {
		if nd.Ordinal <= 0 {
			continue
		}
		if j, dup := reserved[nd.Ordinal]; dup {
			return nil, ir.Validation(fmt.Sprintf("insert drafts: rows %d and %d share ordinal %d", j, i, nd.Ordinal))
		}
		reserved[nd.Ordinal] = i
	}

	out := make([]int64, len(rows))
	next := after
	for i, nd := range rows {
		if nd.Ordinal > 0 {
			out[i] = nd.Ordinal
			next = max(next, nd.Ordinal)
			continue
		}
		for {
			next++
			if _, taken := reserved[next]; !taken {
				break
			}
		}
		out[i] = next
	}
	return out, nil
}

// PatchDraft shallow-merges partial into a row's payload. Keys absent from
// partial are untouched; the version is left alone. When ifVersion is
// non-nil the row must still be at that version or ir.CodeConflict is
// returned.
func (s *Store) PatchDraft(ctx context.Context, store, id string, partial ir.IRObject, ifVersion *int64) (ir.DraftRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.DraftRow{}, classify("patch draft: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	row, err := getDraft(ctx, tx, store, id)
	if err != nil {
		return ir.DraftRow{}, err
	}
	if ifVersion != nil && row.Version != *ifVersion {
		return ir.DraftRow{}, ir.Conflict(id, *ifVersion, row.Version)
	}

	merged := row.Payload.Clone()
	if merged == nil {
		merged = ir.IRObject{}
	}
	for k, v := range partial {
		merged[k] = ir.CloneValue(v)
	}
	payload, err := marshalPayload(merged)
	if err != nil {
		return ir.DraftRow{}, fmt.Errorf("patch draft: %w", err)
	}

	now := s.timestamp()
	if _, err := tx.ExecContext(ctx, `
		UPDATE draft_rows SET payload = ?, updated_at = ?
		WHERE store = ? AND id = ?
	`, payload, formatTime(now), store, id); err != nil {
		return ir.DraftRow{}, classify("patch draft: update", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.DraftRow{}, classify("patch draft: commit", err)
	}

	row.Payload = merged
	row.UpdatedAt = now
	return row, nil
}

// SetDraftTop sets a row's ranking flag.
func (s *Store) SetDraftTop(ctx context.Context, store, id string, top bool) (ir.DraftRow, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE draft_rows SET top = ?, updated_at = ?
		WHERE store = ? AND id = ?
	`, boolToInt(top), formatTime(s.timestamp()), store, id)
	if err != nil {
		return ir.DraftRow{}, classify("set top", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.DraftRow{}, classify("set top: rows affected", err)
	}
	if n == 0 {
		return ir.DraftRow{}, ir.NotFound("draft row %s not found in %s", id, store)
	}
	return s.GetDraft(ctx, store, id)
}

// DeleteDraft removes a row. It reports whether a row was deleted; deleting
// an absent row is not an error.
func (s *Store) DeleteDraft(ctx context.Context, store, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM draft_rows WHERE store = ? AND id = ?`, store, id)
	if err != nil {
		return false, classify("delete draft", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete draft: rows affected", err)
	}
	return n > 0, nil
}

// CountDrafts returns the number of rows in a scope.
func (s *Store) CountDrafts(ctx context.Context, store string, scope ir.Scope) (int, error) {
	args := append([]any{store}, scopeArgs(scope)...)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM draft_rows
		WHERE store = ? AND project_id = ? AND segment_id = ? AND pain_id = ?
	`, args...).Scan(&n)
	if err != nil {
		return 0, classify("count drafts", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(sc scanner) (ir.DraftRow, error) {
	var (
		row                  ir.DraftRow
		storeName            string
		payload              string
		top                  int
		createdAt, updatedAt string
	)
	err := sc.Scan(
		&row.ID, &storeName,
		&row.Scope.ProjectID, &row.Scope.SegmentID, &row.Scope.PainID,
		&row.Ordinal, &payload, &top, &row.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return ir.DraftRow{}, err
		}
		return ir.DraftRow{}, classify("scan draft", err)
	}
	if row.Payload, err = unmarshalPayload(payload); err != nil {
		return ir.DraftRow{}, err
	}
	row.Top = top != 0
	if row.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.DraftRow{}, err
	}
	if row.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.DraftRow{}, err
	}
	return row, nil
}

func sortDrafts(rows []ir.DraftRow) {
	slices.SortFunc(rows, func(a, b ir.DraftRow) int {
		if c := cmp.Compare(a.Ordinal, b.Ordinal); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
