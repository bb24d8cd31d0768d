// Package drafts is the stage-aware view over the draft tables: it resolves
// a stage to its draft store, narrows and validates scopes, assigns row ids
// and applies the delete error policy.
package drafts

import (
	"context"
	"log/slog"

	"github.com/roach88/canvaspipe/internal/ident"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/store"
)

// NewRow is one generated payload for BulkInsert. Ordinal 0 means "next
// free slot"; generators that number their own items pass the number.
type NewRow struct {
	Ordinal int64
	Payload ir.IRObject
}

// Adapter reads and writes draft rows by stage.
type Adapter struct {
	reg    *registry.Registry
	store  *store.Store
	ids    ident.Generator
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithIDGenerator sets the row id source. Defaults to UUIDv7.
func WithIDGenerator(g ident.Generator) Option {
	return func(a *Adapter) { a.ids = g }
}

// New creates an Adapter over st for the stages in reg.
func New(reg *registry.Registry, st *store.Store, opts ...Option) *Adapter {
	a := &Adapter{
		reg:    reg,
		store:  st,
		ids:    ident.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PatchOption refines a Patch call.
type PatchOption func(*patchConfig)

type patchConfig struct {
	ifVersion *int64
}

// IfVersion makes Patch fail with ir.CodeConflict unless the row is still at
// version v.
func IfVersion(v int64) PatchOption {
	return func(c *patchConfig) { c.ifVersion = &v }
}

// List returns the stage's rows for scope, ordered by ordinal then id.
func (a *Adapter) List(ctx context.Context, stage registry.StageID, scope ir.Scope) ([]ir.DraftRow, error) {
	st, scope, err := a.resolve(stage, scope)
	if err != nil {
		return nil, err
	}
	rows, err := a.store.ListDrafts(ctx, st.DraftStore, scope)
	if err != nil {
		return nil, ir.Locate(err, string(stage), scope)
	}
	return withStage(rows, stage), nil
}

// Get returns one row of a stage.
func (a *Adapter) Get(ctx context.Context, stage registry.StageID, id string) (ir.DraftRow, error) {
	st, err := a.reg.Stage(stage)
	if err != nil {
		return ir.DraftRow{}, err
	}
	row, err := a.store.GetDraft(ctx, st.DraftStore, id)
	if err != nil {
		return ir.DraftRow{}, ir.Locate(err, string(stage), ir.Scope{})
	}
	row.Stage = string(stage)
	return row, nil
}

// Patch merges partial into the row's payload key by key. Fields not named
// in partial are untouched and the version does not change.
func (a *Adapter) Patch(ctx context.Context, stage registry.StageID, id string, partial ir.IRObject, opts ...PatchOption) (ir.DraftRow, error) {
	st, err := a.reg.Stage(stage)
	if err != nil {
		return ir.DraftRow{}, err
	}
	if len(partial) == 0 {
		return ir.DraftRow{}, ir.Validation("patch requires at least one field")
	}

	var cfg patchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	row, err := a.store.PatchDraft(ctx, st.DraftStore, id, partial, cfg.ifVersion)
	if err != nil {
		return ir.DraftRow{}, ir.Locate(err, string(stage), ir.Scope{})
	}
	row.Stage = string(stage)

	a.logger.Debug("patched draft row",
		"stage", stage,
		"row_id", id,
		"fields", partial.SortedKeys(),
	)
	return row, nil
}

// SetTop flags or unflags a row for downstream processing.
func (a *Adapter) SetTop(ctx context.Context, stage registry.StageID, id string, top bool) (ir.DraftRow, error) {
	st, err := a.reg.Stage(stage)
	if err != nil {
		return ir.DraftRow{}, err
	}
	row, err := a.store.SetDraftTop(ctx, st.DraftStore, id, top)
	if err != nil {
		return ir.DraftRow{}, ir.Locate(err, string(stage), ir.Scope{})
	}
	row.Stage = string(stage)
	return row, nil
}

// Delete removes a row. Deleting an absent row succeeds. Any other store
// failure is logged and returned as ir.CodeTransientStore so the caller may
// retry or ignore it.
func (a *Adapter) Delete(ctx context.Context, stage registry.StageID, id string) error {
	st, err := a.reg.Stage(stage)
	if err != nil {
		return err
	}

	deleted, err := a.store.DeleteDraft(ctx, st.DraftStore, id)
	if err != nil {
		a.logger.Warn("delete draft row failed",
			"stage", stage,
			"row_id", id,
			"error", err,
		)
		if ir.IsTransient(err) {
			return err
		}
		return ir.Transient("delete draft row "+id, err)
	}
	if !deleted {
		a.logger.Debug("delete of absent draft row",
			"stage", stage,
			"row_id", id,
		)
	}
	return nil
}

// BulkInsert stores one generation pass for scope atomically. Every row
// written gets the same new version; the stage's insert mode decides
// whether the scope's existing rows are replaced or augmented.
func (a *Adapter) BulkInsert(ctx context.Context, stage registry.StageID, scope ir.Scope, rows []NewRow) ([]ir.DraftRow, error) {
	st, scope, err := a.resolve(stage, scope)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ir.Validation("bulk insert requires at least one row").WithStage(string(stage), scope)
	}

	batch := make([]store.NewDraft, len(rows))
	for i, r := range rows {
		batch[i] = store.NewDraft{
			ID:      a.ids.NewID(),
			Ordinal: r.Ordinal,
			Payload: r.Payload,
		}
	}

	written, err := a.store.InsertDrafts(ctx, st.DraftStore, scope, st.Insert, batch)
	if err != nil {
		return nil, ir.Locate(err, string(stage), scope)
	}

	version := int64(0)
	if len(written) > 0 {
		version = written[0].Version
	}
	a.logger.Info("inserted draft rows",
		"stage", stage,
		"scope", scope.Key(),
		"rows", len(written),
		"version", version,
		"mode", st.Insert,
	)
	return withStage(written, stage), nil
}

// Count returns the number of rows a stage holds for scope.
func (a *Adapter) Count(ctx context.Context, stage registry.StageID, scope ir.Scope) (int, error) {
	st, scope, err := a.resolve(stage, scope)
	if err != nil {
		return 0, err
	}
	n, err := a.store.CountDrafts(ctx, st.DraftStore, scope)
	if err != nil {
		return 0, ir.Locate(err, string(stage), scope)
	}
	return n, nil
}

// resolve looks up the stage and narrows scope to its shape.
func (a *Adapter) resolve(stage registry.StageID, scope ir.Scope) (registry.Stage, ir.Scope, error) {
	st, err := a.reg.Stage(stage)
	if err != nil {
		return registry.Stage{}, scope, err
	}
	scope = scope.Narrow(st.Shape)
	if err := scope.Validate(st.Shape); err != nil {
		return registry.Stage{}, scope, ir.Locate(err, string(stage), scope)
	}
	return st, scope, nil
}

func withStage(rows []ir.DraftRow, stage registry.StageID) []ir.DraftRow {
	for i := range rows {
		rows[i].Stage = string(stage)
	}
	return rows
}
