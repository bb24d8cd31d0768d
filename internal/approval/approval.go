// Package approval promotes draft rows to approved records.
//
// Approval of a (stage, scope) is all-or-nothing: the scope's previous
// approved set is replaced by copies of the chosen drafts in one store
// transaction. The Dependency Gate trusts "an approved record exists" as a
// boolean, so a scope is never left half approved.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/canvaspipe/internal/ident"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/store"
)

// Defaults for whole-transaction retries on transient store errors.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 50 * time.Millisecond
)

// Result describes a completed approval.
type Result struct {
	Stage    registry.StageID    `json:"stage"`
	Scope    ir.Scope            `json:"scope"`
	Records  []ir.ApprovedRecord `json:"records"`
	Replaced int                 `json:"replaced"` // approved records that existed before this call
	Attempts int                 `json:"attempts"`
}

// Engine approves, inspects and revokes approved sets.
type Engine struct {
	reg         *registry.Registry
	store       *store.Store
	ids         ident.Generator
	now         func() time.Time
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the approved record id source. Defaults to UUIDv7.
func WithIDGenerator(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the approved_at time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry bounds how often a transient failure is retried. Each retry
// reruns the whole transaction.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		e.maxAttempts = maxAttempts
		e.backoff = backoff
	}
}

// New creates an approval Engine.
func New(reg *registry.Registry, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		reg:         reg,
		store:       st,
		ids:         ident.UUIDv7Generator{},
		now:         time.Now,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApproveOption refines an Approve call.
type ApproveOption func(*approveConfig)

type approveConfig struct {
	atVersion *int64
}

// AtVersion requires every referenced row to still be at version v, so an
// approval acting on a stale listing fails with ir.CodeConflict instead of
// approving content the user never saw.
func AtVersion(v int64) ApproveOption {
	return func(c *approveConfig) { c.atVersion = &v }
}

// Approve copies the rows rowIDs of (stage, scope) into the approved store,
// replacing whatever was approved there before.
//
// Preconditions, checked against a fresh listing of the scope's drafts:
//   - rowIDs is non-empty and every id is a draft of this scope
//   - for ranking stages at least one referenced row is flagged top
func (e *Engine) Approve(ctx context.Context, stage registry.StageID, scope ir.Scope, rowIDs []string, opts ...ApproveOption) (Result, error) {
	st, scope, err := e.resolve(stage, scope)
	if err != nil {
		return Result{}, err
	}

	var cfg approveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ids := dedupe(rowIDs)
	if len(ids) == 0 {
		return Result{}, ir.Validation("select at least one row to approve").WithStage(string(stage), scope)
	}

	var result Result
	err = e.retry(ctx, stage, scope, func(attempt int) error {
		snapshot, err := e.store.ListDrafts(ctx, st.DraftStore, scope)
		if err != nil {
			return err
		}
		chosen, err := selectRows(st, scope, snapshot, ids, cfg)
		if err != nil {
			return err
		}

		approvedAt := e.now().UTC()
		records := make([]ir.ApprovedRecord, len(chosen))
		for i, row := range chosen {
			records[i] = ir.ApprovedRecord{
				ID:            e.ids.NewID(),
				Stage:         string(stage),
				Scope:         scope,
				Ordinal:       row.Ordinal,
				Payload:       row.Payload.Clone(),
				Top:           row.Top,
				SourceDraftID: row.ID,
				SourceVersion: row.Version,
				ApprovedAt:    approvedAt,
			}
		}

		replaced, err := e.store.ReplaceApproved(ctx, st.ApprovedStore, scope, records)
		if err != nil {
			return err
		}
		result = Result{
			Stage:    stage,
			Scope:    scope,
			Records:  records,
			Replaced: replaced,
			Attempts: attempt,
		}
		return nil
	})
	if err != nil {
		return Result{}, ir.Locate(err, string(stage), scope)
	}

	e.logger.Info("approved stage",
		"stage", stage,
		"scope", scope.Key(),
		"records", len(result.Records),
		"replaced", result.Replaced,
	)
	return result, nil
}

// IsApproved reports whether (stage, scope) has an approved set. Every call
// is a fresh query.
func (e *Engine) IsApproved(ctx context.Context, stage registry.StageID, scope ir.Scope) (bool, error) {
	st, scope, err := e.resolve(stage, scope)
	if err != nil {
		return false, err
	}
	ok, err := e.store.ApprovedExists(ctx, st.ApprovedStore, scope)
	if err != nil {
		return false, ir.Locate(err, string(stage), scope)
	}
	return ok, nil
}

// Approved returns the current approved records of (stage, scope).
func (e *Engine) Approved(ctx context.Context, stage registry.StageID, scope ir.Scope) ([]ir.ApprovedRecord, error) {
	st, scope, err := e.resolve(stage, scope)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.ListApproved(ctx, st.ApprovedStore, scope)
	if err != nil {
		return nil, ir.Locate(err, string(stage), scope)
	}
	for i := range recs {
		recs[i].Stage = string(stage)
	}
	return recs, nil
}

// Revoke deletes the approved set of (stage, scope) and returns how many
// records were removed. Revoking an unapproved scope removes nothing.
// Downstream approvals are left alone; the gate re-blocks new work only.
func (e *Engine) Revoke(ctx context.Context, stage registry.StageID, scope ir.Scope) (int, error) {
	st, scope, err := e.resolve(stage, scope)
	if err != nil {
		return 0, err
	}
	var n int
	err = e.retry(ctx, stage, scope, func(int) error {
		var err error
		n, err = e.store.DeleteApproved(ctx, st.ApprovedStore, scope)
		return err
	})
	if err != nil {
		return 0, ir.Locate(err, string(stage), scope)
	}
	e.logger.Info("revoked approval",
		"stage", stage,
		"scope", scope.Key(),
		"records", n,
	)
	return n, nil
}

// retry runs fn until it succeeds, fails with a non-transient error, or
// runs out of attempts.
func (e *Engine) retry(ctx context.Context, stage registry.StageID, scope ir.Scope, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err = fn(attempt); err == nil || !ir.IsTransient(err) {
			return err
		}
		if attempt == e.maxAttempts {
			break
		}
		e.logger.Warn("transient store error, retrying",
			"stage", stage,
			"scope", scope.Key(),
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("after %d attempts: %w", e.maxAttempts, err)
}

func (e *Engine) resolve(stage registry.StageID, scope ir.Scope) (registry.Stage, ir.Scope, error) {
	st, err := e.reg.Stage(stage)
	if err != nil {
		return registry.Stage{}, scope, err
	}
	scope = scope.Narrow(st.Shape)
	if err := scope.Validate(st.Shape); err != nil {
		return registry.Stage{}, scope, ir.Locate(err, string(stage), scope)
	}
	return st, scope, nil
}

// selectRows picks ids out of the snapshot in snapshot (ordinal) order and
// checks the approval preconditions.
func selectRows(st registry.Stage, scope ir.Scope, snapshot []ir.DraftRow, ids []string, cfg approveConfig) ([]ir.DraftRow, error) {
	byID := make(map[string]ir.DraftRow, len(snapshot))
	for _, row := range snapshot {
		byID[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, ir.Validation(fmt.Sprintf("row %s is not a draft of %s for %s", id, st.ID, scope.Key()))
		}
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	chosen := make([]ir.DraftRow, 0, len(ids))
	anyTop := false
	for _, row := range snapshot {
		if !wanted[row.ID] {
			continue
		}
		if cfg.atVersion != nil && row.Version != *cfg.atVersion {
			return nil, ir.Conflict(row.ID, *cfg.atVersion, row.Version)
		}
		anyTop = anyTop || row.Top
		chosen = append(chosen, row)
	}

	if st.Ranking && !anyTop {
		return nil, ir.Validation("no top item selected")
	}
	return chosen, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
