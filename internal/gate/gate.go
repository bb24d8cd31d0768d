// Package gate decides whether a stage may be entered for a scope.
//
// A stage is enterable exactly when every upstream stage has an approved
// record for the scope narrowed to that upstream's shape, and the scope's
// segment and pain are ones the approved segment list and ranking select. Every check is a
// fresh store query: approvals and revocations are visible to the next call.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// Approvals is the read side of the approval engine.
type Approvals interface {
	IsApproved(ctx context.Context, stage registry.StageID, scope ir.Scope) (bool, error)
	Approved(ctx context.Context, stage registry.StageID, scope ir.Scope) ([]ir.ApprovedRecord, error)
}

// Decision is the outcome of CanEnter.
type Decision struct {
	Stage   registry.StageID `json:"stage"`
	Allowed bool             `json:"allowed"`
	// BlockingStage is the first unmet upstream in declaration order.
	BlockingStage registry.StageID `json:"blocking_stage,omitempty"`
	// Scope is the narrowed scope the blocking stage was checked at.
	Scope ir.Scope `json:"scope"`
	// Unselected is the segment or pain id the blocking stage's approved
	// records do not select. Empty when an upstream is simply unapproved.
	Unselected string `json:"unselected,omitempty"`
}

// Err returns nil for an allowed decision and an ir.CodeUpstreamUnmet error
// naming the blocking stage otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Unselected != "" {
		return ir.Unselected(string(d.Stage), string(d.BlockingStage), d.Unselected, d.Scope)
	}
	return ir.UpstreamUnmet(string(d.Stage), string(d.BlockingStage), d.Scope)
}

// Gate evaluates upstream approval.
type Gate struct {
	reg       *registry.Registry
	approvals Approvals
	logger    *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// New creates a Gate.
func New(reg *registry.Registry, approvals Approvals, opts ...Option) *Gate {
	g := &Gate{reg: reg, approvals: approvals, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanEnter checks stage's upstream approvals for scope. A blocked stage is a
// normal negative Decision, not an error; errors are reserved for unknown
// stages, malformed scopes and store failures.
//
// Once every upstream is approved, the scope's segment must be one the
// approved segment source selects, and for pain-shaped stages the pain must
// be a top record of the approved ranking. Otherwise the source stage is
// reported as blocking.
func (g *Gate) CanEnter(ctx context.Context, stage registry.StageID, scope ir.Scope) (Decision, error) {
	st, err := g.reg.Stage(stage)
	if err != nil {
		return Decision{}, err
	}
	scope = scope.Narrow(st.Shape)
	if err := scope.Validate(st.Shape); err != nil {
		return Decision{}, ir.Locate(err, string(stage), scope)
	}

	for _, upID := range st.Upstream {
		up, err := g.reg.Stage(upID)
		if err != nil {
			return Decision{}, err
		}
		upScope := scope.Narrow(up.Shape)
		ok, err := g.approvals.IsApproved(ctx, upID, upScope)
		if err != nil {
			return Decision{}, fmt.Errorf("check %s for %s: %w", upID, stage, err)
		}
		if !ok {
			g.logger.Debug("stage blocked",
				"stage", stage,
				"scope", scope.Key(),
				"blocking", upID,
			)
			return Decision{Stage: stage, BlockingStage: upID, Scope: upScope}, nil
		}
	}

	for _, level := range []struct {
		shape ir.Shape
		id    string
	}{
		{ir.ShapeSegment, scope.SegmentID},
		{ir.ShapePain, scope.PainID},
	} {
		if st.Shape.Depth() < level.shape.Depth() {
			break
		}
		src, ok := g.reg.ScopeSource(level.shape)
		if !ok {
			continue
		}
		srcScope := scope.Narrow(src.Shape)
		ids, err := g.selectedIDs(ctx, src, srcScope)
		if err != nil {
			return Decision{}, fmt.Errorf("check %s selection for %s: %w", src.ID, stage, err)
		}
		if !slices.Contains(ids, level.id) {
			g.logger.Debug("scope not selected",
				"stage", stage,
				"scope", scope.Key(),
				"source", src.ID,
				"id", level.id,
			)
			return Decision{Stage: stage, BlockingStage: src.ID, Scope: srcScope, Unselected: level.id}, nil
		}
	}
	return Decision{Stage: stage, Allowed: true, Scope: scope}, nil
}

// selectedIDs returns the ids a scope source's approved records select: the
// source draft id of every record, or of the top records for a ranking
// stage.
func (g *Gate) selectedIDs(ctx context.Context, src registry.Stage, scope ir.Scope) ([]string, error) {
	recs, err := g.approvals.Approved(ctx, src.ID, scope)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if src.Ranking && !rec.Top {
			continue
		}
		ids = append(ids, rec.SourceDraftID)
	}
	return ids, nil
}

// Require is CanEnter for callers that want a blocked stage as an error.
func (g *Gate) Require(ctx context.Context, stage registry.StageID, scope ir.Scope) error {
	d, err := g.CanEnter(ctx, stage, scope)
	if err != nil {
		return err
	}
	return d.Err()
}
