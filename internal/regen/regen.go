// Package regen regenerates a single field of a draft row.
//
// The new value is always written back as a one-field patch, so a
// concurrent edit of a sibling field on the same row survives no matter
// which call finishes first.
package regen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/canvaspipe/internal/drafts"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/registry"
)

// ErrDiscarded is returned when a generated value was dropped because the
// call was cancelled or the row left the caller's scope before the write.
// The row keeps its previous value.
var ErrDiscarded = errors.New("regenerated value discarded")

// Request names the field to regenerate.
type Request struct {
	Stage registry.StageID
	RowID string
	Field string
	// CurrentValue is what the user sees. Nil means "read it from the row".
	CurrentValue ir.IRValue
	// Context is free text steering the generator.
	Context string
	// Scope is the caller's selection. When set, the row must belong to it
	// both before the generator runs and when the result is written.
	Scope ir.Scope
}

// Service runs field regenerations.
type Service struct {
	reg     *registry.Registry
	drafts  *drafts.Adapter
	gen     provider.FieldGenerator
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTimeout bounds each generator call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New creates a Service.
func New(reg *registry.Registry, d *drafts.Adapter, gen provider.FieldGenerator, opts ...Option) *Service {
	s := &Service{reg: reg, drafts: d, gen: gen, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Regenerate asks the field generator for a new value of req.Field and
// patches exactly that field. A generator failure is ir.CodeExternalService
// and leaves the row untouched.
func (s *Service) Regenerate(ctx context.Context, req Request) (ir.IRValue, error) {
	field := strings.TrimSpace(req.Field)
	if field == "" {
		return nil, ir.Validation("field name is required").WithStage(string(req.Stage), req.Scope)
	}
	st, err := s.reg.Stage(req.Stage)
	if err != nil {
		return nil, err
	}

	row, err := s.drafts.Get(ctx, req.Stage, req.RowID)
	if err != nil {
		return nil, err
	}
	if !s.inScope(st, row, req.Scope) {
		return nil, ir.Validation(fmt.Sprintf("row %s is not in %s", req.RowID, req.Scope.Key())).
			WithStage(string(req.Stage), req.Scope)
	}

	current := req.CurrentValue
	if current == nil {
		current = row.Payload[field]
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	value, err := s.gen.RegenerateField(callCtx, provider.FieldRequest{
		Stage:   req.Stage,
		Field:   field,
		Current: current,
		Context: req.Context,
		Payload: row.Payload.Clone(),
	})
	if ctx.Err() != nil {
		return nil, s.discard(req, "cancelled", ctx.Err())
	}
	if err != nil {
		s.logger.Warn("field generator failed",
			"stage", req.Stage,
			"row_id", req.RowID,
			"field", field,
			"error", err,
		)
		e := ir.External("regenerate field "+field, err).WithStage(string(req.Stage), row.Scope)
		e.Field = field
		return nil, e
	}
	if value == nil {
		value = ir.IRNull{}
	}

	// The row may have been deleted or replaced while the generator ran.
	latest, err := s.drafts.Get(ctx, req.Stage, req.RowID)
	if err != nil {
		if ir.IsNotFound(err) {
			return nil, s.discard(req, "row gone", err)
		}
		return nil, err
	}
	if latest.Scope != row.Scope || !s.inScope(st, latest, req.Scope) {
		return nil, s.discard(req, "scope changed", nil)
	}

	if _, err := s.drafts.Patch(ctx, req.Stage, req.RowID, ir.IRObject{field: value}); err != nil {
		return nil, err
	}
	s.logger.Info("regenerated field",
		"stage", req.Stage,
		"row_id", req.RowID,
		"field", field,
	)
	return value, nil
}

func (s *Service) inScope(st registry.Stage, row ir.DraftRow, scope ir.Scope) bool {
	if scope == (ir.Scope{}) {
		return true
	}
	return row.Scope == scope.Narrow(st.Shape)
}

func (s *Service) discard(req Request, reason string, cause error) error {
	s.logger.Info("discarded regenerated value",
		"stage", req.Stage,
		"row_id", req.RowID,
		"field", req.Field,
		"reason", reason,
	)
	if cause != nil {
		return fmt.Errorf("%w (%s): %w", ErrDiscarded, reason, cause)
	}
	return fmt.Errorf("%w (%s)", ErrDiscarded, reason)
}
