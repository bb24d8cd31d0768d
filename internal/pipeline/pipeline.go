// Package pipeline is the entry point the CLI and harness drive: it wires
// the draft adapter, approval engine, dependency gate, field regeneration
// and translation cache over one store and one set of providers.
//
// There is no ambient state. Every call takes a Selection naming the
// project, segment, pain and display language it acts on.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/canvaspipe/internal/approval"
	"github.com/roach88/canvaspipe/internal/drafts"
	"github.com/roach88/canvaspipe/internal/gate"
	"github.com/roach88/canvaspipe/internal/ident"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/regen"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/store"
	"github.com/roach88/canvaspipe/internal/translate"
)

// Selection is the caller's current position in the pipeline.
type Selection struct {
	ProjectID string `json:"project_id" yaml:"project"`
	SegmentID string `json:"segment_id,omitempty" yaml:"segment,omitempty"`
	PainID    string `json:"pain_id,omitempty" yaml:"pain,omitempty"`
	// Language is the display language; empty means native.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// Scope returns the selection's scope tuple.
func (s Selection) Scope() ir.Scope {
	return ir.Scope{ProjectID: s.ProjectID, SegmentID: s.SegmentID, PainID: s.PainID}
}

// WithSegment returns a copy of s pointed at another segment.
func (s Selection) WithSegment(id string) Selection {
	s.SegmentID = id
	s.PainID = ""
	return s
}

// Providers are the external content services.
type Providers struct {
	Generator      provider.Generator
	FieldGenerator provider.FieldGenerator
	Translator     provider.Translator
}

// Pipeline runs stage operations for a registry over a store.
type Pipeline struct {
	reg       *registry.Registry
	generator provider.Generator
	drafts    *drafts.Adapter
	approval  *approval.Engine
	gate      *gate.Gate
	regen     *regen.Service
	translate *translate.Cache
	logger    *slog.Logger
}

type options struct {
	logger        *slog.Logger
	ids           ident.Generator
	clock         func() time.Time
	maxAttempts   int
	backoff       time.Duration
	native        language.Tag
	memoryEntries int
	translateWait time.Duration
	regenWait     time.Duration
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets the logger every component logs to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDGenerator sets the id source for draft rows and approved records.
func WithIDGenerator(g ident.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the approval time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithApprovalRetry bounds whole-transaction retries of approvals.
func WithApprovalRetry(maxAttempts int, backoff time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.backoff = backoff
	}
}

// WithNativeLanguage sets the language content is authored in.
func WithNativeLanguage(tag language.Tag) Option {
	return func(o *options) { o.native = tag }
}

// WithTranslationMemory sets the in-memory translation tier capacity.
func WithTranslationMemory(entries int) Option {
	return func(o *options) { o.memoryEntries = entries }
}

// WithTranslateTimeout bounds each translation provider call.
func WithTranslateTimeout(d time.Duration) Option {
	return func(o *options) { o.translateWait = d }
}

// WithRegenerateTimeout bounds each field generator call.
func WithRegenerateTimeout(d time.Duration) Option {
	return func(o *options) { o.regenWait = d }
}

// New wires a Pipeline.
func New(reg *registry.Registry, st *store.Store, p Providers, opts ...Option) *Pipeline {
	o := options{
		logger:        slog.Default(),
		ids:           ident.UUIDv7Generator{},
		clock:         time.Now,
		maxAttempts:   approval.DefaultMaxAttempts,
		backoff:       approval.DefaultBackoff,
		native:        language.English,
		memoryEntries: translate.DefaultMemoryEntries,
		translateWait: translate.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := drafts.New(reg, st, drafts.WithLogger(o.logger), drafts.WithIDGenerator(o.ids))
	eng := approval.New(reg, st,
		approval.WithLogger(o.logger),
		approval.WithIDGenerator(o.ids),
		approval.WithClock(o.clock),
		approval.WithRetry(o.maxAttempts, o.backoff),
	)
	return &Pipeline{
		reg:       reg,
		generator: p.Generator,
		drafts:    d,
		approval:  eng,
		gate:      gate.New(reg, eng, gate.WithLogger(o.logger)),
		regen:     regen.New(reg, d, p.FieldGenerator, regen.WithLogger(o.logger), regen.WithTimeout(o.regenWait)),
		translate: translate.New(st, p.Translator,
			translate.WithLogger(o.logger),
			translate.WithNativeLanguage(o.native),
			translate.WithMemoryEntries(o.memoryEntries),
			translate.WithTimeout(o.translateWait),
		),
		logger: o.logger,
	}
}

// Registry returns the stage table.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Drafts returns the draft adapter.
func (p *Pipeline) Drafts() *drafts.Adapter { return p.drafts }

// Approval returns the approval engine.
func (p *Pipeline) Approval() *approval.Engine { return p.approval }

// Gate returns the dependency gate.
func (p *Pipeline) Gate() *gate.Gate { return p.gate }

// Translations returns the translation cache.
func (p *Pipeline) Translations() *translate.Cache { return p.translate }

// Generate runs one generation pass of stage for the selection: the gate
// must allow the stage, the approved content of every upstream stage is
// handed to the generator, and the result is bulk inserted as a new draft
// version.
func (p *Pipeline) Generate(ctx context.Context, stage registry.StageID, sel Selection) ([]ir.DraftRow, error) {
	st, err := p.reg.Stage(stage)
	if err != nil {
		return nil, err
	}
	scope := sel.Scope().Narrow(st.Shape)
	if err := p.gate.Require(ctx, stage, scope); err != nil {
		return nil, err
	}

	upstream, err := p.upstreamContext(ctx, st, scope)
	if err != nil {
		return nil, err
	}
	items, err := p.generator.Generate(ctx, provider.Request{
		Stage:    stage,
		Scope:    scope,
		Language: sel.Language,
		Upstream: upstream,
	})
	if err != nil {
		return nil, ir.External("generate "+string(stage), err).WithStage(string(stage), scope)
	}
	if len(items) == 0 {
		return nil, ir.External("generate "+string(stage), fmt.Errorf("generator returned no rows")).
			WithStage(string(stage), scope)
	}

	rows := make([]drafts.NewRow, len(items))
	for i, item := range items {
		rows[i] = drafts.NewRow{Payload: item}
	}
	return p.drafts.BulkInsert(ctx, stage, scope, rows)
}

// upstreamContext collects the approved records of each upstream stage at
// the scope narrowed to that stage's shape.
func (p *Pipeline) upstreamContext(ctx context.Context, st registry.Stage, scope ir.Scope) ([]provider.Upstream, error) {
	out := make([]provider.Upstream, 0, len(st.Upstream))
	for _, upID := range st.Upstream {
		up, err := p.reg.Stage(upID)
		if err != nil {
			return nil, err
		}
		upScope := scope.Narrow(up.Shape)
		recs, err := p.approval.Approved(ctx, upID, upScope)
		if err != nil {
			return nil, err
		}
		out = append(out, provider.Upstream{Stage: upID, Scope: upScope, Records: recs})
	}
	return out, nil
}

// Approve approves rowIDs of stage for the selection.
func (p *Pipeline) Approve(ctx context.Context, stage registry.StageID, sel Selection, rowIDs []string, opts ...approval.ApproveOption) (approval.Result, error) {
	return p.approval.Approve(ctx, stage, sel.Scope(), rowIDs, opts...)
}

// ApproveCurrent approves every current draft row of stage for the
// selection.
func (p *Pipeline) ApproveCurrent(ctx context.Context, stage registry.StageID, sel Selection, opts ...approval.ApproveOption) (approval.Result, error) {
	rows, err := p.drafts.List(ctx, stage, sel.Scope())
	if err != nil {
		return approval.Result{}, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return p.approval.Approve(ctx, stage, sel.Scope(), ids, opts...)
}

// Regenerate regenerates one field of a draft row within the selection.
func (p *Pipeline) Regenerate(ctx context.Context, stage registry.StageID, sel Selection, rowID, field, hint string) (ir.IRValue, error) {
	return p.regen.Regenerate(ctx, regen.Request{
		Stage:   stage,
		RowID:   rowID,
		Field:   field,
		Context: hint,
		Scope:   sel.Scope(),
	})
}

// Segment is a segment selected by the project's approved segment stage.
type Segment struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Segments returns the project's approved segments. A segment's id is the
// id of the draft row it was approved from.
func (p *Pipeline) Segments(ctx context.Context, projectID string) ([]Segment, error) {
	src, ok := p.reg.ScopeSource(ir.ShapeSegment)
	if !ok {
		return []Segment{}, nil
	}
	recs, err := p.approval.Approved(ctx, src.ID, ir.Scope{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	out := make([]Segment, len(recs))
	for i, rec := range recs {
		out[i] = Segment{ID: rec.SourceDraftID, Label: src.Label(rec.Payload)}
	}
	return out, nil
}

// TopPains returns the pains selected by the segment's approved ranking.
func (p *Pipeline) TopPains(ctx context.Context, sel Selection) ([]gate.Pain, error) {
	scope := sel.Scope().Narrow(ir.ShapeSegment)
	if err := scope.Validate(ir.ShapeSegment); err != nil {
		return nil, err
	}
	return p.gate.Pains(ctx, scope)
}

// Progress reports the project's segments. With no segment ids given, the
// project's approved segments are used.
func (p *Pipeline) Progress(ctx context.Context, projectID string, segmentIDs []string) ([]gate.SegmentProgress, error) {
	if len(segmentIDs) == 0 {
		segs, err := p.Segments(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, s := range segs {
			segmentIDs = append(segmentIDs, s.ID)
		}
	}
	return p.gate.Progress(ctx, projectID, segmentIDs)
}
