package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/canvaspipe/internal/approval"
	"github.com/roach88/canvaspipe/internal/compiler"
	"github.com/roach88/canvaspipe/internal/ident"
	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/pipeline"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/store"
	"github.com/roach88/canvaspipe/internal/testutil"
)

// Harness executes scenario steps against one pipeline.
type Harness struct {
	reg      *registry.Registry
	pipeline *pipeline.Pipeline
	project  string
}

// Run executes a scenario on a fresh in-memory store and returns the
// result. An error means the scenario itself could not run: a stage table
// that does not load, or a step that references a segment, pain or row
// position that does not exist.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg := registry.Default()
	if scenario.Stages != "" {
		var err error
		reg, err = compiler.LoadRegistry(scenario.Stages)
		if err != nil {
			return nil, fmt.Errorf("failed to load stages: %w", err)
		}
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	local := provider.NewLocal(reg, scenario.Items)
	p := pipeline.New(reg, st,
		pipeline.Providers{Generator: local, FieldGenerator: local, Translator: local},
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pipeline.WithIDGenerator(ident.NewSequenceGenerator("row")),
		pipeline.WithClock(clock.Now),
	)
	h := &Harness{reg: reg, pipeline: p, project: scenario.Project}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s %s: %w", i, step.Op, step.Stage, err)
		}
		ev = result.AddTrace(ev)
		checkExpect(i, step, ev, result)
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step. Pipeline errors become the event's outcome; the
// returned error is reserved for steps that cannot be resolved.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	sel, err := h.selection(ctx, step.Segment, step.Pain)
	if err != nil {
		return TraceEvent{}, err
	}
	sel.Language = step.Lang
	stage := registry.StageID(step.Stage)
	ev := TraceEvent{Op: step.Op, Stage: step.Stage, Scope: h.scopeKey(stage, sel)}

	var opErr error
	switch step.Op {
	case OpGenerate:
		var rows []ir.DraftRow
		rows, opErr = h.pipeline.Generate(ctx, stage, sel)
		ev.Rows = len(rows)

	case OpApprove:
		var res approval.Result
		if len(step.Rows) == 0 {
			res, opErr = h.pipeline.ApproveCurrent(ctx, stage, sel)
		} else {
			ids, err := h.rowIDs(ctx, stage, sel, step.Rows)
			if err != nil {
				return TraceEvent{}, err
			}
			res, opErr = h.pipeline.Approve(ctx, stage, sel, ids)
		}
		ev.Rows = len(res.Records)

	case OpRevoke:
		ev.Rows, opErr = h.pipeline.Approval().Revoke(ctx, stage, sel.Scope())

	case OpTop:
		ids, err := h.rowIDs(ctx, stage, sel, step.Rows)
		if err != nil {
			return TraceEvent{}, err
		}
		top := step.Top == nil || *step.Top
		for _, id := range ids {
			if _, opErr = h.pipeline.Drafts().SetTop(ctx, stage, id, top); opErr != nil {
				break
			}
			ev.Rows++
		}

	case OpPatch:
		ids, err := h.rowIDs(ctx, stage, sel, step.Rows)
		if err != nil {
			return TraceEvent{}, err
		}
		fields, err := toObject(step.Fields)
		if err != nil {
			return TraceEvent{}, err
		}
		if _, opErr = h.pipeline.Drafts().Patch(ctx, stage, ids[0], fields); opErr == nil {
			ev.Rows = 1
		}

	case OpDelete:
		ids, err := h.rowIDs(ctx, stage, sel, step.Rows)
		if err != nil {
			return TraceEvent{}, err
		}
		for _, id := range ids {
			if opErr = h.pipeline.Drafts().Delete(ctx, stage, id); opErr != nil {
				break
			}
			ev.Rows++
		}

	case OpRegenerate:
		ids, err := h.rowIDs(ctx, stage, sel, step.Rows)
		if err != nil {
			return TraceEvent{}, err
		}
		var v ir.IRValue
		v, opErr = h.pipeline.Regenerate(ctx, stage, sel, ids[0], step.Field, step.Context)
		if opErr == nil {
			ev.Rows = 1
			ev.Value = valueText(v)
		}

	case OpRender:
		var view pipeline.View
		view, opErr = h.pipeline.Render(ctx, stage, sel, step.Approved)
		ev.Rows = len(view.Rows)
		for _, row := range view.Rows {
			ev.Labels = append(ev.Labels, row.Label)
		}

	case OpCanEnter:
		var d gateDecision
		d, opErr = h.canEnter(ctx, stage, sel)
		if opErr == nil && !d.allowed {
			ev.Outcome = OutcomeBlocked
			ev.Blocking = d.blocking
			return ev, nil
		}

	default:
		return TraceEvent{}, fmt.Errorf("unknown op %q", step.Op)
	}

	if opErr != nil {
		ev.Rows = 0
		ev.Labels = nil
		ev.cause = opErr
	}
	ev.Outcome = outcomeOf(opErr)
	return ev, nil
}

type gateDecision struct {
	allowed  bool
	blocking string
}

func (h *Harness) canEnter(ctx context.Context, stage registry.StageID, sel pipeline.Selection) (gateDecision, error) {
	d, err := h.pipeline.Gate().CanEnter(ctx, stage, sel.Scope())
	if err != nil {
		return gateDecision{}, err
	}
	return gateDecision{allowed: d.Allowed, blocking: string(d.BlockingStage)}, nil
}

// selection resolves 1-based segment and pain positions.
func (h *Harness) selection(ctx context.Context, segment, pain int) (pipeline.Selection, error) {
	sel := pipeline.Selection{ProjectID: h.project}
	if segment == 0 {
		return sel, nil
	}
	segs, err := h.pipeline.Segments(ctx, h.project)
	if err != nil {
		return sel, err
	}
	if segment > len(segs) {
		return sel, fmt.Errorf("segment %d: project %s has %d approved segments", segment, h.project, len(segs))
	}
	sel = sel.WithSegment(segs[segment-1].ID)
	if pain == 0 {
		return sel, nil
	}
	pains, err := h.pipeline.TopPains(ctx, sel)
	if err != nil {
		return sel, err
	}
	if pain > len(pains) {
		return sel, fmt.Errorf("pain %d: segment %s has %d top pains", pain, sel.SegmentID, len(pains))
	}
	sel.PainID = pains[pain-1].ID
	return sel, nil
}

// rowIDs maps 1-based positions in the current draft listing to row ids.
func (h *Harness) rowIDs(ctx context.Context, stage registry.StageID, sel pipeline.Selection, positions []int) ([]string, error) {
	rows, err := h.pipeline.Drafts().List(ctx, stage, sel.Scope())
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(positions))
	for i, pos := range positions {
		if pos > len(rows) {
			return nil, fmt.Errorf("row %d: %s has %d drafts at %s", pos, stage, len(rows), sel.Scope().Key())
		}
		ids[i] = rows[pos-1].ID
	}
	return ids, nil
}

func (h *Harness) scopeKey(stage registry.StageID, sel pipeline.Selection) string {
	st, err := h.reg.Stage(stage)
	if err != nil {
		return sel.Scope().Key()
	}
	return sel.Scope().Narrow(st.Shape).Key()
}

// checkExpect compares a step's event with its expect clause.
func checkExpect(i int, step Step, ev TraceEvent, result *Result) {
	want := Expect{Outcome: OutcomeOK}
	if step.Expect != nil {
		want = *step.Expect
	}
	prefix := fmt.Sprintf("steps[%d] %s %s", i, step.Op, step.Stage)

	if ev.Outcome != want.Outcome {
		msg := fmt.Sprintf("%s: expected outcome %s, got %s", prefix, want.Outcome, ev.Outcome)
		if ev.cause != nil {
			msg += fmt.Sprintf(" (%v)", ev.cause)
		}
		result.AddError(msg)
		return
	}
	if want.Rows != nil && ev.Rows != *want.Rows {
		result.AddError(fmt.Sprintf("%s: expected %d rows, got %d", prefix, *want.Rows, ev.Rows))
	}
	if want.Blocking != "" && ev.Blocking != want.Blocking {
		result.AddError(fmt.Sprintf("%s: expected blocking stage %s, got %q", prefix, want.Blocking, ev.Blocking))
	}
	if want.Value != "" && ev.Value != want.Value {
		result.AddError(fmt.Sprintf("%s: expected value %q, got %q", prefix, want.Value, ev.Value))
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

func toObject(fields map[string]any) (ir.IRObject, error) {
	v, err := ir.ToIRValue(fields)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("fields: expected object, got %T", v)
	}
	return obj, nil
}

func valueText(v ir.IRValue) string {
	if s, ok := v.(ir.IRString); ok {
		return string(s)
	}
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
