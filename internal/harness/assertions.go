package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// AssertionContext provides what final_state assertions need.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", ev.Seq, ev.Op, ev.Stage, ev.Scope, ev.Outcome)
		}
	}
	return buf.String()
}

// matches reports whether ev passes the assertion's op, stage and outcome
// filters. Empty filters match anything.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Op != "" && ev.Op != a.Op {
		return false
	}
	if a.Stage != "" && ev.Stage != a.Stage {
		return false
	}
	if a.Outcome != "" && ev.Outcome != a.Outcome {
		return false
	}
	return true
}

func describeFilter(a Assertion) string {
	parts := []string{"op=" + a.Op}
	if a.Stage != "" {
		parts = append(parts, "stage="+a.Stage)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some event matches the filters.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of "op:stage" entries
// appear in the given order. Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, ev := range trace {
		key := ev.Op + ":" + ev.Stage
		if _, seen := positions[key]; !seen {
			positions[key] = int(ev.Seq)
		}
	}

	for _, key := range a.Ops {
		if _, ok := positions[key]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing entry: %s", key),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match the filters.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s exactly %d times", describeFilter(a), a.Count),
			Actual:   fmt.Sprintf("found %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// stateRow is the part of a draft row or approved record final_state
// checks.
type stateRow struct {
	top   bool
	label string
}

// assertFinalState lists a stage's drafts or approved set at the
// assertion's scope and compares count, top count and labels.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	h := actx.Harness
	sel, err := h.selection(actx.Ctx, a.Segment, a.Pain)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", a.Stage, err)
	}
	stage := registry.StageID(a.Stage)
	st, err := h.reg.Stage(stage)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	var rows []stateRow
	switch a.Table {
	case TableApproved:
		recs, err := h.pipeline.Approval().Approved(actx.Ctx, stage, sel.Scope())
		if err != nil {
			return fmt.Errorf("final_state %s: %w", a.Stage, err)
		}
		for _, rec := range recs {
			rows = append(rows, stateRow{top: rec.Top, label: st.Label(rec.Payload)})
		}
	default:
		drafts, err := h.pipeline.Drafts().List(actx.Ctx, stage, sel.Scope())
		if err != nil {
			return fmt.Errorf("final_state %s: %w", a.Stage, err)
		}
		for _, row := range drafts {
			rows = append(rows, stateRow{top: row.Top, label: st.Label(row.Payload)})
		}
	}

	where := fmt.Sprintf("%s %s at %s", a.Table, a.Stage, sel.Scope().Narrow(st.Shape).Key())
	want := a.Expect
	if want.Count != nil && len(rows) != *want.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s has %d rows", where, *want.Count),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	if want.Top != nil {
		top := 0
		for _, r := range rows {
			if r.top {
				top++
			}
		}
		if top != *want.Top {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s has %d top rows", where, *want.Top),
				Actual:   fmt.Sprintf("%d top rows", top),
			}
		}
	}
	if want.Labels != nil {
		labels := make([]string, len(rows))
		for i, r := range rows {
			labels[i] = r.label
		}
		if !slices.Equal(labels, want.Labels) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s labels %q", where, want.Labels),
				Actual:   fmt.Sprintf("%q", labels),
			}
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions and returns error messages
// for the ones that fail.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if actx == nil || actx.Harness == nil {
				err = fmt.Errorf("final_state requires a harness")
			} else {
				err = assertFinalState(actx, a)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// traceIR converts a trace to its canonical form.
func traceIR(trace []TraceEvent) ir.IRArray {
	out := make(ir.IRArray, len(trace))
	for i, ev := range trace {
		out[i] = ev.irObject()
	}
	return out
}
