package harness

import "github.com/roach88/canvaspipe/internal/ir"

// Outcomes recorded for steps that did not fail with a pipeline error.
const (
	OutcomeOK      = "ok"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Stage   string `json:"stage"`
	Scope   string `json:"scope"`
	Outcome string `json:"outcome"`
	// Rows is the number of rows the step produced or touched.
	Rows     int      `json:"rows,omitempty"`
	Blocking string   `json:"blocking,omitempty"`
	Value    string   `json:"value,omitempty"`
	Labels   []string `json:"labels,omitempty"`

	cause error
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev, numbering it.
func (r *Result) AddTrace(ev TraceEvent) TraceEvent {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
	return ev
}

// irObject converts the event to its canonical form. Empty optional
// fields are omitted.
func (e TraceEvent) irObject() ir.IRObject {
	obj := ir.IRObject{
		"seq":     ir.IRInt(e.Seq),
		"op":      ir.IRString(e.Op),
		"stage":   ir.IRString(e.Stage),
		"scope":   ir.IRString(e.Scope),
		"outcome": ir.IRString(e.Outcome),
	}
	if e.Rows != 0 {
		obj["rows"] = ir.IRInt(e.Rows)
	}
	if e.Blocking != "" {
		obj["blocking"] = ir.IRString(e.Blocking)
	}
	if e.Value != "" {
		obj["value"] = ir.IRString(e.Value)
	}
	if len(e.Labels) > 0 {
		labels := make(ir.IRArray, len(e.Labels))
		for i, l := range e.Labels {
			labels[i] = ir.IRString(l)
		}
		obj["labels"] = labels
	}
	return obj
}
