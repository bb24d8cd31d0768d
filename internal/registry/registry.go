// Package registry is the static table of pipeline stages.
//
// Each stage declares its draft store, approved store, scope shape, upstream
// stages and bulk-insert mode. The table is validated once at startup: an
// invalid table (unknown upstream, cycle, shape inversion) is a programming
// error and fails fast instead of surfacing per request.
package registry

import (
	"fmt"
	"strings"

	"github.com/roach88/canvaspipe/internal/ir"
)

// StageID names one step of the content pipeline.
type StageID string

// InsertMode controls how a second bulk insert into the same scope behaves.
type InsertMode string

const (
	// InsertReplace deletes the scope's drafts before inserting the new set.
	InsertReplace InsertMode = "replace"
	// InsertAugment keeps existing drafts, refreshing rows whose ordinal
	// collides with a new row and appending the rest.
	InsertAugment InsertMode = "augment"
)

// EmptyLabel is shown for a payload whose label field is missing or blank.
const EmptyLabel = "\u2014"

// Stage is one static registry entry.
type Stage struct {
	ID            StageID
	DraftStore    string
	ApprovedStore string
	Shape         ir.Shape
	Upstream      []StageID
	Insert        InsertMode
	// Ranking stages require at least one row flagged top before approval.
	Ranking bool
	// LabelKey is the payload field shown as the row's display label.
	LabelKey string
}

// Label returns the row's display label. Each stage names exactly one label
// field; there is no probing of alternative keys.
func (s Stage) Label(payload ir.IRObject) string {
	if label := strings.TrimSpace(payload.Text(s.LabelKey)); label != "" {
		return label
	}
	return EmptyLabel
}

// Registry is a validated, immutable stage table.
type Registry struct {
	stages     map[StageID]Stage
	order      []StageID
	downstream map[StageID][]StageID
}

// New validates stages and builds a registry. Stage order is preserved for
// Stages(); a stage may only list upstream stages declared anywhere in the
// table, and the upstream graph must be acyclic.
func New(stages ...Stage) (*Registry, error) {
	r := &Registry{
		stages:     make(map[StageID]Stage, len(stages)),
		downstream: make(map[StageID][]StageID),
	}

	stores := make(map[string]StageID)
	for _, st := range stages {
		st = withDefaults(st)
		if err := validateStage(st); err != nil {
			return nil, err
		}
		if _, dup := r.stages[st.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate stage %q", st.ID)
		}
		for _, store := range []string{st.DraftStore, st.ApprovedStore} {
			if owner, taken := stores[store]; taken {
				return nil, fmt.Errorf("registry: stage %q reuses store %q owned by %q", st.ID, store, owner)
			}
			stores[store] = st.ID
		}
		st.Upstream = append([]StageID(nil), st.Upstream...)
		r.stages[st.ID] = st
		r.order = append(r.order, st.ID)
	}

	for _, id := range r.order {
		st := r.stages[id]
		seen := make(map[StageID]bool, len(st.Upstream))
		for _, up := range st.Upstream {
			upStage, ok := r.stages[up]
			if !ok {
				return nil, fmt.Errorf("registry: stage %q lists unknown upstream %q", id, up)
			}
			if seen[up] {
				return nil, fmt.Errorf("registry: stage %q lists upstream %q twice", id, up)
			}
			seen[up] = true
			if upStage.Shape.Depth() > st.Shape.Depth() {
				return nil, fmt.Errorf("registry: %s-scoped stage %q cannot depend on %s-scoped stage %q",
					st.Shape, id, upStage.Shape, up)
			}
			r.downstream[up] = append(r.downstream[up], id)
		}
	}

	if cycles := findCycles(r); len(cycles) > 0 {
		msgs := make([]string, len(cycles))
		for i, c := range cycles {
			msgs[i] = c.String()
		}
		return nil, fmt.Errorf("registry: upstream graph has cycles: %s", strings.Join(msgs, "; "))
	}

	return r, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(stages ...Stage) *Registry {
	r, err := New(stages...)
	if err != nil {
		panic(err)
	}
	return r
}

func withDefaults(st Stage) Stage {
	if st.DraftStore == "" {
		st.DraftStore = DraftStoreName(st.ID)
	}
	if st.ApprovedStore == "" {
		st.ApprovedStore = ApprovedStoreName(st.ID)
	}
	if st.Insert == "" {
		st.Insert = InsertReplace
	}
	return st
}

func validateStage(st Stage) error {
	if st.ID == "" {
		return fmt.Errorf("registry: stage with empty id")
	}
	if !st.Shape.Valid() {
		return fmt.Errorf("registry: stage %q has invalid shape %q", st.ID, st.Shape)
	}
	if st.Insert != InsertReplace && st.Insert != InsertAugment {
		return fmt.Errorf("registry: stage %q has invalid insert mode %q", st.ID, st.Insert)
	}
	if st.DraftStore == st.ApprovedStore {
		return fmt.Errorf("registry: stage %q uses %q as both draft and approved store", st.ID, st.DraftStore)
	}
	if st.LabelKey == "" {
		return fmt.Errorf("registry: stage %q has no label key", st.ID)
	}
	return nil
}

// DraftStoreName is the default draft store id for a stage.
func DraftStoreName(id StageID) string {
	return strings.ReplaceAll(string(id), "-", "_") + "_drafts"
}

// ApprovedStoreName is the default approved store id for a stage.
func ApprovedStoreName(id StageID) string {
	return strings.ReplaceAll(string(id), "-", "_")
}

// Stage looks up a stage. Unknown ids are NotFound.
func (r *Registry) Stage(id StageID) (Stage, error) {
	st, ok := r.stages[id]
	if !ok {
		return Stage{}, ir.NotFound("unknown stage %q", id)
	}
	return st, nil
}

// Upstream returns the stage's upstream ids in declaration order.
func (r *Registry) Upstream(id StageID) ([]StageID, error) {
	st, err := r.Stage(id)
	if err != nil {
		return nil, err
	}
	return append([]StageID(nil), st.Upstream...), nil
}

// Downstream returns the stages that list id as an upstream, in table order.
func (r *Registry) Downstream(id StageID) []StageID {
	return append([]StageID(nil), r.downstream[id]...)
}

// Stages returns every stage in declaration order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.order))
	for i, id := range r.order {
		out[i] = r.stages[id]
	}
	return out
}

// StagesWithShape returns the stages of one shape in declaration order.
func (r *Registry) StagesWithShape(shape ir.Shape) []Stage {
	var out []Stage
	for _, id := range r.order {
		if st := r.stages[id]; st.Shape == shape {
			out = append(out, st)
		}
	}
	return out
}

// TopoOrder returns stage ids so that every stage follows all of its
// upstream stages. Ties keep declaration order.
func (r *Registry) TopoOrder() []StageID {
	indegree := make(map[StageID]int, len(r.order))
	for _, id := range r.order {
		indegree[id] = len(r.stages[id].Upstream)
	}

	var out []StageID
	done := make(map[StageID]bool, len(r.order))
	for len(out) < len(r.order) {
		progressed := false
		for _, id := range r.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			out = append(out, id)
			for _, down := range r.downstream[id] {
				indegree[down]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Unreachable for a validated registry.
			break
		}
	}
	return out
}

// ScopeSource returns the stage whose approved records name the scopes of
// the given shape: the first upstream, one shape broader, of the first stage
// with that shape. In the default table segments come from "segments" and
// pains from "pains-ranking". ok is false for the project shape or a table
// without such a stage.
func (r *Registry) ScopeSource(shape ir.Shape) (Stage, bool) {
	for _, id := range r.order {
		st := r.stages[id]
		if st.Shape != shape {
			continue
		}
		for _, upID := range st.Upstream {
			if up := r.stages[upID]; up.Shape.Depth() == shape.Depth()-1 {
				return up, true
			}
		}
	}
	return Stage{}, false
}
