package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// CompileStages parses the `stage` struct of a CUE value into registry
// entries, in source order.
//
//	stage: {
//		segments: { shape: "project", label: "name" }
//		"pains-ranking": {
//			shape:    "segment"
//			upstream: ["pains"]
//			ranking:  true
//			label:    "name"
//		}
//	}
//
// Only the shape of each entry is checked here. Cross-stage rules (unknown
// upstream, cycles, store collisions) are enforced by registry.New.
func CompileStages(v cue.Value) ([]registry.Stage, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	stagesVal := v.LookupPath(cue.ParsePath("stage"))
	if !stagesVal.Exists() {
		return nil, &CompileError{
			Field:   "stage",
			Message: "stage table is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := stagesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var stages []registry.Stage
	for iter.Next() {
		st, err := CompileStage(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}

	if len(stages) == 0 {
		return nil, &CompileError{
			Field:   "stage",
			Message: "at least one stage is required",
			Pos:     stagesVal.Pos(),
		}
	}
	return stages, nil
}

// CompileStage parses one stage entry.
func CompileStage(id string, v cue.Value) (registry.Stage, error) {
	if err := v.Err(); err != nil {
		return registry.Stage{}, formatCUEError(err)
	}

	st := registry.Stage{ID: registry.StageID(id)}
	field := func(name string) string { return fmt.Sprintf("stage.%s.%s", id, name) }

	shape, err := requiredString(v, "shape", field("shape"))
	if err != nil {
		return st, err
	}
	st.Shape = ir.Shape(shape)
	if !st.Shape.Valid() {
		return st, &CompileError{
			Field:   field("shape"),
			Message: fmt.Sprintf("shape must be one of %v, got %q", ir.ValidShapes, shape),
			Pos:     v.LookupPath(cue.ParsePath("shape")).Pos(),
		}
	}

	if st.LabelKey, err = requiredString(v, "label", field("label")); err != nil {
		return st, err
	}

	insert, err := optionalString(v, "insert")
	if err != nil {
		return st, err
	}
	switch registry.InsertMode(insert) {
	case "", registry.InsertReplace, registry.InsertAugment:
		st.Insert = registry.InsertMode(insert)
	default:
		return st, &CompileError{
			Field:   field("insert"),
			Message: fmt.Sprintf("insert must be %q or %q, got %q", registry.InsertReplace, registry.InsertAugment, insert),
			Pos:     v.LookupPath(cue.ParsePath("insert")).Pos(),
		}
	}

	if rankVal := v.LookupPath(cue.ParsePath("ranking")); rankVal.Exists() {
		if st.Ranking, err = rankVal.Bool(); err != nil {
			return st, formatCUEError(err)
		}
	}

	if st.DraftStore, err = optionalString(v, "draft_store"); err != nil {
		return st, err
	}
	if st.ApprovedStore, err = optionalString(v, "approved_store"); err != nil {
		return st, err
	}

	upVal := v.LookupPath(cue.ParsePath("upstream"))
	if upVal.Exists() {
		list, err := upVal.List()
		if err != nil {
			return st, formatCUEError(err)
		}
		for list.Next() {
			up, err := list.Value().String()
			if err != nil {
				return st, formatCUEError(err)
			}
			st.Upstream = append(st.Upstream, registry.StageID(up))
		}
	}

	return st, nil
}

func requiredString(v cue.Value, path, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: path + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{
			Field:   field,
			Message: path + " must not be empty",
			Pos:     val.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
