package gate

import (
	"context"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// SegmentProgress summarizes one segment's position in the pipeline.
type SegmentProgress struct {
	SegmentID string `json:"segment_id"`
	// Approved lists the approved project- and segment-shaped stages in
	// declaration order. Empty, never nil, when nothing is approved.
	Approved []registry.StageID `json:"approved"`
	// CurrentStage is the first unapproved stage whose upstream is fully
	// approved, or empty when every stage is approved.
	CurrentStage registry.StageID `json:"current_stage,omitempty"`
	Pains        []PainProgress   `json:"pains"`
}

// PainProgress is SegmentProgress for the pain-shaped stages of one pain.
type PainProgress struct {
	PainID       string             `json:"pain_id"`
	Label        string             `json:"label"`
	Approved     []registry.StageID `json:"approved"`
	CurrentStage registry.StageID   `json:"current_stage,omitempty"`
}

// Pain identifies a pain selected by the segment's approved ranking.
type Pain struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Pains returns the pains of a segment: the approved records of the pain
// scope source flagged top (all records when the source is not a ranking
// stage). A pain's id is the id of the draft row it was approved from, so it
// stays stable across re-approvals.
func (g *Gate) Pains(ctx context.Context, segment ir.Scope) ([]Pain, error) {
	src, ok := g.reg.ScopeSource(ir.ShapePain)
	if !ok {
		return []Pain{}, nil
	}
	recs, err := g.approvals.Approved(ctx, src.ID, segment.Narrow(src.Shape))
	if err != nil {
		return nil, err
	}
	out := make([]Pain, 0, len(recs))
	for _, rec := range recs {
		if src.Ranking && !rec.Top {
			continue
		}
		out = append(out, Pain{ID: rec.SourceDraftID, Label: src.Label(rec.Payload)})
	}
	return out, nil
}

// Progress reports every listed segment of project. Pain stages are
// reported per pain selected by the segment's approved ranking.
func (g *Gate) Progress(ctx context.Context, projectID string, segmentIDs []string) ([]SegmentProgress, error) {
	if projectID == "" {
		return nil, ir.Validation("progress requires a project")
	}
	broad := append(g.reg.StagesWithShape(ir.ShapeProject), g.reg.StagesWithShape(ir.ShapeSegment)...)
	broad = inDeclarationOrder(g.reg, broad)
	painStages := g.reg.StagesWithShape(ir.ShapePain)

	out := make([]SegmentProgress, 0, len(segmentIDs))
	for _, segID := range segmentIDs {
		scope := ir.Scope{ProjectID: projectID, SegmentID: segID}
		approved, current, err := g.walk(ctx, broad, scope)
		if err != nil {
			return nil, err
		}
		sp := SegmentProgress{
			SegmentID:    segID,
			Approved:     approved,
			CurrentStage: current,
			Pains:        []PainProgress{},
		}

		if len(painStages) > 0 {
			pains, err := g.Pains(ctx, scope)
			if err != nil {
				return nil, err
			}
			for _, p := range pains {
				painScope := ir.Scope{ProjectID: projectID, SegmentID: segID, PainID: p.ID}
				approved, current, err := g.walk(ctx, painStages, painScope)
				if err != nil {
					return nil, err
				}
				sp.Pains = append(sp.Pains, PainProgress{
					PainID:       p.ID,
					Label:        p.Label,
					Approved:     approved,
					CurrentStage: current,
				})
			}
		}
		out = append(out, sp)
	}
	return out, nil
}

// walk returns the approved stages among stages and the first unapproved
// stage the gate would let in.
func (g *Gate) walk(ctx context.Context, stages []registry.Stage, scope ir.Scope) ([]registry.StageID, registry.StageID, error) {
	approved := []registry.StageID{}
	var current registry.StageID
	for _, st := range stages {
		ok, err := g.approvals.IsApproved(ctx, st.ID, scope.Narrow(st.Shape))
		if err != nil {
			return nil, "", err
		}
		if ok {
			approved = append(approved, st.ID)
			continue
		}
		if current != "" {
			continue
		}
		d, err := g.CanEnter(ctx, st.ID, scope)
		if err != nil {
			return nil, "", err
		}
		if d.Allowed {
			current = st.ID
		}
	}
	return approved, current, nil
}

func inDeclarationOrder(reg *registry.Registry, stages []registry.Stage) []registry.Stage {
	want := make(map[registry.StageID]bool, len(stages))
	for _, st := range stages {
		want[st.ID] = true
	}
	out := make([]registry.Stage, 0, len(stages))
	for _, st := range reg.Stages() {
		if want[st.ID] {
			out = append(out, st)
		}
	}
	return out
}
