package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// ScopeResult is the outcome of one iteration of a batch.
type ScopeResult struct {
	Scope ir.Scope `json:"scope"`
	Rows  int      `json:"rows"`
	Err   error    `json:"-"`
	// Error mirrors Err for JSON output.
	Error string `json:"error,omitempty"`
}

// BatchReport collects the per-scope outcomes of GenerateAll or ApproveAll.
// Scopes are processed one after another; a failure never undoes the
// scopes before it.
type BatchReport struct {
	Stage   registry.StageID `json:"stage"`
	Results []ScopeResult    `json:"results"`
}

// Succeeded counts scopes that completed.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error.
func (r BatchReport) Failed() []ScopeResult {
	out := []ScopeResult{}
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins every per-scope error, or returns nil.
func (r BatchReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Scope.Key(), res.Err))
		}
	}
	return errors.Join(errs...)
}

func (r *BatchReport) add(scope ir.Scope, rows int, err error) {
	res := ScopeResult{Scope: scope, Rows: rows, Err: err}
	if err != nil {
		res.Error = err.Error()
	}
	r.Results = append(r.Results, res)
}

// GenerateAll runs Generate for a segment-shaped stage in each segment. An
// empty segmentIDs means the project's approved segments. Cancellation stops
// the loop; the report holds the segments handled so far.
func (p *Pipeline) GenerateAll(ctx context.Context, stage registry.StageID, sel Selection, segmentIDs []string) (BatchReport, error) {
	report := BatchReport{Stage: stage, Results: []ScopeResult{}}
	segmentIDs, err := p.batchSegments(ctx, stage, sel, segmentIDs)
	if err != nil {
		return report, err
	}
	for _, seg := range segmentIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s := sel.WithSegment(seg)
		rows, err := p.Generate(ctx, stage, s)
		report.add(s.Scope(), len(rows), err)
	}
	p.logBatch("generate all", report)
	return report, nil
}

// ApproveAll approves every current draft of a segment-shaped stage in each
// segment. An empty segmentIDs means the project's approved segments.
func (p *Pipeline) ApproveAll(ctx context.Context, stage registry.StageID, sel Selection, segmentIDs []string) (BatchReport, error) {
	report := BatchReport{Stage: stage, Results: []ScopeResult{}}
	segmentIDs, err := p.batchSegments(ctx, stage, sel, segmentIDs)
	if err != nil {
		return report, err
	}
	for _, seg := range segmentIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s := sel.WithSegment(seg)
		res, err := p.ApproveCurrent(ctx, stage, s)
		report.add(s.Scope(), len(res.Records), err)
	}
	p.logBatch("approve all", report)
	return report, nil
}

// batchSegments checks that stage is segment-shaped and resolves the
// segments a batch runs over.
func (p *Pipeline) batchSegments(ctx context.Context, stage registry.StageID, sel Selection, segmentIDs []string) ([]string, error) {
	st, err := p.reg.Stage(stage)
	if err != nil {
		return nil, err
	}
	if st.Shape != ir.ShapeSegment {
		return nil, ir.Validation(fmt.Sprintf("batch runs need a segment-scoped stage; %s is %s-scoped", stage, st.Shape)).
			WithStage(string(stage), sel.Scope().Narrow(ir.ShapeProject))
	}
	if sel.ProjectID == "" {
		return nil, ir.Validation("batch runs require a project").WithStage(string(stage), sel.Scope())
	}
	if len(segmentIDs) > 0 {
		return segmentIDs, nil
	}
	segs, err := p.Segments(ctx, sel.ProjectID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(segs))
	for i, seg := range segs {
		ids[i] = seg.ID
	}
	return ids, nil
}

func (p *Pipeline) logBatch(op string, r BatchReport) {
	outcome := "complete"
	if len(r.Failed()) > 0 {
		outcome = "partial"
	}
	p.logger.Info(op,
		"stage", r.Stage,
		"scopes", len(r.Results),
		"succeeded", r.Succeeded(),
		"outcome", outcome,
	)
}
