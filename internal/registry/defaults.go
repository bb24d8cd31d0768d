package registry

import "github.com/roach88/canvaspipe/internal/ir"

// Stage ids of the built-in pipeline.
const (
	Segments             StageID = "segments"
	Jobs                 StageID = "jobs"
	Preferences          StageID = "preferences"
	Difficulties         StageID = "difficulties"
	Triggers             StageID = "triggers"
	Pains                StageID = "pains"
	PainsRanking         StageID = "pains-ranking"
	Canvas               StageID = "canvas"
	CanvasExtended       StageID = "canvas-extended"
	StrategySummary      StageID = "strategy-summary"
	StrategyPersonalized StageID = "strategy-personalized"
	StrategyGlobal       StageID = "strategy-global"
	StrategyAds          StageID = "strategy-ads"
	UGCProfiles          StageID = "ugc-profiles"
)

// DefaultStages is the built-in stage table in pipeline order.
//
// Approving pains is what unlocks pains-ranking; the four research stages
// gate pain generation. Canvas and everything after it is per pain and is
// unlocked by the segment's approved ranking.
func DefaultStages() []Stage {
	return []Stage{
		{ID: Segments, Shape: ir.ShapeProject, LabelKey: "name"},
		{ID: Jobs, Shape: ir.ShapeSegment, Upstream: []StageID{Segments}, LabelKey: "job"},
		{ID: Preferences, Shape: ir.ShapeSegment, Upstream: []StageID{Segments}, LabelKey: "preference"},
		{ID: Difficulties, Shape: ir.ShapeSegment, Upstream: []StageID{Segments}, LabelKey: "difficulty"},
		{ID: Triggers, Shape: ir.ShapeSegment, Upstream: []StageID{Segments}, LabelKey: "trigger"},
		{
			ID:       Pains,
			Shape:    ir.ShapeSegment,
			Upstream: []StageID{Jobs, Preferences, Difficulties, Triggers},
			Insert:   InsertAugment,
			LabelKey: "name",
		},
		{ID: PainsRanking, Shape: ir.ShapeSegment, Upstream: []StageID{Pains}, Ranking: true, LabelKey: "name"},
		{ID: Canvas, Shape: ir.ShapePain, Upstream: []StageID{PainsRanking}, LabelKey: "title"},
		{ID: CanvasExtended, Shape: ir.ShapePain, Upstream: []StageID{Canvas}, LabelKey: "title"},
		{ID: StrategySummary, Shape: ir.ShapePain, Upstream: []StageID{CanvasExtended}, LabelKey: "summary"},
		{ID: StrategyPersonalized, Shape: ir.ShapePain, Upstream: []StageID{StrategySummary}, LabelKey: "title"},
		{ID: StrategyGlobal, Shape: ir.ShapePain, Upstream: []StageID{StrategySummary}, LabelKey: "title"},
		{ID: StrategyAds, Shape: ir.ShapePain, Upstream: []StageID{StrategyGlobal}, LabelKey: "headline"},
		{ID: UGCProfiles, Shape: ir.ShapeSegment, Upstream: []StageID{PainsRanking}, Insert: InsertAugment, LabelKey: "name"},
	}
}

// Default returns the validated built-in registry.
// It panics if the built-in table is invalid, which only a code change can cause.
func Default() *Registry {
	return MustNew(DefaultStages()...)
}
