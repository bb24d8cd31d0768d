// Package provider defines the contracts of the external content services
// (stage generator, field regenerator, translator) and ships two
// implementations: Local, a deterministic offline provider, and HTTP, a
// JSON-over-HTTP client for a hosted model gateway.
package provider

import (
	"context"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// Upstream is the approved content of one upstream stage, handed to the
// generator as context.
type Upstream struct {
	Stage   registry.StageID    `json:"stage"`
	Scope   ir.Scope            `json:"scope"`
	Records []ir.ApprovedRecord `json:"records"`
}

// Request asks for one generation pass of a stage.
type Request struct {
	Stage    registry.StageID `json:"stage"`
	Scope    ir.Scope         `json:"scope"`
	Language string           `json:"language,omitempty"`
	Upstream []Upstream       `json:"upstream"`
}

// Generator produces a stage's rows for a scope.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]ir.IRObject, error)
}

// FieldRequest asks for a new value of one payload field.
type FieldRequest struct {
	Stage   registry.StageID `json:"stage"`
	Field   string           `json:"field"`
	Current ir.IRValue       `json:"current"`
	Context string           `json:"context,omitempty"`
	Payload ir.IRObject      `json:"payload"`
}

// FieldGenerator regenerates a single field.
type FieldGenerator interface {
	RegenerateField(ctx context.Context, req FieldRequest) (ir.IRValue, error)
}

// Translator translates a batch of strings. The result has one entry per
// input, in input order.
type Translator interface {
	TranslateText(ctx context.Context, texts []string, lang string) ([]string, error)
}
