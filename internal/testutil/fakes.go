package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/registry"
)

// FakeGenerator is a scripted provider.Generator.
//
// Stages listed in Items return those payloads (cloned); other stages get
// two rows labeled "<stage> 1" and "<stage> 2" under the "name" key.
// Errors in Fail are returned for their stage.
type FakeGenerator struct {
	mu       sync.Mutex
	Items    map[registry.StageID][]ir.IRObject
	Fail     map[registry.StageID]error
	requests []provider.Request
}

// NewFakeGenerator creates an empty FakeGenerator.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{
		Items: make(map[registry.StageID][]ir.IRObject),
		Fail:  make(map[registry.StageID]error),
	}
}

// Generate implements provider.Generator.
func (g *FakeGenerator) Generate(ctx context.Context, req provider.Request) ([]ir.IRObject, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.Fail[req.Stage]; err != nil {
		return nil, err
	}
	if items, ok := g.Items[req.Stage]; ok {
		out := make([]ir.IRObject, len(items))
		for i, item := range items {
			out[i] = item.Clone()
		}
		return out, nil
	}
	return []ir.IRObject{
		ir.Obj(ir.O("name", ir.IRString(fmt.Sprintf("%s 1", req.Stage)))),
		ir.Obj(ir.O("name", ir.IRString(fmt.Sprintf("%s 2", req.Stage)))),
	}, nil
}

// Requests returns a copy of every request received.
func (g *FakeGenerator) Requests() []provider.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.Request(nil), g.requests...)
}

// FakeFieldGenerator is a scripted provider.FieldGenerator.
//
// Values maps field name to the value returned; unknown fields get
// "<field> regenerated". When Block is non-nil each call waits for it to
// be closed (or ctx to end) before answering.
type FakeFieldGenerator struct {
	mu     sync.Mutex
	Values map[string]ir.IRValue
	Err    error
	Block  chan struct{}
	calls  []provider.FieldRequest
}

// NewFakeFieldGenerator creates an empty FakeFieldGenerator.
func NewFakeFieldGenerator() *FakeFieldGenerator {
	return &FakeFieldGenerator{Values: make(map[string]ir.IRValue)}
}

// RegenerateField implements provider.FieldGenerator.
func (g *FakeFieldGenerator) RegenerateField(ctx context.Context, req provider.FieldRequest) (ir.IRValue, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	block, err := g.Block, g.Err
	value, ok := g.Values[req.Field]
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if ok {
		return ir.CloneValue(value), nil
	}
	return ir.IRString(req.Field + " regenerated"), nil
}

// Calls returns a copy of every request received.
func (g *FakeFieldGenerator) Calls() []provider.FieldRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.FieldRequest(nil), g.calls...)
}

// FakeTranslator is a provider.Translator that prefixes every string with
// "<lang>:". It counts calls so cache tests can assert whether the provider
// was consulted.
type FakeTranslator struct {
	mu    sync.Mutex
	Err   error
	calls int
	texts [][]string
}

// NewFakeTranslator creates a FakeTranslator.
func NewFakeTranslator() *FakeTranslator {
	return &FakeTranslator{}
}

// TranslateText implements provider.Translator.
func (f *FakeTranslator) TranslateText(ctx context.Context, texts []string, lang string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, append([]string(nil), texts...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = lang + ":" + t
	}
	return out, nil
}

// SetErr changes the error returned by later calls.
func (f *FakeTranslator) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Calls returns how many times TranslateText was invoked.
func (f *FakeTranslator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Texts returns the batches received, in call order.
func (f *FakeTranslator) Texts() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.texts...)
}
