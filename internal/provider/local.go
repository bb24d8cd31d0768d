package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

// Local is a deterministic offline provider. The same request always yields
// the same content, which makes it the default for demos and the harness.
//
// Thread-safety: Local is stateless and safe for concurrent use.
type Local struct {
	reg   *registry.Registry
	items int // rows per generation pass
}

// DefaultLocalItems is the row count used when NewLocal gets items <= 0.
const DefaultLocalItems = 3

// NewLocal creates a Local provider for the stages of reg.
func NewLocal(reg *registry.Registry, items int) *Local {
	if items <= 0 {
		items = DefaultLocalItems
	}
	return &Local{reg: reg, items: items}
}

// Generate produces rows keyed by the stage's label field. Ranking stages
// rank the rows of their first upstream stage instead of inventing new
// ones, so the ranked set mirrors what was approved.
func (l *Local) Generate(ctx context.Context, req Request) ([]ir.IRObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := l.reg.Stage(req.Stage)
	if err != nil {
		return nil, err
	}

	if st.Ranking && len(req.Upstream) > 0 {
		return l.rank(st, req.Upstream[0]), nil
	}

	out := make([]ir.IRObject, l.items)
	for i := range out {
		n := i + 1
		out[i] = ir.Obj(
			ir.O(st.LabelKey, ir.IRString(fmt.Sprintf("%s %d", title(st.ID), n))),
			ir.O("description", ir.IRString(fmt.Sprintf("%s %d for %s", title(st.ID), n, req.Scope.Key()))),
		)
	}
	return out, nil
}

func (l *Local) rank(st registry.Stage, up Upstream) []ir.IRObject {
	src, err := l.reg.Stage(up.Stage)
	out := make([]ir.IRObject, 0, len(up.Records))
	for i, rec := range up.Records {
		label := ir.IRString(fmt.Sprintf("%s %d", title(st.ID), i+1))
		if err == nil {
			label = ir.IRString(src.Label(rec.Payload))
		}
		out = append(out, ir.Obj(
			ir.O(st.LabelKey, label),
			ir.O("rank", ir.IRInt(i+1)),
			ir.O("source_id", ir.IRString(rec.SourceDraftID)),
		))
	}
	return out
}

// RegenerateField returns a refreshed value for one field. Strings are
// rewritten; other values are returned unchanged.
func (l *Local) RegenerateField(ctx context.Context, req FieldRequest) (ir.IRValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := req.Current.(ir.IRString)
	if !ok {
		if req.Current == nil {
			return ir.IRString(fmt.Sprintf("new %s", req.Field)), nil
		}
		return ir.CloneValue(req.Current), nil
	}
	text := strings.TrimSuffix(string(current), " (revised)")
	if req.Context != "" {
		text = fmt.Sprintf("%s [%s]", text, req.Context)
	}
	return ir.IRString(text + " (revised)"), nil
}

// TranslateText tags each string with the target language.
func (l *Local) TranslateText(ctx context.Context, texts []string, lang string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = fmt.Sprintf("[%s] %s", lang, t)
	}
	return out, nil
}

func title(id registry.StageID) string {
	words := strings.Split(string(id), "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
