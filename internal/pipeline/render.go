package pipeline

import (
	"context"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/translate"
)

// View is a stage's rows as shown to a user in the selection's language.
type View struct {
	Stage    registry.StageID `json:"stage"`
	Scope    ir.Scope         `json:"scope"`
	Approved bool             `json:"approved"`
	Language string           `json:"language,omitempty"`
	// Keys are the translated fields when only one tab was requested.
	Keys []string  `json:"keys,omitempty"`
	Rows []ViewRow `json:"rows"`
	// Unavailable is set when any row could not be translated and is
	// shown in its original language.
	Unavailable bool `json:"translation_unavailable,omitempty"`
}

// ViewRow is one displayed row.
type ViewRow struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Top        bool        `json:"top,omitempty"`
	Payload    ir.IRObject `json:"payload"`
	Translated bool        `json:"translated,omitempty"`
}

// Render returns the stage's approved records (approved=true) or current
// drafts for the selection, translated into sel.Language when it is not
// the native language. With keys, only those top-level fields are
// translated and the rest keep their original values. Translation failures
// never fail the render.
func (p *Pipeline) Render(ctx context.Context, stage registry.StageID, sel Selection, approved bool, keys ...string) (View, error) {
	st, err := p.reg.Stage(stage)
	if err != nil {
		return View{}, err
	}
	scope := sel.Scope().Narrow(st.Shape)
	view := View{Stage: stage, Scope: scope, Approved: approved, Language: sel.Language, Keys: keys, Rows: []ViewRow{}}

	if approved {
		recs, err := p.approval.Approved(ctx, stage, scope)
		if err != nil {
			return View{}, err
		}
		for _, rec := range recs {
			view.Rows = append(view.Rows, ViewRow{ID: rec.ID, Top: rec.Top, Payload: rec.Payload})
		}
	} else {
		rows, err := p.drafts.List(ctx, stage, scope)
		if err != nil {
			return View{}, err
		}
		for _, row := range rows {
			view.Rows = append(view.Rows, ViewRow{ID: row.ID, Top: row.Top, Payload: row.Payload})
		}
	}

	for i := range view.Rows {
		row := &view.Rows[i]
		if sel.Language != "" {
			out, err := p.translateRow(ctx, row.Payload, sel.Language, scope.Key(), keys)
			if err != nil {
				return View{}, err
			}
			switch {
			case out.Native:
			case out.Unavailable:
				view.Unavailable = true
			default:
				row.Payload = translate.Merge(row.Payload, out.Content)
				row.Translated = true
			}
		}
		row.Label = st.Label(row.Payload)
	}
	return view, nil
}

func (p *Pipeline) translateRow(ctx context.Context, payload ir.IRObject, lang, scopeID string, keys []string) (translate.Outcome, error) {
	if len(keys) > 0 {
		return p.translate.TranslateSubset(ctx, payload, keys, lang, scopeID)
	}
	return p.translate.Translate(ctx, payload, lang, scopeID)
}
