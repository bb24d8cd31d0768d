package translate

import "github.com/roach88/canvaspipe/internal/ir"

// Merge lays translated over original key by key. The result has exactly
// the original's keys: a key the translation lacks keeps its original value
// and a key only the translation has is dropped. Neither input is mutated.
//
// A nil translated (no translation available) yields a copy of original.
func Merge(original, translated ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(original))
	for k, v := range original {
		if tv, ok := translated[k]; ok {
			out[k] = ir.CloneValue(tv)
			continue
		}
		out[k] = ir.CloneValue(v)
	}
	return out
}
