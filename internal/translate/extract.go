package translate

import (
	"fmt"

	"github.com/roach88/canvaspipe/internal/ir"
)

// extractStrings collects every non-empty string leaf of obj in walk order:
// object keys sorted, arrays in index order. The same payload always yields
// the same sequence, which is what lets inject put translations back.
func extractStrings(obj ir.IRObject) []string {
	var out []string
	var walk func(v ir.IRValue)
	walk = func(v ir.IRValue) {
		switch t := v.(type) {
		case ir.IRString:
			if t != "" {
				out = append(out, string(t))
			}
		case ir.IRArray:
			for _, item := range t {
				walk(item)
			}
		case ir.IRObject:
			for _, k := range t.SortedKeys() {
				walk(t[k])
			}
		}
	}
	walk(obj)
	return out
}

// inject returns a copy of obj with its string leaves replaced, in
// extractStrings order, by texts. Non-string leaves and empty strings are
// kept as they are.
func inject(obj ir.IRObject, texts []string) (ir.IRObject, error) {
	next, short := 0, false
	var walk func(v ir.IRValue) ir.IRValue
	walk = func(v ir.IRValue) ir.IRValue {
		switch t := v.(type) {
		case ir.IRString:
			if t == "" {
				return t
			}
			if next >= len(texts) {
				short = true
				return t
			}
			s := texts[next]
			next++
			return ir.IRString(s)
		case ir.IRArray:
			arr := make(ir.IRArray, len(t))
			for i, item := range t {
				arr[i] = walk(item)
			}
			return arr
		case ir.IRObject:
			o := make(ir.IRObject, len(t))
			for _, k := range t.SortedKeys() {
				o[k] = walk(t[k])
			}
			return o
		default:
			return ir.CloneValue(v)
		}
	}
	out := walk(obj).(ir.IRObject)
	if short || next != len(texts) {
		return nil, fmt.Errorf("inject: used %d of %d translated strings", next, len(texts))
	}
	return out, nil
}
