package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/ir"
)

func TestMergeIsTotal(t *testing.T) {
	original := report()
	tests := []struct {
		name       string
		translated ir.IRObject
	}{
		{name: "nil", translated: nil},
		{name: "empty", translated: ir.IRObject{}},
		{name: "one tab", translated: ir.Obj(ir.O("pains", ir.Obj(ir.O("title", ir.IRString("Abwanderung")))))},
		{name: "extra keys", translated: ir.Obj(ir.O("bogus", ir.IRString("x")))},
		{name: "everything", translated: report()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Merge(original, tt.translated)
			assert.ElementsMatch(t, original.SortedKeys(), merged.SortedKeys())
			for _, k := range original.SortedKeys() {
				want := original[k]
				if v, ok := tt.translated[k]; ok {
					want = v
				}
				assert.Equal(t, want, merged[k], k)
			}
		})
	}
	assert.Equal(t, report(), original)
}

func TestMergeDoesNotAlias(t *testing.T) {
	original := report()
	translated := ir.Obj(ir.O("pains", ir.Obj(ir.O("title", ir.IRString("Abwanderung")))))

	merged := Merge(original, translated)
	merged["pains"].(ir.IRObject)["title"] = ir.IRString("changed")
	merged["segments"].(ir.IRArray)[0] = ir.IRString("changed")

	assert.Equal(t, "Abwanderung", translated["pains"].(ir.IRObject).Text("title"))
	assert.Equal(t, report(), original)
}

func TestExtractInjectRoundTrip(t *testing.T) {
	obj := ir.Obj(
		ir.O("b", ir.IRArray{ir.IRString("two"), ir.IRInt(2), ir.IRString("")}),
		ir.O("a", ir.IRString("one")),
		ir.O("c", ir.Obj(ir.O("z", ir.IRString("four")), ir.O("y", ir.IRString("three")))),
		ir.O("d", ir.IRNull{}),
	)

	texts := extractStrings(obj)
	assert.Equal(t, []string{"one", "two", "three", "four"}, texts)

	out, err := inject(obj, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("1"), out["a"])
	assert.Equal(t, ir.IRArray{ir.IRString("2"), ir.IRInt(2), ir.IRString("")}, out["b"])
	assert.Equal(t, "3", out["c"].(ir.IRObject).Text("y"))
	assert.Equal(t, "4", out["c"].(ir.IRObject).Text("z"))
	assert.Equal(t, ir.IRNull{}, out["d"])
	assert.Equal(t, "one", obj.Text("a"), "input untouched")
}

func TestInjectCountMismatch(t *testing.T) {
	obj := ir.Obj(ir.O("a", ir.IRString("one")), ir.O("b", ir.IRString("two")))

	_, err := inject(obj, []string{"1"})
	assert.Error(t, err)
	_, err = inject(obj, []string{"1", "2", "3"})
	assert.Error(t, err)
}
