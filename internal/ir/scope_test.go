package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeNarrow(t *testing.T) {
	full := Scope{ProjectID: "p1", SegmentID: "s1", PainID: "x1"}

	assert.Equal(t, Scope{ProjectID: "p1"}, full.Narrow(ShapeProject))
	assert.Equal(t, Scope{ProjectID: "p1", SegmentID: "s1"}, full.Narrow(ShapeSegment))
	assert.Equal(t, full, full.Narrow(ShapePain))
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		shape   Shape
		wantErr bool
	}{
		{"project ok", Scope{ProjectID: "p"}, ShapeProject, false},
		{"missing project", Scope{SegmentID: "s"}, ShapeSegment, true},
		{"segment ok", Scope{ProjectID: "p", SegmentID: "s"}, ShapeSegment, false},
		{"segment missing", Scope{ProjectID: "p"}, ShapeSegment, true},
		{"pain missing", Scope{ProjectID: "p", SegmentID: "s"}, ShapePain, true},
		{"pain ok", Scope{ProjectID: "p", SegmentID: "s", PainID: "x"}, ShapePain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate(tt.shape)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "p=p1", Scope{ProjectID: "p1"}.Key())
	assert.Equal(t, "p=p1/s=s1", Scope{ProjectID: "p1", SegmentID: "s1"}.Key())
	assert.Equal(t, "p=p1/s=s1/x=x1", Scope{ProjectID: "p1", SegmentID: "s1", PainID: "x1"}.Key())
}

func TestShapeDepth(t *testing.T) {
	assert.Less(t, ShapeProject.Depth(), ShapeSegment.Depth())
	assert.Less(t, ShapeSegment.Depth(), ShapePain.Depth())
	assert.False(t, Shape("tenant").Valid())
}
