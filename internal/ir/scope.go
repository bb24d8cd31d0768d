package ir

import (
	"fmt"
	"strings"
)

// Shape names which scope components a stage's data is keyed by.
type Shape string

const (
	// ShapeProject scopes data to a project only.
	ShapeProject Shape = "project"
	// ShapeSegment scopes data to project x segment.
	ShapeSegment Shape = "segment"
	// ShapePain scopes data to project x segment x pain.
	ShapePain Shape = "pain"
)

// ValidShapes lists the allowed shapes in narrowing order.
var ValidShapes = []Shape{ShapeProject, ShapeSegment, ShapePain}

// Depth orders shapes: project 0, segment 1, pain 2, unknown -1.
func (s Shape) Depth() int {
	switch s {
	case ShapeProject:
		return 0
	case ShapeSegment:
		return 1
	case ShapePain:
		return 2
	}
	return -1
}

// Valid reports whether s is one of ValidShapes.
func (s Shape) Valid() bool {
	return s.Depth() >= 0
}

// Scope is the (project, segment?, pain?) tuple narrowing a stage's data.
// Absent components are empty strings.
type Scope struct {
	ProjectID string `json:"project_id" yaml:"project"`
	SegmentID string `json:"segment_id,omitempty" yaml:"segment,omitempty"`
	PainID    string `json:"pain_id,omitempty" yaml:"pain,omitempty"`
}

// Narrow drops the components a shape does not use. A pain-shaped stage's
// upstream check on a segment-shaped stage looks at Narrow(ShapeSegment).
func (s Scope) Narrow(shape Shape) Scope {
	switch shape {
	case ShapeProject:
		return Scope{ProjectID: s.ProjectID}
	case ShapeSegment:
		return Scope{ProjectID: s.ProjectID, SegmentID: s.SegmentID}
	default:
		return s
	}
}

// Validate checks that every component the shape requires is present.
func (s Scope) Validate(shape Shape) error {
	if s.ProjectID == "" {
		return Validation("scope requires a project")
	}
	if shape.Depth() >= ShapeSegment.Depth() && s.SegmentID == "" {
		return Validation(fmt.Sprintf("%s-scoped stage requires a segment", shape))
	}
	if shape == ShapePain && s.PainID == "" {
		return Validation("pain-scoped stage requires a pain")
	}
	return nil
}

// Key is a stable string form used for logging and translation cache keys.
func (s Scope) Key() string {
	parts := []string{"p=" + s.ProjectID}
	if s.SegmentID != "" {
		parts = append(parts, "s="+s.SegmentID)
	}
	if s.PainID != "" {
		parts = append(parts, "x="+s.PainID)
	}
	return strings.Join(parts, "/")
}

func (s Scope) String() string {
	return s.Key()
}
