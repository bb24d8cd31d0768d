package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/canvaspipe/internal/ir"
)

const timeLayout = time.RFC3339Nano

// marshalPayload converts IRObject to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalPayload(payload ir.IRObject) (string, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps integers exact via json.Number.
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// scopeArgs returns the (project, segment, pain) column values of a scope.
func scopeArgs(scope ir.Scope) []any {
	return []any{scope.ProjectID, scope.SegmentID, scope.PainID}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
