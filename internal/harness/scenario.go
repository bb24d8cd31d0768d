package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted walk through the pipeline.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Stages is an optional CUE stage table, relative to the scenario file.
	// Empty means the built-in table.
	Stages string `yaml:"stages,omitempty"`

	// Project is the project id every step runs under.
	Project string `yaml:"project"`

	// Items is the number of rows the local generator produces per call.
	Items int `yaml:"items,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one pipeline operation.
type Step struct {
	Op    string `yaml:"op"`
	Stage string `yaml:"stage"`

	// Segment and Pain pick the scope by 1-based position; 0 leaves the
	// level unset.
	Segment int `yaml:"segment,omitempty"`
	Pain    int `yaml:"pain,omitempty"`

	// Rows are 1-based positions in the current draft listing.
	Rows []int `yaml:"rows,omitempty"`

	Fields   map[string]any `yaml:"fields,omitempty"`
	Field    string         `yaml:"field,omitempty"`
	Context  string         `yaml:"context,omitempty"`
	Top      *bool          `yaml:"top,omitempty"`
	Lang     string         `yaml:"lang,omitempty"`
	Approved bool           `yaml:"approved,omitempty"`

	// Expect is checked after the step runs. Nil means the step must
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Outcome is "ok", "blocked" or an error code such as "VALIDATION".
	Outcome  string `yaml:"outcome"`
	Rows     *int   `yaml:"rows,omitempty"`
	Blocking string `yaml:"blocking,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// Assertion validates the trace or the final store state.
type Assertion struct {
	Type string `yaml:"type"`

	// Op, Stage and Outcome filter trace events (trace_contains,
	// trace_count). Stage also names the final_state stage.
	Op      string `yaml:"op,omitempty"`
	Stage   string `yaml:"stage,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected order of "op:stage" entries (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Table is "drafts" or "approved" (final_state).
	Table   string       `yaml:"table,omitempty"`
	Segment int          `yaml:"segment,omitempty"`
	Pain    int          `yaml:"pain,omitempty"`
	Expect  *StateExpect `yaml:"expect,omitempty"`
}

// StateExpect is the expected content of a drafts or approved listing.
type StateExpect struct {
	Count  *int     `yaml:"count,omitempty"`
	Top    *int     `yaml:"top,omitempty"`
	Labels []string `yaml:"labels,omitempty"`
}

// Step operations.
const (
	OpGenerate   = "generate"
	OpApprove    = "approve"
	OpRevoke     = "revoke"
	OpTop        = "top"
	OpPatch      = "patch"
	OpDelete     = "delete"
	OpRegenerate = "regenerate"
	OpRender     = "render"
	OpCanEnter   = "can_enter"
)

var validOps = map[string]bool{
	OpGenerate: true, OpApprove: true, OpRevoke: true, OpTop: true, OpPatch: true,
	OpDelete: true, OpRegenerate: true, OpRender: true, OpCanEnter: true,
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Final state tables.
const (
	TableDrafts   = "drafts"
	TableApproved = "approved"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// errors, and a relative stages path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if scenario.Stages != "" && !filepath.IsAbs(scenario.Stages) {
		scenario.Stages = filepath.Join(filepath.Dir(path), scenario.Stages)
	}
	if scenario.Stages != "" {
		if _, err := os.Stat(scenario.Stages); err != nil {
			return nil, fmt.Errorf("%s: stage table: %w", path, err)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project is required")
	}
	if s.Items < 0 {
		return fmt.Errorf("items must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if !validOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	if step.Stage == "" {
		return fmt.Errorf("steps[%d]: stage is required", i)
	}
	if step.Segment < 0 || step.Pain < 0 {
		return fmt.Errorf("steps[%d]: segment and pain positions start at 1", i)
	}
	if step.Pain > 0 && step.Segment == 0 {
		return fmt.Errorf("steps[%d]: pain requires segment", i)
	}
	for _, r := range step.Rows {
		if r < 1 {
			return fmt.Errorf("steps[%d]: row positions start at 1", i)
		}
	}

	switch step.Op {
	case OpTop, OpDelete:
		if len(step.Rows) == 0 {
			return fmt.Errorf("steps[%d]: %s requires rows", i, step.Op)
		}
	case OpPatch:
		if len(step.Rows) != 1 || len(step.Fields) == 0 {
			return fmt.Errorf("steps[%d]: patch requires exactly one row and fields", i)
		}
	case OpRegenerate:
		if len(step.Rows) != 1 || step.Field == "" {
			return fmt.Errorf("steps[%d]: regenerate requires exactly one row and a field", i)
		}
	}

	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("steps[%d].expect: outcome is required", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
		for _, op := range a.Ops {
			if !strings.Contains(op, ":") {
				return fmt.Errorf("assertions[%d]: trace_order entry %q must be op:stage", index, op)
			}
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table != TableDrafts && a.Table != TableApproved {
			return fmt.Errorf("assertions[%d]: table must be %q or %q for final_state", index, TableDrafts, TableApproved)
		}
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
