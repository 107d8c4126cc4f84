package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sigsync/internal/ir"
)

// RootPlaceholder stands for ir.RootID in scenario files.
const RootPlaceholder = "$root"

// Scenario is a scripted command sequence against one signal.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is the starting ROOT value. Nil starts a list signal.
	Initial any `yaml:"initial,omitempty"`

	// Capacity is the history capacity. Zero uses the default.
	Capacity int `yaml:"capacity,omitempty"`

	// Steps are submitted in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step submits one event.
type Step struct {
	// ID is the event id. Empty submits an event without one.
	ID string `yaml:"id,omitempty"`

	// Command holds the command fields of the wire event.
	Command map[string]any `yaml:"command,omitempty"`

	// Wire is raw wire text sent as-is instead of Command.
	Wire string `yaml:"wire,omitempty"`

	// ExpectError is the protocol error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectDrop is the reason the command must be dropped for.
	ExpectDrop string `yaml:"expect_drop,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entry is the entry id (entry_value, entry_missing).
	Entry string `yaml:"entry,omitempty"`

	// List is the list root id (list_order). Defaults to ROOT.
	List string `yaml:"list,omitempty"`

	// Value is the expected value (entry_value, root_value).
	Value any `yaml:"value,omitempty"`

	// Order is the expected child order (list_order).
	Order []string `yaml:"order,omitempty"`

	// Count is the expected count (entry_count, drop_count).
	Count *int `yaml:"count,omitempty"`

	// Reason is the drop reason (drop_count).
	Reason string `yaml:"reason,omitempty"`
}

// Assertion type constants.
const (
	AssertEntryValue   = "entry_value"
	AssertEntryMissing = "entry_missing"
	AssertListOrder    = "list_order"
	AssertEntryCount   = "entry_count"
	AssertRootValue    = "root_value"
	AssertDropCount    = "drop_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" vs "assertions:" typos fail loudly.
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

// FindScenarios returns the scenario files under path, sorted. A file path
// is returned as-is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(p); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Wire != "" && step.Command != nil {
			return fmt.Errorf("steps[%d]: command and wire are mutually exclusive", i)
		}
		if step.Wire == "" && step.Command == nil {
			return fmt.Errorf("steps[%d]: command or wire is required", i)
		}
		if step.ExpectError != "" && step.ExpectDrop != "" {
			return fmt.Errorf("steps[%d]: expect_error and expect_drop are mutually exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEntryValue, AssertEntryMissing:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for %s", index, a.Type)
		}
	case AssertListOrder:
		if a.Order == nil {
			return fmt.Errorf("assertions[%d]: order is required for list_order", index)
		}
	case AssertEntryCount:
		if a.Count == nil || *a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for entry_count", index)
		}
	case AssertRootValue:
	case AssertDropCount:
		if a.Reason == "" {
			return fmt.Errorf("assertions[%d]: reason is required for drop_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for drop_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// wire builds the wire text of a step.
func (s Step) wire() (string, error) {
	if s.Wire != "" {
		return expandRoot(s.Wire), nil
	}

	fields := expandValue(s.Command).(map[string]any)
	if s.ID != "" {
		fields["id"] = s.ID
	}
	v, err := ir.NewValue(fields)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// initialValue converts the scenario's initial ROOT value.
func (s *Scenario) initialValue() (ir.Value, error) {
	if s.Initial == nil {
		return nil, nil
	}
	return ir.NewValue(expandValue(s.Initial))
}

func expandRoot(s string) string {
	return strings.ReplaceAll(s, RootPlaceholder, ir.RootID)
}

// expandValue deep-copies a decoded YAML value, replacing every string equal
// to the root placeholder.
func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		if val == RootPlaceholder {
			return ir.RootID
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = expandValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = expandValue(elem)
		}
		return out
	default:
		return v
	}
}

// expandID resolves the root placeholder in an id field.
func expandID(id string) string {
	if id == RootPlaceholder {
		return ir.RootID
	}
	return id
}
