package harness

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// DefaultRunID is used when a scenario does not set run_id.
const DefaultRunID = "scenario-run"

// Scenario defines a bake scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Order is "lifo" (default) or "fifo".
	Order string `yaml:"order,omitempty"`

	// Remote runs the scheduler in remote mode and makes the shared engine
	// unable to report array sizes.
	Remote bool `yaml:"remote,omitempty"`

	// BlockSize overrides the fake renderer's block size.
	BlockSize int `yaml:"block_size,omitempty"`

	// RunID is a fixed run id for deterministic journals.
	RunID string `yaml:"run_id,omitempty"`

	// Tables are declared on the shared engine before the batch starts.
	Tables []TableSpec `yaml:"tables,omitempty"`

	// Faults are injected into the fake engines.
	Faults Faults `yaml:"faults,omitempty"`

	// Tasks are submitted in order.
	Tasks []TaskStep `yaml:"tasks"`

	// Assertions validate the trace, the journal and the arrays.
	Assertions []Assertion `yaml:"assertions"`
}

// TableSpec declares a shared array.
type TableSpec struct {
	Name string  `yaml:"name"`
	Size int     `yaml:"size"`
	Fill float32 `yaml:"fill,omitempty"`
}

// Faults selects the engine calls that fail.
type Faults struct {
	// OpenErrors lists patches that fail to open.
	OpenErrors []string `yaml:"open_errors,omitempty"`

	// RenderCodes maps patches to a non-zero render status.
	RenderCodes map[string]int `yaml:"render_codes,omitempty"`

	// ConfigureError makes every offline configuration fail.
	ConfigureError string `yaml:"configure_error,omitempty"`

	// SizeErrors lists arrays whose size query fails.
	SizeErrors []string `yaml:"size_errors,omitempty"`

	// WriteErrors lists arrays that reject writes.
	WriteErrors []string `yaml:"write_errors,omitempty"`
}

// TaskStep is one task to submit.
type TaskStep struct {
	Patch      string  `yaml:"patch"`
	Array      string  `yaml:"array"`
	SampleRate int     `yaml:"sample_rate"`
	Duration   float64 `yaml:"duration"`

	// Value is the constant sample the fake renderer produces for the patch.
	// Defaults to 1.
	Value *float32 `yaml:"value,omitempty"`
}

// Assertion validates trace, journal or array state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Op appears in the trace
	// - "trace_order": Ops appear in order
	// - "trace_count": Op appears exactly Count times
	// - "final_state": query a journal table and verify expected columns
	// - "array_state": check the length and samples of Array
	Type string `yaml:"type"`

	// Op is an engine operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the journal table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Array is the shared array name (array_state).
	Array string `yaml:"array,omitempty"`

	// Length is the expected array length (array_state).
	Length *int `yaml:"length,omitempty"`

	// Samples maps indexes to expected sample values (array_state).
	Samples map[int]float32 `yaml:"samples,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertArrayState    = "array_state"
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

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
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

// runID returns the scenario run id, falling back to DefaultRunID.
func (s *Scenario) runID() string {
	if s.RunID != "" {
		return s.RunID
	}
	return DefaultRunID
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, ok := bake.ParseOrder(s.Order); !ok {
		return fmt.Errorf("order must be lifo or fifo, got %q", s.Order)
	}

	if s.BlockSize < 0 {
		return fmt.Errorf("block_size must not be negative")
	}

	if len(s.Tasks) == 0 {
		return fmt.Errorf("tasks list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, tbl := range s.Tables {
		if tbl.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if tbl.Size < 0 {
			return fmt.Errorf("tables[%d]: size must not be negative", i)
		}
	}

	for i, task := range s.Tasks {
		if task.Patch == "" {
			return fmt.Errorf("tasks[%d]: patch is required", i)
		}
		if task.Array == "" {
			return fmt.Errorf("tasks[%d]: array is required", i)
		}
		if task.SampleRate <= 0 {
			return fmt.Errorf("tasks[%d]: sample_rate must be positive", i)
		}
		if task.Duration < 0 || math.IsNaN(task.Duration) || math.IsInf(task.Duration, 0) {
			return fmt.Errorf("tasks[%d]: duration must be a non-negative number", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
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
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertArrayState:
		if a.Array == "" {
			return fmt.Errorf("assertions[%d]: array is required for array_state", index)
		}
		if a.Length == nil && len(a.Samples) == 0 {
			return fmt.Errorf("assertions[%d]: length or samples is required for array_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
