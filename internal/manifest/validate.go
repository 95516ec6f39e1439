package manifest

import (
	"fmt"
	"math"

	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// Validate checks the manifest after defaults are applied.
// Task rules match the scheduler's own Submit checks, so a valid manifest
// never has a task rejected at Submit.
func (m *Manifest) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := bake.ParseOrder(m.Order); !ok {
		add("order", "must be lifo or fifo, got %q", m.Order)
	}
	if m.SampleRate <= 0 {
		add("sample_rate", "must be positive, got %d", m.SampleRate)
	}

	seen := make(map[string]bool, len(m.Tables))
	for i, t := range m.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		if t.Name == "" {
			add(field+".name", "is required")
			continue
		}
		if seen[t.Name] {
			add(field+".name", "duplicate table %q", t.Name)
		}
		seen[t.Name] = true
		if t.Size < 0 {
			add(field+".size", "must not be negative, got %d", t.Size)
		}
	}

	for i, t := range m.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.Patch == "" {
			add(field+".patch", "is required")
		}
		if t.Array == "" {
			add(field+".array", "is required")
		}
		if t.SampleRate < 0 {
			add(field+".sample_rate", "must be positive, got %d", t.SampleRate)
		}
		if t.Duration < 0 || math.IsNaN(t.Duration) || math.IsInf(t.Duration, 0) {
			add(field+".duration", "must be a non-negative number, got %v", t.Duration)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
