package harness

// TraceEvent is one engine operation, numbered from 1 in call order.
type TraceEvent struct {
	Seq int    `json:"seq"`
	Op  string `json:"op"`
}

// ResultLine is one task outcome as the scenario observed it.
type ResultLine struct {
	Seq       int64  `json:"seq"`
	Array     string `json:"array"`
	Patch     string `json:"patch"`
	Status    string `json:"status"`
	Requested int    `json:"requested"`
	Rendered  int    `json:"rendered"`
	Dropped   int    `json:"dropped"`
	Capacity  int    `json:"capacity"`
	Reconcile string `json:"reconcile,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// RunID identifies the batch in the journal.
	RunID string `json:"run_id"`

	// Trace contains the engine operations in call order.
	Trace []TraceEvent `json:"trace"`

	// Progress contains the percentages delivered to the listener.
	Progress []float64 `json:"progress"`

	// Results contains the task outcomes in render order.
	Results []ResultLine `json:"results"`

	// Arrays holds the final contents of every shared array.
	Arrays map[string][]float32 `json:"-"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Progress: []float64{},
		Results:  []ResultLine{},
		Arrays:   make(map[string][]float32),
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Ops returns the traced operations without sequence numbers.
func (r *Result) Ops() []string {
	ops := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		ops[i] = e.Op
	}
	return ops
}
