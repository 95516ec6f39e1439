// Package harness runs bake scenarios against fake engines.
//
// A scenario declares the shared tables, the engine faults to inject and the
// tasks to bake, then asserts on the recorded engine operations and on the
// rows the batch wrote to the journal.
//
// # Scenario Format
//
//	name: lifo_reconcile
//	description: "Most recent task bakes first; short arrays overflow"
//	order: lifo
//	tables:
//	  - {name: kick, size: 192, fill: 9}
//	faults:
//	  open_errors: [snare]
//	tasks:
//	  - {patch: kick, array: kick, sample_rate: 128, duration: 1, value: 0.5}
//	assertions:
//	  - type: trace_order
//	    ops: ["pause", "open kick", "resume"]
//	  - type: final_state
//	    table: bake_results
//	    where: { array_name: kick }
//	    expect: { reconcile: zero_fill }
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: a journal row matches the expected columns
//   - array_state: a shared array has the expected length and samples
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id, a logical clock starting at zero
// and an in-memory SQLite journal. The worker is the only caller of the fake
// engines, so the operation trace is identical across runs and is compared
// against golden files in testdata/golden.
package harness
