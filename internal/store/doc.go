// Package store provides SQLite-backed durable storage for bake runs.
//
// The journal is append-only:
//   - bake_runs: one row per batch, moved from running to completed
//   - bake_results: one row per task, in render order
//
// # Ordering
//
// All ordering uses seq INTEGER (the scheduler's logical clock), never
// timestamps. Results are read back ORDER BY seq ASC so two journals of
// the same batch list tasks identically.
//
// # Idempotency
//
//   - BeginRun: ON CONFLICT(id) DO NOTHING
//   - RecordTask: UNIQUE(run_id, seq), ON CONFLICT DO NOTHING
//
// # Database Configuration
//
//   - WAL mode: history can be read while a batch is recording
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: results must reference a begun run
package store
