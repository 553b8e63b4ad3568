// Package migration carries unfinished work forward across day boundaries.
//
// The Planner computes, read-only, which pending and in-progress tasks on an
// owner's earlier boards belong on a target date. The Executor applies a plan:
// it ensures the target board exists, clones each task onto it and retires
// the original, one transaction per task. Runs are deduplicated through a
// ledger.Ledger, retried on transient failures, and tolerate per-task
// failures by reporting them in the Result rather than aborting.
package migration
