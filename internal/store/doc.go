// Package store defines interfaces for board and task persistence.
// These interfaces abstract the underlying record store from the engine's
// core logic, so planners, executors and services stay independent of the
// database technology behind them.
package store
