// Package domain defines the core entities of the daily task board engine:
// per-owner, per-day boards, the tasks that live on them, and the state
// machine that governs task status changes.
//
// Entities in this package are plain values. They validate themselves and
// compute their next state, but never persist anything; storage is the job
// of the store package and its platform implementations.
package domain
