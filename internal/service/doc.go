// Package service contains the board lifecycle use cases that sit between the
// HTTP and CLI surfaces and the record store.
//
// It owns three components:
//
//   - BoardService: today's board, board listings, task creation, status
//     transitions and task history, all checked against the caller's Actor.
//   - Closer: closes every active board dated before a given day.
//   - Reconciler: applies a client-proposed status or position change and
//     tells the caller to refetch when the change cannot be persisted.
//
// Services depend on the store interfaces and never on a concrete backend.
// Multi-step mutations run through store.Transactor so a failure leaves no
// partial writes behind.
package service
