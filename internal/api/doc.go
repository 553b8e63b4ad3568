// Package api exposes the board lifecycle over HTTP.
//
// Handlers decode and validate requests, resolve the caller's Actor from the
// context set by the auth middleware, call into the service and migration
// layers, and translate their errors into status codes with safe messages.
// A rejected reorder answers 409 with refetch set so clients reload the board.
package api
