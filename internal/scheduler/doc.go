// Package scheduler drives the board lifecycle in the background.
//
// A Loop wakes on a fixed interval, classifies the current instant with the
// clock policy, migrates backlog during business hours and closes past boards
// during the closing hour. A failing or panicking tick is logged and the loop
// carries on with the next one.
package scheduler
