// Package clock resolves "now" for the engine and classifies it into the
// operational windows that drive the scheduler.
//
// All time reads go through the Clock interface so that tests can substitute
// a FakeClock and step time forward deterministically.
package clock
