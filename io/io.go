// Package io defines the basic interfaces for observing an emulated 8 bit
// GPIO port. Consumers (reporters, trace recorders, viewers) only ever get
// a read-only view so the port remains the single owner of its registers.
package io

// PortOut8 defines an 8 bit register as seen from outside the port.
type PortOut8 interface {
	// Output returns the current value of all 8 bits.
	Output() uint8
}
