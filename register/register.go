// Package register implements a single 8 bit hardware register (such as PORTB or
// a data direction register) along with the bit level accessors that are the only
// way to mutate it. Every write touches exactly one bit and the stored byte is
// replaced in a single step so a snapshot always reflects what the pins would show.
package register

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jmchacon/gpio/io"
)

// Width is the number of bits (and therefore valid pin indices) in a register.
const Width = 8

var (
	// ErrInvalidPin is returned for any pin index outside [0, Width).
	ErrInvalidPin = errors.New("invalid pin")
	// ErrInvalidValue is returned when writing a bit value other than 0 or 1.
	ErrInvalidValue = errors.New("invalid bit value")
)

var _ = io.PortOut8(&Register{})

// Register is an 8 bit storage cell. The zero value is a usable register named ""
// holding 0x00.
type Register struct {
	name    string
	initial uint8 // Value restored on PowerOn().
	data    uint8
}

// New returns a register with the given name holding init.
func New(name string, init uint8) *Register {
	return &Register{
		name:    name,
		initial: init,
		data:    init,
	}
}

// ValidPin returns ErrInvalidPin (wrapped with the offending index) if pin can't
// address a bit in a register.
func ValidPin(pin int) error {
	if pin < 0 || pin >= Width {
		return errors.Wrapf(ErrInvalidPin, "pin %d not in [0,%d]", pin, Width-1)
	}
	return nil
}

// Name returns the name given at creation.
func (r *Register) Name() string {
	return r.name
}

// PowerOn resets the register to its initial value.
func (r *Register) PowerOn() {
	r.data = r.initial
}

// Output implements io.PortOut8 and returns a snapshot of the whole register.
func (r *Register) Output() uint8 {
	return r.data
}

// ReadBit returns bit pin of the register as 0 or 1.
func (r *Register) ReadBit(pin int) (uint8, error) {
	if err := ValidPin(pin); err != nil {
		return 0, errors.Wrapf(err, "%s: read", r.name)
	}
	mask := uint8(1) << pin
	return (r.data & mask) >> pin, nil
}

// WriteBit sets bit pin to value (0 or 1). All other bits are left untouched.
// Nothing is modified if either argument is invalid.
func (r *Register) WriteBit(pin int, value uint8) error {
	if err := ValidPin(pin); err != nil {
		return errors.Wrapf(err, "%s: write", r.name)
	}
	mask := uint8(1) << pin
	var n uint8
	switch value {
	case 0:
		n = r.data &^ mask
	case 1:
		n = r.data | mask
	default:
		return errors.Wrapf(ErrInvalidValue, "%s: write %d to pin %d", r.name, value, pin)
	}
	r.data = n
	return nil
}

// String renders the register as 8 bits, bit 7 first.
func (r *Register) String() string {
	return fmt.Sprintf("%s: %.8b", r.name, r.data)
}
