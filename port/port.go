// Package port implements a microcontroller style GPIO port made up of a data
// register (i.e. PORTB) and a data direction register (i.e. DDRDB).
// A pin may only be driven once its direction bit marks it as an output while
// reads always return the data register bit (electrical readback).
package port

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/jmchacon/gpio/io"
	"github.com/jmchacon/gpio/register"
)

var (
	// ErrPinNotConfigured is returned when driving a pin whose direction isn't output.
	ErrPinNotConfigured = errors.New("pin not configured as output")
	// ErrInternalConsistency means a register bit read back as something other than 0/1.
	ErrInternalConsistency = errors.New("internal consistency fault")
	// ErrUnsupported is returned for pin features an emulated port can't provide.
	ErrUnsupported = errors.New("unsupported")
)

// Fill is the value every bit of a register holds at power on.
type Fill int

const (
	FillZeros Fill = iota // All bits 0. For a direction register this means all inputs.
	FillOnes              // All bits 1.
	kFILL_MAX             // End of fill enumerations.
)

// ParseFill converts "zeros" or "ones" into a Fill.
func ParseFill(s string) (Fill, error) {
	switch strings.ToLower(s) {
	case "zeros", "zero", "0":
		return FillZeros, nil
	case "ones", "one", "1":
		return FillOnes, nil
	}
	return kFILL_MAX, errors.Errorf("invalid fill %q (want zeros or ones)", s)
}

func (f Fill) String() string {
	switch f {
	case FillZeros:
		return "zeros"
	case FillOnes:
		return "ones"
	}
	return fmt.Sprintf("Fill(%d)", int(f))
}

func (f Fill) value() (uint8, error) {
	switch f {
	case FillZeros:
		return 0x00, nil
	case FillOnes:
		return 0xFF, nil
	}
	return 0, errors.Errorf("invalid fill: %s", f)
}

// PortDef describes a port for Init.
type PortDef struct {
	// DataName is the data register name. Defaults to PORTB.
	DataName string

	// DirectionName is the direction register name. Defaults to DDRDB.
	DirectionName string

	// DataFill is the power on state of the data register.
	DataFill Fill

	// DirectionFill is the power on state of the direction register.
	DirectionFill Fill

	// Debug if true will emit output from Debug() calls.
	Debug bool
}

// Port couples a data register with its direction register.
type Port struct {
	data      *register.Register    // Pin levels.
	direction *register.Register    // 1 == output, 0 == input.
	writes    [register.Width]int   // Successful data writes per pin since power on.
	lastWrite [register.Width]uint8 // Last value written per pin.
	debug     bool                  // If true Debug() emits output.
}

// Init returns a powered on port.
func Init(d *PortDef) (*Port, error) {
	dataInit, err := d.DataFill.value()
	if err != nil {
		return nil, errors.Wrap(err, "data register")
	}
	dirInit, err := d.DirectionFill.value()
	if err != nil {
		return nil, errors.Wrap(err, "direction register")
	}
	dataName, dirName := d.DataName, d.DirectionName
	if dataName == "" {
		dataName = "PORTB"
	}
	if dirName == "" {
		dirName = "DDRDB"
	}
	p := &Port{
		data:      register.New(dataName, dataInit),
		direction: register.New(dirName, dirInit),
		debug:     d.Debug,
	}
	p.PowerOn()
	return p, nil
}

// PowerOn restores both registers to their power on fill and clears write counts.
func (p *Port) PowerOn() {
	p.data.PowerOn()
	p.direction.PowerOn()
	p.writes = [register.Width]int{}
	p.lastWrite = [register.Width]uint8{}
}

// Data returns a read-only view of the data register.
func (p *Port) Data() io.PortOut8 {
	return p.data
}

// Direction returns a read-only view of the direction register.
func (p *Port) Direction() io.PortOut8 {
	return p.direction
}

// DataName returns the data register name.
func (p *Port) DataName() string {
	return p.data.Name()
}

// DirectionName returns the direction register name.
func (p *Port) DirectionName() string {
	return p.direction.Name()
}

// ConfigureDirection marks pin as an output (or input if output is false).
func (p *Port) ConfigureDirection(pin int, output bool) error {
	v := uint8(0)
	if output {
		v = 1
	}
	return p.direction.WriteBit(pin, v)
}

// IsOutput returns whether pin is currently configured as an output.
func (p *Port) IsOutput(pin int) (bool, error) {
	v, err := p.direction.ReadBit(pin)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// ReadDirection returns the direction bit for pin.
func (p *Port) ReadDirection(pin int) (uint8, error) {
	return p.direction.ReadBit(pin)
}

// ReadPin returns the data register bit for pin regardless of direction.
func (p *Port) ReadPin(pin int) (uint8, error) {
	return p.data.ReadBit(pin)
}

// WritePin drives pin to value. The pin must have been configured as an output.
func (p *Port) WritePin(pin int, value uint8) error {
	out, err := p.IsOutput(pin)
	if err != nil {
		return err
	}
	if !out {
		return errors.Wrapf(ErrPinNotConfigured, "%s pin %d", p.data.Name(), pin)
	}
	if err := p.data.WriteBit(pin, value); err != nil {
		return err
	}
	p.writes[pin]++
	p.lastWrite[pin] = value
	return nil
}

// TogglePin drives pin to the complement of its current level.
func (p *Port) TogglePin(pin int) error {
	v, err := p.ReadPin(pin)
	if err != nil {
		return err
	}
	n, err := complement(v)
	if err != nil {
		return errors.Wrapf(err, "%s pin %d", p.data.Name(), pin)
	}
	return p.WritePin(pin, n)
}

func complement(v uint8) (uint8, error) {
	switch v {
	case 0:
		return 1, nil
	case 1:
		return 0, nil
	}
	return 0, errors.Wrapf(ErrInternalConsistency, "bit read back as %d", v)
}

// Writes returns the number of successful writes to pin since power on.
// Out of range pins report 0.
func (p *Port) Writes(pin int) int {
	if register.ValidPin(pin) != nil {
		return 0
	}
	return p.writes[pin]
}

// Debug returns register state if the port was created with Debug set.
func (p *Port) Debug() string {
	if p.debug {
		return fmt.Sprintf("%s: %.8b %s: %.8b writes: %v last: %v\n", p.data.Name(), p.data.Output(), p.direction.Name(), p.direction.Output(), p.writes, p.lastWrite)
	}
	return ""
}
