// Package reporter renders a port's data and direction registers as fixed width
// bit strings for humans to watch a transmission go by. It only ever reads.
package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jmchacon/gpio/register"
	"github.com/jmchacon/gpio/transmitter"
)

// Reader is the read side of a port.
type Reader interface {
	ReadPin(pin int) (uint8, error)
	ReadDirection(pin int) (uint8, error)
	DataName() string
	DirectionName() string
}

// Reporter formats a port's state.
type Reporter struct {
	// LSBFirst renders bit 0 first instead of bit 7.
	LSBFirst bool

	// Color highlights set bits.
	Color bool
}

// Render returns a line such as
//
//	PORTB: 00101000    Data Direction Registry (DDRDB): 00101000
func (r *Reporter) Render(p Reader) (string, error) {
	data, err := r.bits(p.ReadPin)
	if err != nil {
		return "", err
	}
	dir, err := r.bits(p.ReadDirection)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s    Data Direction Registry (%s): %s", p.DataName(), data, p.DirectionName(), dir), nil
}

func (r *Reporter) bits(read func(int) (uint8, error)) (string, error) {
	var set *color.Color
	if r.Color {
		set = color.New(color.FgGreen, color.Bold)
		set.EnableColor()
	}
	var b strings.Builder
	for i := 0; i < register.Width; i++ {
		pin := register.Width - 1 - i
		if r.LSBFirst {
			pin = i
		}
		v, err := read(pin)
		if err != nil {
			return "", err
		}
		s := fmt.Sprint(v)
		if set != nil && v == 1 {
			s = set.Sprint(s)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Console writes a line per protocol step to W. It implements transmitter.Observer.
type Console struct {
	Reporter

	// W is the output sink.
	W io.Writer

	// Port is the port being observed.
	Port Reader
}

var _ = transmitter.Observer(&Console{})

// Observe implements transmitter.Observer.
func (c *Console) Observe(ev transmitter.Event) error {
	var err error
	switch ev.State {
	case transmitter.Initializing:
		var s string
		if s, err = c.Render(c.Port); err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.W, "BOOT UP... Initial state:\n\n%s\n\n", s)
	case transmitter.Acknowledging:
		_, err = fmt.Fprintln(c.W, "acknowledge...")
	case transmitter.Transmitting:
		var s string
		if s, err = c.Render(c.Port); err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.W, s)
	case transmitter.Done:
		_, err = fmt.Fprintln(c.W, "done")
	}
	return err
}
