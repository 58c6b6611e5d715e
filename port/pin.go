package port

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/jmchacon/gpio/register"
)

var _ = gpio.PinIO(&gpioPin{})

// gpioPin exposes a single port pin through periph.io's gpio interfaces so
// drivers written against gpio.PinIO can run against the emulated port.
type gpioPin struct {
	p *Port
	n int
}

// Pin returns pin n as a gpio.PinIO.
func (p *Port) Pin(n int) (gpio.PinIO, error) {
	if err := register.ValidPin(n); err != nil {
		return nil, err
	}
	return &gpioPin{p, n}, nil
}

func (g *gpioPin) String() string {
	return g.Name()
}

// Halt is a no-op since nothing runs in the background.
func (g *gpioPin) Halt() error {
	return nil
}

// Name returns the data register name plus pin number (i.e. PORTB5).
func (g *gpioPin) Name() string {
	return fmt.Sprintf("%s%d", g.p.DataName(), g.n)
}

func (g *gpioPin) Number() int {
	return g.n
}

// Function returns In/Out and the current level in periph's usual form.
func (g *gpioPin) Function() string {
	dir := "In"
	if out, _ := g.p.IsOutput(g.n); out {
		dir = "Out"
	}
	return fmt.Sprintf("%s/%s", dir, g.Read())
}

// In configures the pin as an input. Pulls and edge detection don't exist on
// the emulated port.
func (g *gpioPin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.PullNoChange && pull != gpio.Float {
		return errors.Wrapf(ErrUnsupported, "%s: pull %s", g.Name(), pull)
	}
	if edge != gpio.NoEdge {
		return errors.Wrapf(ErrUnsupported, "%s: edge %s", g.Name(), edge)
	}
	return g.p.ConfigureDirection(g.n, false)
}

// Read returns the data register level for the pin.
func (g *gpioPin) Read() gpio.Level {
	v, err := g.p.ReadPin(g.n)
	if err != nil {
		return gpio.Low
	}
	return v == 1
}

func (g *gpioPin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (g *gpioPin) Pull() gpio.Pull {
	return gpio.Float
}

func (g *gpioPin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Out configures the pin as an output and drives it to l.
func (g *gpioPin) Out(l gpio.Level) error {
	if err := g.p.ConfigureDirection(g.n, true); err != nil {
		return err
	}
	v := uint8(0)
	if l {
		v = 1
	}
	return g.p.WritePin(g.n, v)
}

func (g *gpioPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.Wrapf(ErrUnsupported, "%s: PWM", g.Name())
}
