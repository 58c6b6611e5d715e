// Package transmitter implements a bit-banged serial transmitter which shifts
// bytes out of an emulated GPIO port over two pins: CLOCK and DATA.
//
// A session (one Send call) runs through these states:
//
//	Idle -> Initializing -> Transmitting <-> Acknowledging -> Done
//
// Initializing reports the power on state, waits a few ticks for things to settle and then
// sets DATA and CLOCK as outputs. Before the first bit of every byte CLOCK is toggled once
// and held for a tick (the acknowledge window). Every bit then writes DATA, toggles CLOCK as
// the data valid strobe and waits a tick. DATA is always stable before CLOCK moves.
//
// There's no error detection or retry. Any register failure aborts the session and pins
// keep whatever levels they had.
package transmitter

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jmchacon/gpio/encoder"
	"github.com/jmchacon/gpio/port"
	"github.com/jmchacon/gpio/register"
)

// State is a step in the transmission protocol.
type State int

const (
	Idle          State = iota // No session running.
	Initializing               // Settle delay and pin direction setup.
	Transmitting               // Shifting a data bit.
	Acknowledging              // Acknowledge window before each byte.
	Done                       // Last bit strobed.
	kSTATE_MAX                 // End of state enumerations.
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Initializing:
		return "Initializing"
	case Transmitting:
		return "Transmitting"
	case Acknowledging:
		return "Acknowledging"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	// DefaultSettleTicks is the number of ticks waited before configuring pins.
	DefaultSettleTicks = 4

	kBITS_PER_BYTE = 8
)

// ErrBusy is returned if Send is called while a session is in progress.
var ErrBusy = errors.New("transmission in progress")

// Event describes the port right after a protocol step.
type Event struct {
	State     State // State the step belongs to.
	Index     int   // Bit index for Acknowledging/Transmitting. -1 otherwise.
	Bit       uint8 // Bit written to DATA when State is Transmitting.
	Data      uint8 // Data register snapshot.
	Direction uint8 // Direction register snapshot.
}

// Observer gets called after every protocol step. A returned error aborts the session.
type Observer interface {
	Observe(ev Event) error
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ev Event) error

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) error {
	return f(ev)
}

// TransmitterDef describes a transmitter for Init.
type TransmitterDef struct {
	// Port is the port driven by the transmitter. Required.
	Port *port.Port

	// ClockPin is the pin index for the CLOCK line.
	ClockPin int

	// DataPin is the pin index for the DATA line.
	DataPin int

	// Tick is the delay after every protocol step.
	Tick time.Duration

	// SettleTicks is the number of ticks to wait before configuring pins.
	// If 0 DefaultSettleTicks is used. Negative values skip the settle wait.
	SettleTicks int

	// Clock is used for tick waits. If nil the wall clock is used.
	Clock clock.Clock

	// Observers are called in order after every step.
	Observers []Observer

	// Logger if non-nil gets state transitions (debug level) and aborts (error level).
	Logger *zap.Logger

	// Debug if true will emit output from Debug() calls.
	Debug bool
}

// Transmitter drives CLOCK/DATA on a port.
type Transmitter struct {
	port      *port.Port
	clockPin  int
	dataPin   int
	tick      time.Duration
	settle    int
	clk       clock.Clock
	observers []Observer
	log       *zap.Logger
	debug     bool  // If true Debug() emits output.
	state     State // Current protocol state.
	index     int   // Bit index of the current/last step.
	ticks     int   // Total ticks waited since Init.
	toggles   int   // Total CLOCK toggles since Init.
	sent      int   // Total bits strobed since Init.
}

// Init validates the definition and returns an Idle transmitter.
func Init(d *TransmitterDef) (*Transmitter, error) {
	if d.Port == nil {
		return nil, errors.New("transmitter needs a port")
	}
	if err := register.ValidPin(d.ClockPin); err != nil {
		return nil, errors.Wrap(err, "clock pin")
	}
	if err := register.ValidPin(d.DataPin); err != nil {
		return nil, errors.Wrap(err, "data pin")
	}
	if d.ClockPin == d.DataPin {
		return nil, errors.Errorf("clock and data can't share pin %d", d.ClockPin)
	}
	if d.Tick < 0 {
		return nil, errors.Errorf("negative tick %s", d.Tick)
	}
	tx := &Transmitter{
		port:      d.Port,
		clockPin:  d.ClockPin,
		dataPin:   d.DataPin,
		tick:      d.Tick,
		settle:    d.SettleTicks,
		clk:       d.Clock,
		observers: d.Observers,
		log:       d.Logger,
		debug:     d.Debug,
		state:     Idle,
		index:     -1,
	}
	switch {
	case tx.settle == 0:
		tx.settle = DefaultSettleTicks
	case tx.settle < 0:
		tx.settle = 0
	}
	if tx.clk == nil {
		tx.clk = clock.New()
	}
	if tx.log == nil {
		tx.log = zap.NewNop()
	}
	return tx, nil
}

// State returns the current protocol state.
func (tx *Transmitter) State() State {
	return tx.state
}

// Ticks returns the number of ticks waited since Init.
func (tx *Transmitter) Ticks() int {
	return tx.ticks
}

// Toggles returns the number of CLOCK toggles since Init.
func (tx *Transmitter) Toggles() int {
	return tx.toggles
}

// SendBytes encodes payload MSB first and sends it.
func (tx *Transmitter) SendBytes(payload ...uint8) error {
	return tx.Send(encoder.Encode(payload...))
}

// Send runs one transmission session over bits (each 0 or 1). It returns once the
// last bit has been strobed or on the first failure. Send blocks for the whole
// session since every step waits a tick.
func (tx *Transmitter) Send(bits []uint8) error {
	switch tx.state {
	case Idle, Done:
	default:
		return errors.Wrapf(ErrBusy, "state %s", tx.state)
	}
	if err := tx.send(bits); err != nil {
		tx.log.Error("transmission aborted",
			zap.Stringer("state", tx.state),
			zap.Int("index", tx.index),
			zap.Int("bits", len(bits)),
			zap.Error(err))
		tx.enter(Idle)
		return err
	}
	return nil
}

func (tx *Transmitter) send(bits []uint8) error {
	tx.index = -1
	tx.enter(Initializing)
	if err := tx.notify(0); err != nil {
		return err
	}
	for i := 0; i < tx.settle; i++ {
		tx.wait()
	}
	if err := tx.port.ConfigureDirection(tx.dataPin, true); err != nil {
		return errors.Wrap(err, "configure data pin")
	}
	if err := tx.port.ConfigureDirection(tx.clockPin, true); err != nil {
		return errors.Wrap(err, "configure clock pin")
	}

	for i, bit := range bits {
		tx.index = i
		if i%kBITS_PER_BYTE == 0 {
			tx.enter(Acknowledging)
			if err := tx.toggleClock(); err != nil {
				return errors.Wrapf(err, "acknowledge before bit %d", i)
			}
			if err := tx.notify(0); err != nil {
				return err
			}
			tx.wait()
		}
		tx.enter(Transmitting)
		if err := tx.port.WritePin(tx.dataPin, bit); err != nil {
			return errors.Wrapf(err, "bit %d", i)
		}
		if err := tx.toggleClock(); err != nil {
			return errors.Wrapf(err, "strobe bit %d", i)
		}
		tx.sent++
		if err := tx.notify(bit); err != nil {
			return err
		}
		tx.wait()
	}

	tx.index = -1
	tx.enter(Done)
	return tx.notify(0)
}

func (tx *Transmitter) enter(s State) {
	if tx.state == s {
		return
	}
	tx.log.Debug("state change", zap.Stringer("from", tx.state), zap.Stringer("to", s), zap.Int("index", tx.index))
	tx.state = s
}

func (tx *Transmitter) toggleClock() error {
	if err := tx.port.TogglePin(tx.clockPin); err != nil {
		return err
	}
	tx.toggles++
	return nil
}

// wait blocks for one tick. Ticks can't fail or be cut short.
func (tx *Transmitter) wait() {
	tx.ticks++
	tx.clk.Sleep(tx.tick)
}

func (tx *Transmitter) notify(bit uint8) error {
	ev := Event{
		State:     tx.state,
		Index:     -1,
		Bit:       bit,
		Data:      tx.port.Data().Output(),
		Direction: tx.port.Direction().Output(),
	}
	if tx.state == Acknowledging || tx.state == Transmitting {
		ev.Index = tx.index
	}
	for _, o := range tx.observers {
		if err := o.Observe(ev); err != nil {
			return errors.Wrapf(err, "observer in state %s", tx.state)
		}
	}
	return nil
}

// Debug returns transmitter state if it was created with Debug set.
func (tx *Transmitter) Debug() string {
	if tx.debug {
		return fmt.Sprintf("state: %s index: %d ticks: %d toggles: %d sent: %d clock: %d data: %d\n", tx.state, tx.index, tx.ticks, tx.toggles, tx.sent, tx.clockPin, tx.dataPin)
	}
	return ""
}
