package transmitter

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jmchacon/gpio/encoder"
	"github.com/jmchacon/gpio/port"
	"github.com/jmchacon/gpio/register"
)

const (
	kCLOCK = 5
	kDATA  = 3
)

// recorder keeps every event seen.
type recorder struct {
	events []Event
}

func (r *recorder) Observe(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

// indexes returns the bit index of every event in state s.
func (r *recorder) indexes(s State) []int {
	var out []int
	for _, ev := range r.events {
		if ev.State == s {
			out = append(out, ev.Index)
		}
	}
	return out
}

func setup(t *testing.T, fill port.Fill, obs ...Observer) (*port.Port, *Transmitter) {
	t.Helper()
	p, err := port.Init(&port.PortDef{DataFill: fill})
	if err != nil {
		t.Fatalf("Can't init port: %v", err)
	}
	tx, err := Init(&TransmitterDef{
		Port:      p,
		ClockPin:  kCLOCK,
		DataPin:   kDATA,
		Observers: obs,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("Can't init transmitter: %v", err)
	}
	return p, tx
}

func TestAcknowledgeWindows(t *testing.T) {
	r := &recorder{}
	_, tx := setup(t, port.FillZeros, r)
	payload := []uint8{21, 37, 14, 88}
	if err := tx.SendBytes(payload...); err != nil {
		t.Fatalf("Unexpected send error: %v", err)
	}
	if diff := deep.Equal(r.indexes(Acknowledging), []int{0, 8, 16, 24}); diff != nil {
		t.Errorf("Bad acknowledge positions: %v", diff)
	}
	var want []int
	for i := 0; i < 32; i++ {
		want = append(want, i)
	}
	if diff := deep.Equal(r.indexes(Transmitting), want); diff != nil {
		t.Errorf("Bad bit order: %v", diff)
	}

	// Each acknowledge comes right before its byte's first bit.
	for i, ev := range r.events {
		if ev.State != Acknowledging {
			continue
		}
		next := r.events[i+1]
		if next.State != Transmitting || next.Index != ev.Index {
			t.Errorf("Acknowledge for %d followed by %s/%d", ev.Index, next.State, next.Index)
		}
	}

	var bits []uint8
	for _, ev := range r.events {
		if ev.State == Transmitting {
			bits = append(bits, ev.Bit)
		}
	}
	if diff := deep.Equal(bits, encoder.Encode(payload...)); diff != nil {
		t.Errorf("Bad bits sent: %v", diff)
	}

	if got, want := r.events[0].State, Initializing; got != want {
		t.Errorf("Bad first event. Got %s and want %s", got, want)
	}
	// Pins aren't outputs yet when the initial state is reported.
	if got, want := r.events[0].Direction, uint8(0x00); got != want {
		t.Errorf("Bad initial direction. Got %.2X and want %.2X", got, want)
	}
	last := r.events[len(r.events)-1]
	if got, want := last.State, Done; got != want {
		t.Errorf("Bad last event. Got %s and want %s", got, want)
	}
	if got, want := last.Direction, uint8(1<<kCLOCK|1<<kDATA); got != want {
		t.Errorf("Bad final direction. Got %.2X and want %.2X", got, want)
	}
	if got, want := tx.State(), Done; got != want {
		t.Errorf("Bad final state. Got %s and want %s", got, want)
	}
	// settle + one per byte + one per bit
	if got, want := tx.Ticks(), DefaultSettleTicks+4+32; got != want {
		t.Errorf("Bad tick count. Got %d and want %d", got, want)
	}
	if got, want := tx.Toggles(), 4+32; got != want {
		t.Errorf("Bad toggle count. Got %d and want %d", got, want)
	}
}

func TestDataBeforeClock(t *testing.T) {
	// Every strobe event must show DATA already holding the bit.
	r := &recorder{}
	_, tx := setup(t, port.FillZeros, r)
	if err := tx.SendBytes(0x96, 0x3C); err != nil {
		t.Fatalf("Unexpected send error: %v", err)
	}
	clk := uint8(0)
	for _, ev := range r.events {
		switch ev.State {
		case Acknowledging, Transmitting:
			c := (ev.Data >> kCLOCK) & 0x01
			if c == clk {
				t.Fatalf("CLOCK didn't toggle on %s/%d: %s", ev.State, ev.Index, spew.Sdump(ev))
			}
			clk = c
		}
		if ev.State != Transmitting {
			continue
		}
		if got, want := (ev.Data>>kDATA)&0x01, ev.Bit; got != want {
			t.Errorf("Bit %d: DATA is %d and want %d", ev.Index, got, want)
		}
	}
}

func TestAllOnes(t *testing.T) {
	p, tx := setup(t, port.FillZeros)
	before, err := p.ReadPin(kCLOCK)
	if err != nil {
		t.Fatalf("Can't read clock: %v", err)
	}
	if err := tx.SendBytes(0xFF); err != nil {
		t.Fatalf("Unexpected send error: %v", err)
	}
	if got, want := p.Writes(kDATA), 8; got != want {
		t.Errorf("Bad DATA write count. Got %d and want %d", got, want)
	}
	if got, want := p.Writes(kCLOCK), 9; got != want {
		t.Errorf("Bad CLOCK write count. Got %d and want %d", got, want)
	}
	if got, want := tx.Toggles(), 9; got != want {
		t.Errorf("Bad toggle count. Got %d and want %d", got, want)
	}
	after, err := p.ReadPin(kCLOCK)
	if err != nil {
		t.Fatalf("Can't read clock: %v", err)
	}
	if got, want := after, 1-before; got != want {
		t.Errorf("CLOCK didn't end flipped. Got %d and want %d", got, want)
	}
	data, err := p.ReadPin(kDATA)
	if err != nil {
		t.Fatalf("Can't read data: %v", err)
	}
	if got, want := data, uint8(1); got != want {
		t.Errorf("Bad final DATA. Got %d and want %d", got, want)
	}
	// Nothing else on the port moved.
	if got, want := p.Data().Output(), uint8(1<<kCLOCK|1<<kDATA); got != want {
		t.Errorf("Bad data register. Got %.8b and want %.8b", got, want)
	}
}

func TestAllOnesValues(t *testing.T) {
	var values []uint8
	obs := ObserverFunc(func(ev Event) error {
		if ev.State == Transmitting {
			values = append(values, ev.Bit)
		}
		return nil
	})
	_, tx := setup(t, port.FillOnes, obs)
	if err := tx.SendBytes(0xFF); err != nil {
		t.Fatalf("Unexpected send error: %v", err)
	}
	if diff := deep.Equal(values, []uint8{1, 1, 1, 1, 1, 1, 1, 1}); diff != nil {
		t.Errorf("Bad values: %v", diff)
	}
}

func TestInit(t *testing.T) {
	p, err := port.Init(&port.PortDef{})
	if err != nil {
		t.Fatalf("Can't init port: %v", err)
	}
	tests := []struct {
		name string
		def  TransmitterDef
		want error
	}{
		{
			name: "Data pin 8",
			def:  TransmitterDef{Port: p, ClockPin: 5, DataPin: 8},
			want: register.ErrInvalidPin,
		},
		{
			name: "Clock pin -1",
			def:  TransmitterDef{Port: p, ClockPin: -1, DataPin: 3},
			want: register.ErrInvalidPin,
		},
	}
	for _, test := range tests {
		if _, err := Init(&test.def); !errors.Is(err, test.want) {
			t.Errorf("%s: got %v and want %v", test.name, err, test.want)
		}
	}

	for _, d := range []TransmitterDef{
		{ClockPin: 5, DataPin: 3},
		{Port: p, ClockPin: 3, DataPin: 3},
		{Port: p, ClockPin: 5, DataPin: 3, Tick: -time.Second},
	} {
		d := d
		if _, err := Init(&d); err == nil {
			t.Errorf("Didn't get error for %s", spew.Sdump(d))
		}
	}
	// Nothing touched the port.
	if got, want := p.Direction().Output(), uint8(0x00); got != want {
		t.Errorf("Init changed direction register. Got %.2X and want %.2X", got, want)
	}
}

func TestInvalidBit(t *testing.T) {
	r := &recorder{}
	p, tx := setup(t, port.FillZeros, r)
	err := tx.Send([]uint8{1, 0, 1, 2, 1, 1, 1, 1})
	if !errors.Is(err, register.ErrInvalidValue) {
		t.Fatalf("Got error %v and want %v", err, register.ErrInvalidValue)
	}
	if got, want := tx.State(), Idle; got != want {
		t.Errorf("Bad state after abort. Got %s and want %s", got, want)
	}
	// Bits already out stay out.
	if diff := deep.Equal(r.indexes(Transmitting), []int{0, 1, 2}); diff != nil {
		t.Errorf("Bad bits before abort: %v", diff)
	}
	if got, want := p.Writes(kDATA), 3; got != want {
		t.Errorf("Bad DATA writes. Got %d and want %d", got, want)
	}
	// The next session works.
	if err := tx.SendBytes(0x01); err != nil {
		t.Errorf("Unexpected error after abort: %v", err)
	}
}

func TestPinNotConfigured(t *testing.T) {
	// Flip CLOCK back to input right after pins get configured.
	var p *port.Port
	obs := ObserverFunc(func(ev Event) error {
		if ev.State == Acknowledging && ev.Index == 8 {
			return p.ConfigureDirection(kCLOCK, false)
		}
		return nil
	})
	p, tx := setup(t, port.FillZeros, obs)
	err := tx.SendBytes(0x01, 0x02)
	if !errors.Is(err, port.ErrPinNotConfigured) {
		t.Fatalf("Got error %v and want %v", err, port.ErrPinNotConfigured)
	}
	if got, want := tx.State(), Idle; got != want {
		t.Errorf("Bad state after abort. Got %s and want %s", got, want)
	}
}

func TestObserverError(t *testing.T) {
	boom := errors.New("boom")
	obs := ObserverFunc(func(ev Event) error {
		if ev.State == Transmitting && ev.Index == 4 {
			return boom
		}
		return nil
	})
	_, tx := setup(t, port.FillZeros, obs)
	if err := tx.SendBytes(0xAA); !errors.Is(err, boom) {
		t.Errorf("Got error %v and want %v", err, boom)
	}
}

func TestBusy(t *testing.T) {
	var tx *Transmitter
	var inner error
	obs := ObserverFunc(func(ev Event) error {
		if ev.State == Initializing {
			inner = tx.SendBytes(0x00)
			return inner
		}
		return nil
	})
	_, tx = setup(t, port.FillZeros, obs)
	if err := tx.SendBytes(0x55); !errors.Is(err, ErrBusy) {
		t.Errorf("Got error %v and want %v", err, ErrBusy)
	}
	if !errors.Is(inner, ErrBusy) {
		t.Errorf("Inner send got %v and want %v", inner, ErrBusy)
	}
}

func TestRepeatSend(t *testing.T) {
	p, tx := setup(t, port.FillZeros)
	for i := 0; i < 3; i++ {
		if err := tx.SendBytes(0x0F); err != nil {
			t.Fatalf("Send %d: unexpected error: %v", i, err)
		}
	}
	if got, want := tx.Toggles(), 27; got != want {
		t.Errorf("Bad toggle count. Got %d and want %d", got, want)
	}
	clk, err := p.ReadPin(kCLOCK)
	if err != nil {
		t.Fatalf("Can't read clock: %v", err)
	}
	// 27 toggles from 0.
	if got, want := clk, uint8(1); got != want {
		t.Errorf("Bad CLOCK level. Got %d and want %d", got, want)
	}
}

func TestEmptySend(t *testing.T) {
	r := &recorder{}
	p, tx := setup(t, port.FillZeros, r)
	if err := tx.Send(nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var states []State
	for _, ev := range r.events {
		states = append(states, ev.State)
	}
	if diff := deep.Equal(states, []State{Initializing, Done}); diff != nil {
		t.Errorf("Bad states: %v", diff)
	}
	// Pins still get configured.
	if got, want := p.Direction().Output(), uint8(1<<kCLOCK|1<<kDATA); got != want {
		t.Errorf("Bad direction. Got %.2X and want %.2X", got, want)
	}
	if got, want := tx.Ticks(), DefaultSettleTicks; got != want {
		t.Errorf("Bad ticks. Got %d and want %d", got, want)
	}
}

// stepClock is a mock clock whose Sleep advances time immediately so a send runs
// to completion on the calling goroutine.
type stepClock struct {
	*clock.Mock
	sleeps []time.Duration
}

func (c *stepClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.Mock.Add(d)
}

func TestTickTiming(t *testing.T) {
	p, err := port.Init(&port.PortDef{})
	if err != nil {
		t.Fatalf("Can't init port: %v", err)
	}
	clk := &stepClock{Mock: clock.NewMock()}
	tick := 50 * time.Millisecond
	var stamps []time.Time
	tx, err := Init(&TransmitterDef{
		Port:        p,
		ClockPin:    kCLOCK,
		DataPin:     kDATA,
		Tick:        tick,
		SettleTicks: 2,
		Clock:       clk,
		Observers: []Observer{ObserverFunc(func(Event) error {
			stamps = append(stamps, clk.Now())
			return nil
		})},
	})
	if err != nil {
		t.Fatalf("Can't init transmitter: %v", err)
	}
	if err := tx.SendBytes(0xA5); err != nil {
		t.Fatalf("Unexpected send error: %v", err)
	}
	if got, want := tx.Ticks(), 2+1+8; got != want {
		t.Errorf("Bad tick count. Got %d and want %d", got, want)
	}
	for i, d := range clk.sleeps {
		if d != tick {
			t.Errorf("Sleep %d: got %s and want %s", i, d, tick)
		}
	}
	// Settle between Initializing and the acknowledge then one tick per step.
	want := []time.Duration{2 * tick}
	for i := 0; i < 9; i++ {
		want = append(want, tick)
	}
	var got []time.Duration
	for i := 1; i < len(stamps); i++ {
		got = append(got, stamps[i].Sub(stamps[i-1]))
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("Bad spacing between steps: %v\nstamps: %s", diff, spew.Sdump(stamps))
	}
}

func TestSettleTicks(t *testing.T) {
	p, err := port.Init(&port.PortDef{})
	if err != nil {
		t.Fatalf("Can't init port: %v", err)
	}
	tests := []struct {
		name   string
		settle int
		want   int
	}{
		{name: "Default", settle: 0, want: DefaultSettleTicks},
		{name: "Explicit", settle: 1, want: 1},
		{name: "None", settle: -1, want: 0},
	}
	for _, test := range tests {
		tx, err := Init(&TransmitterDef{
			Port:        p,
			ClockPin:    kCLOCK,
			DataPin:     kDATA,
			SettleTicks: test.settle,
		})
		if err != nil {
			t.Fatalf("%s: can't init transmitter: %v", test.name, err)
		}
		if err := tx.Send(nil); err != nil {
			t.Fatalf("%s: unexpected send error: %v", test.name, err)
		}
		if got, want := tx.Ticks(), test.want; got != want {
			t.Errorf("%s: bad ticks. Got %d and want %d", test.name, got, want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:          "Idle",
		Initializing:  "Initializing",
		Transmitting:  "Transmitting",
		Acknowledging: "Acknowledging",
		Done:          "Done",
		kSTATE_MAX:    "State(5)",
	} {
		if got := s.String(); got != want {
			t.Errorf("Bad string for %d. Got %q and want %q", int(s), got, want)
		}
	}
}

func TestDebug(t *testing.T) {
	_, tx := setup(t, port.FillZeros)
	if got := tx.Debug(); got != "" {
		t.Errorf("Debug output when not enabled: %q", got)
	}
	tx.debug = true
	if got := tx.Debug(); got == "" {
		t.Error("No debug output when enabled")
	}
}
