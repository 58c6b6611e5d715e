// bitbang shifts a payload out of an emulated GPIO port over CLOCK/DATA and
// prints the port registers after every protocol step.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmchacon/gpio/encoder"
	"github.com/jmchacon/gpio/port"
	"github.com/jmchacon/gpio/reporter"
	"github.com/jmchacon/gpio/trace"
	"github.com/jmchacon/gpio/transmitter"
)

var (
	clockPin      = flag.Int("clock_pin", 5, "Pin index of the CLOCK line")
	dataPin       = flag.Int("data_pin", 3, "Pin index of the DATA line")
	tickMS        = flag.Int("tick_ms", 500, "Delay per protocol step in milliseconds")
	settleTicks   = flag.Int("settle_ticks", transmitter.DefaultSettleTicks, "Ticks to wait before configuring pins (0 uses the default, negative skips the wait)")
	payload       = flag.String("payload", "21,37,14,88", "Comma separated bytes to send (decimal, 0x hex, 0o octal or 0b binary)")
	dataFill      = flag.String("data_fill", "zeros", "Power on state of the data register (zeros or ones)")
	directionFill = flag.String("direction_fill", "zeros", "Power on state of the direction register (zeros or ones)")
	lsbFirst      = flag.Bool("lsb_first", false, "If true print bit 0 first")
	useColor      = flag.Bool("color", false, "If true highlight set bits")
	debug         = flag.Bool("debug", false, "If true will emit full port/transmitter debugging while running")
	tracePNG      = flag.String("trace_png", "", "If set write a waveform of CLOCK and DATA to this path")
	traceScale    = flag.Float64("trace_scale", 4.0, "The amount to rescale the waveform PNG")
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !*debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {
	flag.Parse()
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("bitbang failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	bytes, err := encoder.ParsePayload(*payload)
	if err != nil {
		return err
	}
	df, err := port.ParseFill(*dataFill)
	if err != nil {
		return err
	}
	ddf, err := port.ParseFill(*directionFill)
	if err != nil {
		return err
	}
	p, err := port.Init(&port.PortDef{
		DataFill:      df,
		DirectionFill: ddf,
		Debug:         *debug,
	})
	if err != nil {
		return err
	}

	rec := &trace.Recorder{}
	observers := []transmitter.Observer{
		&reporter.Console{
			Reporter: reporter.Reporter{LSBFirst: *lsbFirst, Color: *useColor},
			W:        os.Stdout,
			Port:     p,
		},
		rec,
	}
	var tx *transmitter.Transmitter
	if *debug {
		observers = append(observers, transmitter.ObserverFunc(func(transmitter.Event) error {
			fmt.Print(p.Debug())
			fmt.Print(tx.Debug())
			return nil
		}))
	}
	tx, err = transmitter.Init(&transmitter.TransmitterDef{
		Port:        p,
		ClockPin:    *clockPin,
		DataPin:     *dataPin,
		Tick:        time.Duration(*tickMS) * time.Millisecond,
		SettleTicks: *settleTicks,
		Observers:   observers,
		Logger:      logger,
		Debug:       *debug,
	})
	if err != nil {
		return err
	}

	logger.Info("sending", zap.Int("bytes", len(bytes)), zap.Int("clock_pin", *clockPin), zap.Int("data_pin", *dataPin), zap.Int("tick_ms", *tickMS))
	if err := tx.SendBytes(bytes...); err != nil {
		return err
	}
	logger.Info("sent", zap.Int("ticks", tx.Ticks()), zap.Int("toggles", tx.Toggles()))

	if *tracePNG != "" {
		err := rec.WritePNG(*tracePNG, *traceScale,
			trace.Channel{Pin: *clockPin, Color: color.NRGBA{0xFF, 0xD0, 0x00, 0xFF}},
			trace.Channel{Pin: *dataPin, Color: color.NRGBA{0x00, 0xE0, 0xFF, 0xFF}},
		)
		if err != nil {
			return err
		}
		logger.Info("wrote waveform", zap.String("path", *tracePNG))
	}
	return nil
}
