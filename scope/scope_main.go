// scope runs a transmission against an emulated port and shows CLOCK/DATA as a
// live logic analyzer waveform in an SDL window.
package main

import (
	"flag"
	"image/color"
	"log"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/jmchacon/gpio/encoder"
	"github.com/jmchacon/gpio/port"
	"github.com/jmchacon/gpio/trace"
	"github.com/jmchacon/gpio/transmitter"
)

var (
	clockPin = flag.Int("clock_pin", 5, "Pin index of the CLOCK line")
	dataPin  = flag.Int("data_pin", 3, "Pin index of the DATA line")
	tickMS   = flag.Int("tick_ms", 50, "Delay per protocol step in milliseconds")
	payload  = flag.String("payload", "21,37,14,88", "Comma separated bytes to send (decimal, 0x hex, 0o octal or 0b binary)")
	width    = flag.Int("width", 1024, "Window width")
	height   = flag.Int("height", 160, "Window height")
	debug    = flag.Bool("debug", false, "If true will log every state change")
)

var window *sdl.Window
var surface *sdl.Surface

func main() {
	flag.Parse()
	bytes, err := encoder.ParsePayload(*payload)
	if err != nil {
		log.Fatalf("Bad payload: %v", err)
	}
	newLogger := zap.NewProduction
	if *debug {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Can't create logger: %v", err)
	}
	defer logger.Sync()

	sdl.Main(func() {
		var wg sync.WaitGroup
		wg.Add(1)
		sdl.Do(func() {
			if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
				log.Fatalf("Can't init SDL: %v", err)
			}

			var err error
			window, err = sdl.CreateWindow("scope", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(*width), int32(*height), sdl.WINDOW_SHOWN)
			if err != nil {
				log.Fatalf("Can't create window: %v", err)
			}
			surface, err = window.GetSurface()
			if err != nil {
				log.Fatalf("Can't get window surface: %v", err)
			}
			wg.Done()
		})
		wg.Wait()
		defer func() {
			sdl.Do(func() {
				window.Destroy()
				sdl.Quit()
			})
		}()

		p, err := port.Init(&port.PortDef{})
		if err != nil {
			log.Fatalf("Can't init port: %v", err)
		}
		channels := []trace.Channel{
			{Pin: *clockPin, Color: color.NRGBA{0xFF, 0xD0, 0x00, 0xFF}},
			{Pin: *dataPin, Color: color.NRGBA{0x00, 0xE0, 0xFF, 0xFF}},
		}
		rec := &trace.Recorder{}
		// A frame that can't be drawn is logged and skipped. The transmission continues.
		redraw := transmitter.ObserverFunc(func(ev transmitter.Event) error {
			var err error
			sdl.Do(func() {
				if err = rec.Draw(surface, channels...); err != nil {
					return
				}
				err = window.UpdateSurface()
			})
			if err != nil {
				logger.Warn("redraw failed", zap.Stringer("state", ev.State), zap.Int("index", ev.Index), zap.Error(err))
			}
			return nil
		})
		tx, err := transmitter.Init(&transmitter.TransmitterDef{
			Port:      p,
			ClockPin:  *clockPin,
			DataPin:   *dataPin,
			Tick:      time.Duration(*tickMS) * time.Millisecond,
			Observers: []transmitter.Observer{rec, redraw},
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("Can't init transmitter: %v", err)
		}
		if err := tx.SendBytes(bytes...); err != nil {
			log.Fatalf("Send error: %v", err)
		}

		// Hold the final waveform until the window is closed.
		for running := true; running; {
			sdl.Do(func() {
				for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
					if _, ok := e.(*sdl.QuitEvent); ok {
						running = false
					}
				}
			})
			time.Sleep(10 * time.Millisecond)
		}
	})
}
