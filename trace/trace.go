// Package trace implements a tiny logic analyzer for an emulated port. A Recorder
// is installed as a transmitter.Observer and keeps a snapshot of both registers
// after every protocol step. The history can be decoded back into bytes or drawn as
// a waveform (one lane per pin) for inspection.
package trace

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"

	"github.com/jmchacon/gpio/encoder"
	"github.com/jmchacon/gpio/register"
	"github.com/jmchacon/gpio/transmitter"
)

const (
	kSAMPLE_WIDTH = 8  // Pixels per sample at scale 1.
	kLANE_HEIGHT  = 16 // Pixels per channel at scale 1.
	kLANE_MARGIN  = 3  // Gap between a lane's edge and its high/low line.
)

var (
	kBACKGROUND = color.NRGBA{0x10, 0x10, 0x10, 0xFF}
	kINPUT      = color.NRGBA{0x50, 0x50, 0x50, 0xFF} // Pin not driven (direction bit 0).
)

// Sample is the port state after one protocol step.
type Sample struct {
	Step      int               // Sequence number starting at 0.
	State     transmitter.State // Step that produced the sample.
	Index     int               // Bit index (-1 outside Acknowledging/Transmitting).
	Data      uint8             // Data register.
	Direction uint8             // Direction register.
}

// Channel selects a pin to draw.
type Channel struct {
	Pin   int
	Color color.Color
}

// Recorder keeps every sample it observes.
type Recorder struct {
	samples []Sample
}

var _ = transmitter.Observer(&Recorder{})

// Observe implements transmitter.Observer.
func (r *Recorder) Observe(ev transmitter.Event) error {
	r.samples = append(r.samples, Sample{
		Step:      len(r.samples),
		State:     ev.State,
		Index:     ev.Index,
		Data:      ev.Data,
		Direction: ev.Direction,
	})
	return nil
}

// Samples returns the recorded history.
func (r *Recorder) Samples() []Sample {
	return r.samples
}

// Reset drops all samples.
func (r *Recorder) Reset() {
	r.samples = nil
}

// Levels returns the level of pin at every sample.
func (r *Recorder) Levels(pin int) ([]uint8, error) {
	if err := register.ValidPin(pin); err != nil {
		return nil, err
	}
	out := make([]uint8, 0, len(r.samples))
	for _, s := range r.samples {
		out = append(out, (s.Data>>pin)&0x01)
	}
	return out, nil
}

// Decode samples dataPin on every strobe and reassembles the bytes sent.
func (r *Recorder) Decode(dataPin int) ([]uint8, error) {
	if err := register.ValidPin(dataPin); err != nil {
		return nil, err
	}
	var bits []uint8
	for _, s := range r.samples {
		if s.State == transmitter.Transmitting {
			bits = append(bits, (s.Data>>dataPin)&0x01)
		}
	}
	return encoder.Decode(bits)
}

// Draw renders the waveform of every channel into dst. Samples are spread evenly
// across dst's width and channels stacked top to bottom. If dst is narrower than
// the number of samples the view scrolls, keeping the newest sample at the right edge.
func (r *Recorder) Draw(dst draw.Image, channels ...Channel) error {
	if len(r.samples) == 0 {
		return errors.New("no samples to draw")
	}
	if len(channels) == 0 {
		return errors.New("no channels to draw")
	}
	for _, c := range channels {
		if err := register.ValidPin(c.Pin); err != nil {
			return err
		}
		if c.Color == nil {
			return errors.Errorf("channel for pin %d has no color", c.Pin)
		}
	}
	b := dst.Bounds()
	h := b.Dy() / len(channels)
	if b.Dx() < 1 || h <= 2*kLANE_MARGIN {
		return errors.Errorf("%dx%d image too small for %d channels", b.Dx(), b.Dy(), len(channels))
	}
	// Once there are more samples than columns only the newest ones are shown.
	samples := r.samples
	if len(samples) > b.Dx() {
		samples = samples[len(samples)-b.Dx():]
	}
	w := b.Dx() / len(samples)
	draw.Draw(dst, b, image.NewUniform(kBACKGROUND), image.Point{}, draw.Src)

	for ci, c := range channels {
		high := b.Min.Y + ci*h + kLANE_MARGIN
		low := b.Min.Y + (ci+1)*h - kLANE_MARGIN - 1
		prev := -1
		for si, s := range samples {
			col := c.Color
			if (s.Direction>>c.Pin)&0x01 == 0 {
				col = kINPUT
			}
			y := low
			level := int((s.Data >> c.Pin) & 0x01)
			if level == 1 {
				y = high
			}
			x0 := b.Min.X + si*w
			for x := x0; x < x0+w; x++ {
				dst.Set(x, y, col)
			}
			// Edge.
			if prev != -1 && prev != level {
				for yy := high; yy <= low; yy++ {
					dst.Set(x0, yy, col)
				}
			}
			prev = level
		}
	}
	return nil
}

// Image draws the waveform at its natural size and rescales it by scale.
func (r *Recorder) Image(scale float64, channels ...Channel) (*image.NRGBA, error) {
	if scale <= 0 {
		return nil, errors.Errorf("invalid scale %f", scale)
	}
	i := image.NewNRGBA(image.Rect(0, 0, len(r.samples)*kSAMPLE_WIDTH, len(channels)*kLANE_HEIGHT))
	if err := r.Draw(i, channels...); err != nil {
		return nil, err
	}
	if scale == 1.0 {
		return i, nil
	}
	d := image.NewNRGBA(image.Rect(0, 0, int(float64(i.Bounds().Max.X)*scale), int(float64(i.Bounds().Max.Y)*scale)))
	draw.NearestNeighbor.Scale(d, d.Bounds(), i, i.Bounds(), draw.Over, nil)
	return d, nil
}

// WritePNG writes the waveform to path as a PNG.
func (r *Recorder) WritePNG(path string, scale float64, channels ...Channel) (err error) {
	i, err := r.Image(scale, channels...)
	if err != nil {
		return err
	}
	o, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, o.Close())
	}()
	return png.Encode(o, i)
}
