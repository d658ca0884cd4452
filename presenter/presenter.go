// Package presenter shows images from a rotator on the panel.
//
// Every show is one full panel cycle: wake, clear to Clean, stream the file
// or fill a fallback color, sleep. When no file can be shown, the fallback
// color tells which failure happened.
package presenter

import (
	"errors"
	"fmt"
	"io"

	"github.com/flavioheleno/epd5in65f"
	"github.com/flavioheleno/epd5in65f/image7color"
	"github.com/flavioheleno/epd5in65f/rotator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"periph.io/x/conn/v3/gpio"
)

// Panel is a display that can be woken into a Frame session.
type Panel interface {
	Init() (Frame, error)
}

// Frame is an open panel session.
type Frame interface {
	io.Writer
	Clear(c image7color.Color) error
	BeginImage() error
	EndImage() error
	Sleep() error
}

// FromDev adapts a panel device.
func FromDev(d *epd5in65f.Dev) Panel {
	return devPanel{d}
}

type devPanel struct {
	d *epd5in65f.Dev
}

func (p devPanel) Init() (Frame, error) {
	s, err := p.d.Init()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Opts is the configuration of a Presenter.
type Opts struct {
	// LED is held high while a show runs (optional).
	LED gpio.PinOut
	// BufferSize is the read chunk size (default: 4200).
	BufferSize int

	NoImage     image7color.Color // no suitable image (default: Blue)
	CardFailure image7color.Color // storage unavailable (default: Orange)
	LowBattery  image7color.Color // low battery image missing (default: Red)

	// LowBatteryImage is the system image shown on low battery
	// (default: "LowBattery.bin").
	LowBatteryImage string
}

// DefaultOpts returns the fallback colors and buffer size used when New gets nil.
func DefaultOpts() Opts {
	return Opts{
		BufferSize:      4200,
		NoImage:         image7color.Blue,
		CardFailure:     image7color.Orange,
		LowBattery:      image7color.Red,
		LowBatteryImage: "LowBattery.bin",
	}
}

// Presenter ties a panel to a rotator.
type Presenter struct {
	panel Panel
	rot   *rotator.Rotator
	opts  Opts
	buf   []byte
}

// New returns a Presenter. opts can be nil to use DefaultOpts.
func New(panel Panel, rot *rotator.Rotator, opts *Opts) *Presenter {
	o := DefaultOpts()
	if opts != nil {
		o = *opts
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultOpts().BufferSize
	}
	if o.LowBatteryImage == "" {
		o.LowBatteryImage = DefaultOpts().LowBatteryImage
	}
	return &Presenter{
		panel: panel,
		rot:   rot,
		opts:  o,
		buf:   make([]byte, o.BufferSize),
	}
}

// ShowNext advances the rotation and shows the next image.
func (p *Presenter) ShowNext() error {
	return p.show(p.opts.NoImage, (*rotator.Session).NextImage)
}

// ShowCurrent shows the image under the cursor again, or the next one if it
// is gone.
func (p *Presenter) ShowCurrent() error {
	return p.show(p.opts.NoImage, (*rotator.Session).CurrentImage)
}

// ShowLowBattery shows the low battery placard.
func (p *Presenter) ShowLowBattery() error {
	return p.ShowSystemImage(p.opts.LowBatteryImage, p.opts.LowBattery)
}

// ShowSystemImage shows a named system image, or fallback if it cannot be
// opened. Storage failures also fall back to fallback.
func (p *Presenter) ShowSystemImage(name string, fallback image7color.Color) error {
	return p.show(fallback, func(s *rotator.Session) (afero.File, error) {
		return s.SystemImage(name)
	})
}

// show runs one storage session and one panel cycle.
func (p *Presenter) show(fallback image7color.Color, open func(*rotator.Session) (afero.File, error)) (err error) {
	if p.opts.LED != nil {
		if err := p.opts.LED.Out(gpio.High); err != nil {
			return fmt.Errorf("presenter: failed to drive LED: %w", err)
		}
		defer func() {
			if lerr := p.opts.LED.Out(gpio.Low); lerr != nil && err == nil {
				err = fmt.Errorf("presenter: failed to drive LED: %w", lerr)
			}
		}()
	}

	s, err := p.rot.Begin()
	if err != nil {
		log.Warn().Err(err).Stringer("fallback", p.opts.CardFailure).Msg("storage unavailable")
		return p.display(nil, p.opts.CardFailure)
	}
	defer s.Close()

	f, err := open(s)
	if err != nil {
		if !errors.Is(err, rotator.ErrNoImage) {
			log.Warn().Err(err).Msg("failed to open image")
		}
		log.Info().Stringer("fallback", fallback).Msg("no image to show")
		return p.display(nil, fallback)
	}
	log.Info().Str("image", f.Name()).Msg("showing image")
	return p.display(f, fallback)
}

// display wakes the panel, shows f or fills fallback when f is nil, and puts
// the panel back to sleep. f is closed.
func (p *Presenter) display(f afero.File, fallback image7color.Color) error {
	if f != nil {
		defer f.Close()
	}

	frame, err := p.panel.Init()
	if err != nil {
		return fmt.Errorf("presenter: failed to wake panel: %w", err)
	}
	if err := p.paint(frame, f, fallback); err != nil {
		_ = frame.Sleep()
		return err
	}
	return frame.Sleep()
}

func (p *Presenter) paint(frame Frame, f afero.File, fallback image7color.Color) error {
	if err := frame.Clear(image7color.Clean); err != nil {
		return err
	}
	if f == nil {
		return frame.Clear(fallback)
	}

	// Bytes past one frame are dropped; the panel still refreshes with the
	// first frame of a longer file.
	limit := p.rot.ImageSize()
	if fi, err := f.Stat(); err == nil && fi.Size() > limit {
		log.Warn().Str("image", f.Name()).Int64("size", fi.Size()).Int64("frame", limit).Msg("image truncated to one frame")
	}

	if err := frame.BeginImage(); err != nil {
		return err
	}
	if _, err := io.CopyBuffer(frame, io.LimitReader(f, limit), p.buf); err != nil {
		return fmt.Errorf("presenter: failed to stream %s: %w", f.Name(), err)
	}
	return frame.EndImage()
}
