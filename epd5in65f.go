// Package epd5in65f controls a 5.65" 7-color ACeP e-paper panel via SPI.
//
// The panel is 600x448 pixels, driven by a UC8159-class controller, and
// shows one of 7 pigments per pixel.
//
// See the examples for how to use this package.
package epd5in65f

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/flavioheleno/epd5in65f/image7color"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var (
	// ErrSessionClosed is returned by Session methods after Sleep.
	ErrSessionClosed = errors.New("epd5in65f: session closed")
	// ErrNotStreaming is returned when image data is sent outside BeginImage/EndImage.
	ErrNotStreaming = errors.New("epd5in65f: image data sent before BeginImage")
	// ErrFrameOverflow is returned when more than a frame of image data is sent.
	ErrFrameOverflow = errors.New("epd5in65f: image data exceeds frame size")
	// ErrBusyTimeout is returned when the busy line does not settle within Opts.BusyTimeout.
	ErrBusyTimeout = errors.New("epd5in65f: busy line timeout")
)

const (
	defaultMaxTxSize = 4096
	defaultBusyPoll  = 10 * time.Millisecond
)

// Opts is the configuration for the panel.
type Opts struct {
	// Display dimensions in pixels
	W int // Width (default: 600, must be even)
	H int // Height (default: 448)

	RST  gpio.PinOut // Reset pin, active low (required)
	Busy gpio.PinIn  // Busy pin, low while the controller is working (required)
	CS   gpio.PinOut // Chip select held low for a whole session (optional)

	Opcodes   *Opcodes   // Command table (default: DefaultOpcodes)
	Registers *Registers // Init register values (default: DefaultRegisters)
	Timing    *Timing    // Power sequence delays (default: DefaultTiming)

	// BusyPoll is the interval between busy line reads (default: 10ms).
	BusyPoll time.Duration
	// BusyTimeout bounds every busy wait. Zero waits forever, so a stalled
	// line blocks the caller indefinitely.
	BusyTimeout time.Duration
}

// Dev is the device handle for the panel.
type Dev struct {
	// Communication
	c     conn.Conn   // SPI connection
	dc    gpio.PinOut // Data/Command pin
	rst   gpio.PinOut
	cs    gpio.PinOut // optional
	busy  gpio.PinIn
	maxTx int

	// Protocol
	rect   image.Rectangle
	op     Opcodes
	reg    Registers
	timing Timing

	busyPoll    time.Duration
	busyTimeout time.Duration
	sleep       func(time.Duration)

	// bus is held from Init until the session is released.
	bus     sync.Mutex
	mu      sync.Mutex
	session *Session
}

// NewSPI creates a new panel device connected via SPI.
//
// The SPI port is configured for 4MHz, Mode0 (CPOL=0, CPHA=0), 8-bit
// transfers, MSB first. The panel is not touched until Init.
//
// RST and Busy are required, so opts cannot be nil in practice.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("epd5in65f: DC pin is required")
	}

	c, err := p.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd5in65f: failed to connect SPI: %w", err)
	}
	return newDev(c, dc, &o), nil
}

// validate applies defaults to o and checks it.
func (o *Opts) validate() error {
	if o.W == 0 {
		o.W = 600
	}
	if o.H == 0 {
		o.H = 448
	}
	if o.W < 0 || o.W%2 != 0 || o.W > 0xFFFF {
		return errors.New("epd5in65f: width must be even and between 2 and 65534")
	}
	if o.H < 0 || o.H > 0xFFFF {
		return errors.New("epd5in65f: height must be between 1 and 65535")
	}
	if o.RST == nil {
		return errors.New("epd5in65f: RST pin is required")
	}
	if o.Busy == nil {
		return errors.New("epd5in65f: Busy pin is required")
	}
	if o.BusyPoll < 0 || o.BusyTimeout < 0 {
		return errors.New("epd5in65f: busy durations must not be negative")
	}
	return nil
}

// newDev builds a Dev on an established connection. opts must be validated.
func newDev(c conn.Conn, dc gpio.PinOut, opts *Opts) *Dev {
	d := &Dev{
		c:           c,
		dc:          dc,
		rst:         opts.RST,
		cs:          opts.CS,
		busy:        opts.Busy,
		maxTx:       defaultMaxTxSize,
		rect:        image.Rect(0, 0, opts.W, opts.H),
		op:          DefaultOpcodes,
		reg:         DefaultRegisters,
		timing:      DefaultTiming,
		busyPoll:    opts.BusyPoll,
		busyTimeout: opts.BusyTimeout,
		sleep:       time.Sleep,
	}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		d.maxTx = l.MaxTxSize()
	}
	if opts.Opcodes != nil {
		d.op = *opts.Opcodes
	}
	if opts.Registers != nil {
		d.reg = *opts.Registers
	}
	if opts.Timing != nil {
		d.timing = *opts.Timing
	}
	if d.busyPoll == 0 {
		d.busyPoll = defaultBusyPoll
	}
	return d
}

// Init resets the panel, takes exclusive ownership of the display bus and
// configures the controller.
//
// The returned Session owns the bus until Session.Sleep. Init blocks while
// another session is open.
func (d *Dev) Init() (*Session, error) {
	d.bus.Lock()
	if err := d.powerUp(); err != nil {
		d.release()
		return nil, err
	}
	s := &Session{d: d}
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
	return s, nil
}

// powerUp performs the reset pulse and the init sequence.
func (d *Dev) powerUp() error {
	if err := d.reset(); err != nil {
		return err
	}
	if d.cs != nil {
		if err := d.cs.Out(gpio.Low); err != nil {
			return fmt.Errorf("epd5in65f: failed to pull CS low: %w", err)
		}
	}
	if err := d.waitBusy(gpio.High); err != nil {
		return err
	}
	return d.run(d.initSequence())
}

// reset pulses the reset line and waits for the controller to come up.
func (d *Dev) reset() error {
	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd5in65f: failed to pull RST low: %w", err)
	}
	d.sleep(d.timing.ResetPulse)
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd5in65f: failed to pull RST high: %w", err)
	}
	d.sleep(d.timing.ResetHold)
	return nil
}

// release gives the display bus back. It is safe on every exit path.
func (d *Dev) release() {
	if d.cs != nil {
		_ = d.cs.Out(gpio.High)
	}
	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()
	d.bus.Unlock()
}

// waitBusy polls the busy line until it reads want.
func (d *Dev) waitBusy(want gpio.Level) error {
	var waited time.Duration
	for d.busy.Read() != want {
		if d.busyTimeout > 0 && waited >= d.busyTimeout {
			return fmt.Errorf("%w: waiting for %s after %s", ErrBusyTimeout, want, waited)
		}
		d.sleep(d.busyPoll)
		waited += d.busyPoll
	}
	return nil
}

// sendCommand sends a single command byte.
func (d *Dev) sendCommand(cmd byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	return d.c.Tx([]byte{cmd}, nil)
}

// sendData sends data bytes, split to the port's transfer limit.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(data) > 0 {
		n := len(data)
		if n > d.maxTx {
			n = d.maxTx
		}
		if err := d.c.Tx(data[:n], nil); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// frameSize is the number of bytes in a full frame.
func (d *Dev) frameSize() int {
	return d.rect.Dx() * d.rect.Dy() / 2
}

// ColorModel returns the color model of the panel.
func (d *Dev) ColorModel() color.Model {
	return image7color.Model
}

// Bounds returns the image bounds of the panel.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw renders src onto a white frame and shows it: a full Init, Clear to
// Clean, image, Sleep cycle.
//
// It implements display.Drawer.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	frame := image7color.NewPacked(d.rect)
	frame.Fill(image7color.White)
	draw.Draw(frame, dst.Intersect(d.rect), src, sp, draw.Src)

	s, err := d.Init()
	if err != nil {
		return err
	}
	if err := s.Clear(image7color.Clean); err != nil {
		_ = s.Sleep()
		return err
	}
	if err := s.Draw(frame); err != nil {
		_ = s.Sleep()
		return err
	}
	return s.Sleep()
}

// Halt puts the panel to sleep if a session is open.
//
// Halt uses the open Session, so it must not run while another goroutine is
// still calling methods on that Session. Call it from the goroutine that
// owns the session, or once that goroutine is done with it.
func (d *Dev) Halt() error {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Sleep()
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("epd5in65f.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}

var _ display.Drawer = &Dev{}
