package epd5in65f

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/flavioheleno/epd5in65f/image7color"
	"periph.io/x/conn/v3/gpio"
)

// Session is exclusive ownership of the display bus, from Dev.Init to Sleep.
//
// Image data is streamed between BeginImage and EndImage in chunks of any
// size, so a frame never needs to be held in memory:
//
//	s, err := dev.Init()
//	...
//	s.BeginImage()
//	io.Copy(s, file)
//	s.EndImage()
//	s.Sleep()
//
// A Session is not safe for concurrent use.
type Session struct {
	d         *Dev
	closed    bool
	streaming bool
	sent      int
}

// Clear fills the whole panel with c and refreshes it.
//
// Use image7color.Clean before showing an image to avoid ghosting.
func (s *Session) Clear(c image7color.Color) error {
	if err := s.BeginImage(); err != nil {
		return err
	}

	n := s.d.frameSize()
	chunk := make([]byte, min(n, s.d.maxTx))
	pair := image7color.PixelPair(c, c)
	for i := range chunk {
		chunk[i] = pair
	}
	for n > 0 {
		k := min(n, len(chunk))
		if err := s.SendImageData(chunk[:k]); err != nil {
			return err
		}
		n -= k
	}

	return s.EndImage()
}

// BeginImage prepares the controller to receive a frame.
func (s *Session) BeginImage() error {
	if s.closed {
		return ErrSessionClosed
	}
	d := s.d
	if err := d.run([]step{d.resolution(), {cmd: d.op.DataStart}}); err != nil {
		return err
	}
	s.streaming = true
	s.sent = 0
	return nil
}

// SendPixelPair sends two pixels of image data.
func (s *Session) SendPixelPair(a, b image7color.Color) error {
	return s.SendImageData([]byte{image7color.PixelPair(a, b)})
}

// SendImageData sends packed pixel pairs, row-major.
func (s *Session) SendImageData(p []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.streaming {
		return ErrNotStreaming
	}
	if s.sent+len(p) > s.d.frameSize() {
		return fmt.Errorf("%w: %d bytes after %d, frame is %d", ErrFrameOverflow, len(p), s.sent, s.d.frameSize())
	}
	if err := s.d.sendData(p); err != nil {
		return err
	}
	s.sent += len(p)
	return nil
}

// Write implements io.Writer on top of SendImageData.
func (s *Session) Write(p []byte) (int, error) {
	if err := s.SendImageData(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EndImage refreshes the panel with the transmitted frame.
//
// Power on, refresh and power off always run in that order, each followed
// by its busy wait, then the panel settles. A short frame is refreshed as
// is; the controller keeps the previous content for the missing bytes.
func (s *Session) EndImage() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.streaming = false
	d := s.d

	if err := d.sendCommand(d.op.PowerOn); err != nil {
		return err
	}
	if err := d.waitBusy(gpio.High); err != nil {
		return err
	}

	if err := d.sendCommand(d.op.DisplayRefresh); err != nil {
		return err
	}
	if err := d.waitBusy(gpio.High); err != nil {
		return err
	}

	if err := d.sendCommand(d.op.PowerOff); err != nil {
		return err
	}
	if err := d.waitBusy(gpio.Low); err != nil {
		return err
	}

	d.sleep(d.timing.RefreshSettle)
	return nil
}

// Draw converts img to the panel palette and shows it.
// img is drawn at the panel origin over a white background.
func (s *Session) Draw(img image.Image) error {
	if s.closed {
		return ErrSessionClosed
	}
	rect := s.d.rect
	var frame *image7color.Packed
	if img.Bounds().Size() == rect.Size() {
		frame = image7color.Convert(img)
	} else {
		frame = image7color.NewPacked(rect)
		frame.Fill(image7color.White)
		draw.Draw(frame, rect, img, img.Bounds().Min, draw.Src)
	}

	if err := s.BeginImage(); err != nil {
		return err
	}
	if err := s.SendImageData(frame.Pix); err != nil {
		return err
	}
	return s.EndImage()
}

// Sleep puts the panel into deep sleep and releases the display bus.
//
// The bus is released even when a transfer fails. The session cannot be
// used afterwards; call Dev.Init to wake the panel.
func (s *Session) Sleep() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.streaming = false
	d := s.d
	defer d.release()

	d.sleep(d.timing.SleepSettle)
	if err := d.sendCommand(d.op.DeepSleep); err != nil {
		return err
	}
	if err := d.sendData([]byte{d.reg.DeepSleepCheck}); err != nil {
		return err
	}
	d.sleep(d.timing.SleepSettle)

	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd5in65f: failed to pull RST low: %w", err)
	}
	return nil
}
