// Package epd5in65f controls a 5.65" 7-color ACeP e-paper panel via SPI.
//
// The panel shows 600×448 pixels, each one of seven pigments (black, white,
// green, blue, red, yellow, orange). A full refresh takes tens of seconds and
// the image persists without power, which makes the panel a good fit for
// battery powered photo frames.
//
// # Display Characteristics
//
// - 7 colors plus a Clean pseudo-color used to neutralize the panel
// - Pixels packed two per byte, high nibble first (see image7color)
// - Frames are streamed; the driver never buffers a full image
// - Busy line synchronization for power on, refresh and power off
// - Deep sleep between refreshes
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	CLK         → SPI Clock (SCLK)
//	DIN         → SPI Data (MOSI)
//	CS          → SPI Chip Select, or a GPIO passed as Opts.CS
//	DC          → GPIO (any available pin)
//	RST         → GPIO (required)
//	BUSY        → GPIO input (required)
//
// # Sessions
//
// The panel is driven in sessions. Init resets the controller, takes the
// display bus and sends the configuration; Sleep puts the panel into deep
// sleep and gives the bus back. In between, a session clears the panel or
// streams one or more frames:
//
//	s, err := dev.Init()
//	if err != nil {
//		return err
//	}
//	defer s.Sleep()
//
//	// Avoid ghosting from the previous image
//	if err := s.Clear(image7color.Clean); err != nil {
//		return err
//	}
//
//	if err := s.BeginImage(); err != nil {
//		return err
//	}
//	if _, err := io.Copy(s, f); err != nil { // f holds 600*448/2 packed bytes
//		return err
//	}
//	return s.EndImage()
//
// EndImage always powers the panel on, refreshes it and powers it off, each
// step followed by its busy wait, then lets the panel settle. Reordering these
// steps corrupts the image on real hardware.
//
// # Busy Line
//
// The controller pulls BUSY low while it works. By default the driver polls
// the line every 10ms with no upper bound: a panel that never releases the
// line blocks the caller forever. Set Opts.BusyTimeout to turn a stalled line
// into ErrBusyTimeout instead.
//
// # Basic Usage
//
//	package main
//
//	import (
//		"image"
//
//		"github.com/flavioheleno/epd5in65f"
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//
//		p, _ := spireg.Open("")
//		dev, _ := epd5in65f.NewSPI(p, gpioreg.ByName("GPIO25"), &epd5in65f.Opts{
//			RST:  gpioreg.ByName("GPIO17"),
//			Busy: gpioreg.ByName("GPIO24"),
//		})
//
//		// Draw runs a whole Init, Clear, image, Sleep cycle.
//		dev.Draw(dev.Bounds(), img, image.Point{})
//	}
//
// # Protocol
//
// Commands are sent with DC low and their data with DC high. The command
// bytes and register values are exposed as Opcodes and Registers so the
// driver can be pointed at controller variants or a simulated bus.
//
// # Compatibility with periph.io
//
// Dev implements the display.Drawer interface from periph.io.
package epd5in65f
