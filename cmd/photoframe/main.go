// Command photoframe shows the images of a card directory on a 5.65"
// 7-color panel, one per rotation interval.
//
// Modes:
//
//	next        advance the rotation once and exit
//	current     show the image under the cursor again and exit
//	lowbattery  show the low battery placard and exit
//	clear       fill the panel with -color and exit
//	loop        show, sleep for rotation.interval, repeat until signaled
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/flavioheleno/epd5in65f"
	"github.com/flavioheleno/epd5in65f/adc"
	"github.com/flavioheleno/epd5in65f/image7color"
	"github.com/flavioheleno/epd5in65f/internal/config"
	"github.com/flavioheleno/epd5in65f/presenter"
	"github.com/flavioheleno/epd5in65f/rotator"
)

func main() {
	var (
		configPath = flag.String("config", "/etc/photoframe.yaml", "path to the yaml config")
		mode       = flag.String("mode", "loop", "next | current | lowbattery | clear | loop")
		clearColor = flag.String("color", "White", "fill color for -mode clear")
		start      = flag.String("start", "", "resume the rotation after this file name")
		debug      = flag.Bool("debug", false, "force debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config")
		}
		log.Warn().Str("path", *configPath).Msg("config not found; using defaults")
		cfg = config.Default()
	}
	setLevel(cfg.LogLevel, *debug)
	if *start != "" {
		cfg.Rotation.StartAfter = *start
	}

	if _, err := host.Init(); err != nil {
		log.Fatal().Err(err).Msg("periph host init")
	}

	port, err := spireg.Open(cfg.SPI.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.SPI.Port).Msg("open spi")
	}
	defer port.Close()

	dev, err := epd5in65f.NewSPI(port, outPin(cfg.Pins.DC), &epd5in65f.Opts{
		W:           cfg.Panel.Width,
		H:           cfg.Panel.Height,
		RST:         outPin(cfg.Pins.RST),
		Busy:        inPin(cfg.Pins.Busy),
		CS:          optionalOutPin(cfg.SPI.CS),
		BusyPoll:    cfg.Panel.BusyPoll,
		BusyTimeout: cfg.Panel.BusyTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("panel")
	}
	defer dev.Halt()
	log.Info().Stringer("dev", dev).Msg("panel ready")

	if *mode == "clear" {
		c, err := image7color.ParseColor(*clearColor)
		if err != nil {
			log.Fatal().Err(err).Msg("clear")
		}
		if err := clearPanel(dev, c); err != nil {
			log.Fatal().Err(err).Msg("clear")
		}
		return
	}

	rot := rotator.New(&rotator.DirStorage{Root: cfg.Storage.Root}, &rotator.Opts{
		ImageSize: int64(cfg.Panel.Width * cfg.Panel.Height / 2),
		SystemDir: cfg.Storage.SystemDir,
		Start:     cfg.Rotation.StartAfter,
	})

	opts := presenter.DefaultOpts()
	opts.NoImage = mustColor(cfg.Colors.NoImage)
	opts.CardFailure = mustColor(cfg.Colors.CardFailure)
	opts.LowBattery = mustColor(cfg.Colors.LowBattery)
	if cfg.Pins.LED != "" {
		opts.LED = outPin(cfg.Pins.LED)
	}
	p := presenter.New(presenter.FromDev(dev), rot, &opts)

	battery := batteryCheck(cfg)

	switch *mode {
	case "next":
		err = p.ShowNext()
	case "current":
		err = p.ShowCurrent()
	case "lowbattery":
		err = p.ShowLowBattery()
	case "loop":
		err = loop(p, battery, cfg.Rotation.Interval)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
	if err != nil {
		log.Error().Err(err).Str("mode", *mode).Msg("show failed")
	}
	log.Info().Str("cursor", rot.Cursor()).Msg("done")
}

// loop shows one image per interval. A low battery reading shows the
// placard instead and stops the rotation until the next start.
func loop(p *presenter.Presenter, low func() bool, interval time.Duration) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	show := p.ShowCurrent
	for {
		if low() {
			return p.ShowLowBattery()
		}
		if err := show(); err != nil {
			log.Error().Err(err).Msg("show")
		}
		show = p.ShowNext

		if interval == 0 {
			return nil
		}
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("stopping")
			return nil
		case <-time.After(interval):
		}
	}
}

func batteryCheck(cfg *config.Config) func() bool {
	if cfg.Battery.IIO == "" {
		return func() bool { return false }
	}
	d := &adc.Divider{
		Source: &adc.IIOChannel{Path: cfg.Battery.IIO},
		Ratio:  cfg.Battery.DividerRatio,
	}
	threshold := physic.ElectricPotential(cfg.Battery.LowVolts * float64(physic.Volt))
	return func() bool {
		low, v, err := d.Below(threshold)
		if err != nil {
			log.Warn().Err(err).Str("adc", cfg.Battery.IIO).Msg("battery read")
			return false
		}
		log.Debug().Stringer("battery", v).Bool("low", low).Msg("battery")
		return low
	}
}

func clearPanel(dev *epd5in65f.Dev, c image7color.Color) error {
	s, err := dev.Init()
	if err != nil {
		return err
	}
	if err := s.Clear(image7color.Clean); err != nil {
		_ = s.Sleep()
		return err
	}
	if c != image7color.Clean {
		if err := s.Clear(c); err != nil {
			_ = s.Sleep()
			return err
		}
	}
	return s.Sleep()
}

func setLevel(name string, debug bool) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func mustColor(name string) image7color.Color {
	c, err := image7color.ParseColor(name)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	return c
}

func outPin(name string) gpio.PinOut {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatal().Str("pin", name).Msg("gpio pin not found")
	}
	return p
}

func inPin(name string) gpio.PinIn {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatal().Str("pin", name).Msg("gpio pin not found")
	}
	return p
}

func optionalOutPin(name string) gpio.PinOut {
	if name == "" {
		return nil
	}
	return outPin(name)
}
