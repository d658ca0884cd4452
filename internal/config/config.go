package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flavioheleno/epd5in65f/image7color"
)

type SPI struct {
	Port string `yaml:"port"`             // "" for the first port, e.g. SPI0.0
	CS   string `yaml:"cs_pin,omitempty"` // optional GPIO held low for a session
}

type Pins struct {
	DC   string `yaml:"dc"`
	RST  string `yaml:"rst"`
	Busy string `yaml:"busy"`
	LED  string `yaml:"led,omitempty"`
}

type Panel struct {
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	BusyPoll    time.Duration `yaml:"busy_poll"`
	BusyTimeout time.Duration `yaml:"busy_timeout"` // 0 waits forever
}

type Storage struct {
	Root      string `yaml:"root"`       // mount point of the card
	SystemDir string `yaml:"system_dir"` // relative to root
}

type Rotation struct {
	Interval   time.Duration `yaml:"interval"`
	StartAfter string        `yaml:"start_after,omitempty"`
}

type Battery struct {
	IIO          string  `yaml:"iio,omitempty"` // raw channel file; empty disables the check
	DividerRatio float64 `yaml:"divider_ratio"`
	LowVolts     float64 `yaml:"low_volts"`
}

type Colors struct {
	NoImage     string `yaml:"no_image"`
	CardFailure string `yaml:"card_failure"`
	LowBattery  string `yaml:"low_battery"`
}

type Config struct {
	LogLevel string `yaml:"log_level"`

	SPI      SPI      `yaml:"spi"`
	Pins     Pins     `yaml:"pins"`
	Panel    Panel    `yaml:"panel"`
	Storage  Storage  `yaml:"storage"`
	Rotation Rotation `yaml:"rotation"`
	Battery  Battery  `yaml:"battery"`
	Colors   Colors   `yaml:"colors"`
}

// Default returns the configuration of the reference build: a Raspberry Pi
// with the panel HAT and the card mounted at /media/photos.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pins:     Pins{DC: "GPIO25", RST: "GPIO17", Busy: "GPIO24"},
		Panel:    Panel{Width: 600, Height: 448, BusyPoll: 10 * time.Millisecond},
		Storage:  Storage{Root: "/media/photos", SystemDir: "system"},
		Rotation: Rotation{Interval: 24 * time.Hour},
		Battery:  Battery{DividerRatio: 0.5, LowVolts: 3.4},
		Colors:   Colors{NoImage: "Blue", CardFailure: "Orange", LowBattery: "Red"},
	}
}

// Load reads path over Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Pins.DC == "" || c.Pins.RST == "" || c.Pins.Busy == "":
		return errors.New("config: pins.dc, pins.rst and pins.busy are required")
	case c.Panel.Width <= 0 || c.Panel.Width%2 != 0 || c.Panel.Height <= 0:
		return errors.New("config: panel size must be positive with an even width")
	case c.Storage.Root == "":
		return errors.New("config: storage.root is required")
	case c.Rotation.Interval < 0:
		return errors.New("config: rotation.interval must not be negative")
	case c.Battery.IIO != "" && c.Battery.DividerRatio <= 0:
		return errors.New("config: battery.divider_ratio must be positive")
	}
	for _, name := range []string{c.Colors.NoImage, c.Colors.CardFailure, c.Colors.LowBattery} {
		if _, err := image7color.ParseColor(name); err != nil {
			return fmt.Errorf("config: colors: %w", err)
		}
	}
	return nil
}
