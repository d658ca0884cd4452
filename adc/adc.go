// Package adc converts between a battery voltage measured through a resistor
// divider and the raw sample of a 10-bit ADC referenced to 3.3V.
package adc

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

const (
	// Resolution is the ADC resolution in bits.
	Resolution = 10
	// MaxValue is the number of distinct samples.
	MaxValue = 1 << Resolution
	// ReferenceVoltage is the ADC full scale.
	ReferenceVoltage = 3300 * physic.MilliVolt
)

// VoltageToValue returns the raw sample expected for v behind a divider of
// the given ratio (output/input).
func VoltageToValue(v physic.ElectricPotential, ratio float64) uint16 {
	return uint16(math.Round(float64(v) * MaxValue / float64(ReferenceVoltage) * ratio))
}

// ValueToVoltage returns the voltage before a divider of the given ratio for
// a raw sample.
func ValueToVoltage(raw uint16, ratio float64) physic.ElectricPotential {
	return physic.ElectricPotential(float64(raw) * float64(ReferenceVoltage) / ratio / MaxValue)
}

// Source provides raw ADC samples. analog.PinADC implements it.
type Source interface {
	Read() (analog.Sample, error)
}

// Divider measures a voltage through a resistor divider.
type Divider struct {
	Source Source
	Ratio  float64 // output/input, e.g. 0.5 for two equal resistors
}

// Voltage reads one sample and converts it.
func (d *Divider) Voltage() (physic.ElectricPotential, error) {
	if d.Ratio <= 0 {
		return 0, errors.New("adc: divider ratio must be positive")
	}
	s, err := d.Source.Read()
	if err != nil {
		return 0, err
	}
	if s.Raw < 0 || s.Raw >= MaxValue {
		return 0, fmt.Errorf("adc: sample %d out of range", s.Raw)
	}
	return ValueToVoltage(uint16(s.Raw), d.Ratio), nil
}

// Below reports whether the measured voltage is under threshold.
func (d *Divider) Below(threshold physic.ElectricPotential) (bool, physic.ElectricPotential, error) {
	v, err := d.Voltage()
	if err != nil {
		return false, 0, err
	}
	return v < threshold, v, nil
}

// IIOChannel reads raw samples from a Linux industrial I/O channel file,
// e.g. /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type IIOChannel struct {
	Path string
}

// Read implements Source.
func (c *IIOChannel) Read() (analog.Sample, error) {
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return analog.Sample{}, fmt.Errorf("adc: failed to read %s: %w", c.Path, err)
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return analog.Sample{}, fmt.Errorf("adc: invalid sample in %s: %w", c.Path, err)
	}
	return analog.Sample{Raw: int32(raw)}, nil
}

// String returns the channel path.
func (c *IIOChannel) String() string {
	return c.Path
}
