package epd5in65f

import "time"

// Opcodes is the command table of the panel controller.
type Opcodes struct {
	PanelSetting     byte
	PowerSetting     byte
	PowerOff         byte
	PowerOffSequence byte
	PowerOn          byte
	BoosterSoftStart byte
	DeepSleep        byte
	DataStart        byte
	DisplayRefresh   byte
	PLLControl       byte
	TempSensor       byte
	VCOMDataInterval byte
	TCONSetting      byte
	Resolution       byte
	PowerSaving      byte
}

// DefaultOpcodes is the command table of the UC8159-class controller fitted
// to the 5.65" 7-color panel.
var DefaultOpcodes = Opcodes{
	PanelSetting:     0x00,
	PowerSetting:     0x01,
	PowerOff:         0x02,
	PowerOffSequence: 0x03,
	PowerOn:          0x04,
	BoosterSoftStart: 0x06,
	DeepSleep:        0x07,
	DataStart:        0x10,
	DisplayRefresh:   0x12,
	PLLControl:       0x30,
	TempSensor:       0x41,
	VCOMDataInterval: 0x50,
	TCONSetting:      0x60,
	Resolution:       0x61,
	PowerSaving:      0xE3,
}

// Registers holds the data bytes written during initialization.
type Registers struct {
	PanelSetting     []byte
	PowerSetting     []byte
	PowerOffSequence []byte
	BoosterSoftStart []byte
	PLLControl       []byte
	TempSensor       []byte
	VCOMDataInterval []byte
	TCONSetting      []byte
	PowerSaving      []byte
	// DeepSleepCheck must follow DeepSleep or the controller ignores it.
	DeepSleepCheck byte
}

// DefaultRegisters are the values the panel vendor ships for the 600x448 panel.
var DefaultRegisters = Registers{
	PanelSetting:     []byte{0xEF, 0x08},             // scan up, shift right, booster on
	PowerSetting:     []byte{0x37, 0x00, 0x23, 0x23}, // internal DC/DC
	PowerOffSequence: []byte{0x00},                   // 1 frame
	BoosterSoftStart: []byte{0xC7, 0xC7, 0x1D},
	PLLControl:       []byte{0x3C}, // 50Hz
	TempSensor:       []byte{0x00}, // internal sensor, no offset
	VCOMDataInterval: []byte{0x37}, // default LUT, white border
	TCONSetting:      []byte{0x22},
	PowerSaving:      []byte{0xAA},
	DeepSleepCheck:   0xA5,
}

// Timing holds the fixed delays of the power sequences.
type Timing struct {
	ResetPulse    time.Duration // RST held low
	ResetHold     time.Duration // RST high before the controller accepts commands
	ConfigDelay   time.Duration // before the second VCOM/data interval write
	RefreshSettle time.Duration // after power off, once a refresh completes
	SleepSettle   time.Duration // around the deep sleep command
}

// DefaultTiming matches the panel application note.
var DefaultTiming = Timing{
	ResetPulse:    time.Millisecond,
	ResetHold:     200 * time.Millisecond,
	ConfigDelay:   100 * time.Millisecond,
	RefreshSettle: 500 * time.Millisecond,
	SleepSettle:   100 * time.Millisecond,
}

// step is one entry of a command sequence: a command with its data, or a
// pause of delay. A pause never reaches the bus.
type step struct {
	cmd   byte
	data  []byte
	pause bool
	delay time.Duration
}

// initSequence returns the register configuration sent after reset.
// The order is part of the protocol.
func (d *Dev) initSequence() []step {
	op, r := &d.op, &d.reg
	return []step{
		{cmd: op.PanelSetting, data: r.PanelSetting},
		{cmd: op.PowerSetting, data: r.PowerSetting},
		{cmd: op.PowerOffSequence, data: r.PowerOffSequence},
		{cmd: op.BoosterSoftStart, data: r.BoosterSoftStart},
		{cmd: op.PLLControl, data: r.PLLControl},
		{cmd: op.TempSensor, data: r.TempSensor},
		{cmd: op.VCOMDataInterval, data: r.VCOMDataInterval},
		{cmd: op.TCONSetting, data: r.TCONSetting},
		d.resolution(),
		{cmd: op.PowerSaving, data: r.PowerSaving},
		{pause: true, delay: d.timing.ConfigDelay},
		{cmd: op.VCOMDataInterval, data: r.VCOMDataInterval},
	}
}

// resolution returns the resolution setting for the configured geometry,
// big-endian width then height.
func (d *Dev) resolution() step {
	w, h := d.rect.Dx(), d.rect.Dy()
	return step{
		cmd:  d.op.Resolution,
		data: []byte{byte(w >> 8), byte(w), byte(h >> 8), byte(h)},
	}
}

// run sends a sequence of steps.
func (d *Dev) run(steps []step) error {
	for _, s := range steps {
		if s.pause {
			if s.delay > 0 {
				d.sleep(s.delay)
			}
			continue
		}
		if err := d.sendCommand(s.cmd); err != nil {
			return err
		}
		if len(s.data) == 0 {
			continue
		}
		if err := d.sendData(s.data); err != nil {
			return err
		}
	}
	return nil
}
