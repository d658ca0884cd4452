package epd5in65f

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakePanel simulates the panel side of the bus. It records every command,
// data transfer, line change and delay in order.
type fakePanel struct {
	mu      sync.Mutex
	events  []string
	frames  map[byte][]byte // data received after each command, last write wins
	lastCmd byte
	txs     int
	maxTx   int
	failTx  int // fail the nth Tx (1-based), 0 never

	dc   *gpiotest.Pin
	rst  *loggedPin
	cs   *loggedPin
	busy *scriptedBusy
}

func newFakePanel() *fakePanel {
	f := &fakePanel{
		frames: map[byte][]byte{},
		maxTx:  4096,
		dc:     &gpiotest.Pin{N: "DC"},
	}
	f.rst = &loggedPin{Pin: gpiotest.Pin{N: "RST", L: gpio.High}, f: f}
	f.cs = &loggedPin{Pin: gpiotest.Pin{N: "CS", L: gpio.High}, f: f}
	f.busy = &scriptedBusy{Pin: gpiotest.Pin{N: "BUSY"}, f: f}
	return f
}

// dev returns a Dev wired to the fake with delays recorded instead of slept.
func (f *fakePanel) dev(opts *Opts) *Dev {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	o.RST = f.rst
	o.Busy = f.busy
	if o.CS == nil {
		o.CS = f.cs
	}
	if err := o.validate(); err != nil {
		panic(err)
	}
	d := newDev(f, f.dc, &o)
	d.sleep = func(t time.Duration) { f.log("delay %s", t) }
	return d
}

func (f *fakePanel) log(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

func (f *fakePanel) String() string { return "fakePanel" }

func (f *fakePanel) Duplex() conn.Duplex { return conn.Half }

func (f *fakePanel) MaxTxSize() int { return f.maxTx }

// Tx implements conn.Conn. Consecutive data transfers are merged into one
// event so a streamed frame reads as a single entry.
func (f *fakePanel) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	if f.failTx == f.txs {
		return fmt.Errorf("tx %d failed", f.txs)
	}
	if len(w) > f.maxTx {
		return fmt.Errorf("tx of %d bytes exceeds limit %d", len(w), f.maxTx)
	}
	if f.dc.Read() == gpio.Low {
		if len(w) != 1 {
			return fmt.Errorf("command transfer of %d bytes", len(w))
		}
		f.lastCmd = w[0]
		f.frames[w[0]] = nil
		f.events = append(f.events, fmt.Sprintf("cmd %02X", w[0]))
		return nil
	}
	f.frames[f.lastCmd] = append(f.frames[f.lastCmd], w...)
	last := len(f.events) - 1
	if last >= 0 && strings.HasPrefix(f.events[last], "data ") {
		f.events[last] = "data " + summarize(f.frames[f.lastCmd])
	} else {
		f.events = append(f.events, "data "+summarize(w))
	}
	return nil
}

// TxPackets implements spi.Conn.
func (f *fakePanel) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := f.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

// fakePort hands out the fake panel as its connection.
type fakePort struct {
	f    *fakePanel
	freq physic.Frequency
	mode spi.Mode
	bits int
}

func (p *fakePort) String() string { return "fakePort" }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.freq, p.mode, p.bits = f, mode, bits
	return p.f, nil
}

func summarize(b []byte) string {
	if len(b) <= 8 {
		return fmt.Sprintf("% X", b)
	}
	return fmt.Sprintf("[%d]", len(b))
}

func (f *fakePanel) transcript() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakePanel) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// loggedPin records every level change.
type loggedPin struct {
	gpiotest.Pin
	f *fakePanel
}

func (p *loggedPin) Out(l gpio.Level) error {
	p.f.log("%s %s", p.N, l)
	return p.Pin.Out(l)
}

// scriptedBusy behaves like an idle panel: high when ready, low once powered
// off. Levels queued in script are returned first.
type scriptedBusy struct {
	gpiotest.Pin
	f      *fakePanel
	script []gpio.Level
	stuck  bool
}

func (b *scriptedBusy) Read() gpio.Level {
	b.f.mu.Lock()
	l := gpio.High
	if b.f.lastCmd == DefaultOpcodes.PowerOff {
		l = gpio.Low
	}
	switch {
	case b.stuck:
		l = !l
	case len(b.script) > 0:
		l = b.script[0]
		b.script = b.script[1:]
	}
	b.f.mu.Unlock()
	b.f.log("busy %s", l)
	return l
}
