package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/flavioheleno/epd5in65f/image7color"
	"github.com/flavioheleno/epd5in65f/rotator"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

const testSize = 16

// fakePanel records the calls a Presenter makes.
type fakePanel struct {
	calls   []string
	data    bytes.Buffer
	writes  []int
	initErr error
	failOn  string
	led     *gpiotest.Pin
}

func (p *fakePanel) record(call string) error {
	if p.led != nil && p.led.Read() != gpio.High {
		call += " (LED off)"
	}
	p.calls = append(p.calls, call)
	if call == p.failOn {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (p *fakePanel) Init() (Frame, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	if err := p.record("Init"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *fakePanel) Clear(c image7color.Color) error { return p.record("Clear " + c.String()) }
func (p *fakePanel) BeginImage() error               { return p.record("BeginImage") }
func (p *fakePanel) EndImage() error                 { return p.record("EndImage") }
func (p *fakePanel) Sleep() error                    { return p.record("Sleep") }

func (p *fakePanel) Write(b []byte) (int, error) {
	p.writes = append(p.writes, len(b))
	return p.data.Write(b)
}

func newTestFs(t *testing.T, names ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, n := range names {
		require.NoError(t, afero.WriteFile(fs, "/"+n, bytes.Repeat([]byte{n[0]}, testSize), 0o644))
	}
	return fs
}

func newTestPresenter(fs afero.Fs, storageErr error, opts *Opts) (*Presenter, *fakePanel, *rotator.Rotator) {
	panel := &fakePanel{}
	rot := rotator.New(&rotator.FsStorage{Fs: fs, Err: storageErr}, &rotator.Opts{ImageSize: testSize})
	return New(panel, rot, opts), panel, rot
}

var imageCalls = []string{"Init", "Clear Clean", "BeginImage", "EndImage", "Sleep"}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p := New(&fakePanel{}, nil, nil)
	assert.Equal(t, DefaultOpts(), p.opts)
	assert.Len(t, p.buf, 4200)

	p = New(&fakePanel{}, nil, &Opts{NoImage: image7color.Green})
	assert.Equal(t, 4200, p.opts.BufferSize)
	assert.Equal(t, "LowBattery.bin", p.opts.LowBatteryImage)
	assert.Equal(t, image7color.Green, p.opts.NoImage)
}

func TestShowNext(t *testing.T) {
	t.Parallel()

	p, panel, rot := newTestPresenter(newTestFs(t, "A.bin", "B.bin"), nil, &Opts{BufferSize: 5})

	require.NoError(t, p.ShowNext())
	assert.Equal(t, imageCalls, panel.calls)
	assert.Equal(t, bytes.Repeat([]byte{'A'}, testSize), panel.data.Bytes())
	assert.Equal(t, []int{5, 5, 5, 1}, panel.writes)
	assert.Equal(t, "A.bin", rot.Cursor())

	panel.calls, panel.writes = nil, nil
	panel.data.Reset()
	require.NoError(t, p.ShowNext())
	assert.Equal(t, bytes.Repeat([]byte{'B'}, testSize), panel.data.Bytes())
	assert.Equal(t, "B.bin", rot.Cursor())
}

func TestShowCurrent(t *testing.T) {
	t.Parallel()

	fs := newTestFs(t, "A.bin", "B.bin")
	p, panel, rot := newTestPresenter(fs, nil, nil)

	require.NoError(t, p.ShowNext())
	panel.data.Reset()
	require.NoError(t, p.ShowCurrent())
	assert.Equal(t, bytes.Repeat([]byte{'A'}, testSize), panel.data.Bytes())
	assert.Equal(t, "A.bin", rot.Cursor())

	require.NoError(t, fs.Remove("/A.bin"))
	panel.data.Reset()
	require.NoError(t, p.ShowCurrent())
	assert.Equal(t, bytes.Repeat([]byte{'B'}, testSize), panel.data.Bytes())
	assert.Equal(t, "B.bin", rot.Cursor())
}

func TestShowFallbacks(t *testing.T) {
	t.Parallel()

	cardErr := errors.New("no card")
	tests := []struct {
		name       string
		fs         afero.Fs
		storageErr error
		show       func(*Presenter) error
		wantColor  string
	}{
		{"no image", afero.NewMemMapFs(), nil, (*Presenter).ShowNext, "Blue"},
		{"no image current", afero.NewMemMapFs(), nil, (*Presenter).ShowCurrent, "Blue"},
		{"card failure", afero.NewMemMapFs(), cardErr, (*Presenter).ShowNext, "Orange"},
		{"card failure current", afero.NewMemMapFs(), cardErr, (*Presenter).ShowCurrent, "Orange"},
		{"low battery image missing", afero.NewMemMapFs(), nil, (*Presenter).ShowLowBattery, "Red"},
		{"low battery card failure", afero.NewMemMapFs(), cardErr, (*Presenter).ShowLowBattery, "Orange"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, panel, _ := newTestPresenter(tt.fs, tt.storageErr, nil)

			require.NoError(t, tt.show(p))
			assert.Equal(t, []string{"Init", "Clear Clean", "Clear " + tt.wantColor, "Sleep"}, panel.calls)
			assert.Zero(t, panel.data.Len())
		})
	}
}

func TestShowLowBattery(t *testing.T) {
	t.Parallel()

	fs := newTestFs(t, "A.bin")
	require.NoError(t, afero.WriteFile(fs, "/system/LowBattery.bin", []byte{0x44, 0x44}, 0o644))
	p, panel, rot := newTestPresenter(fs, nil, nil)

	require.NoError(t, p.ShowLowBattery())
	assert.Equal(t, imageCalls, panel.calls)
	assert.Equal(t, []byte{0x44, 0x44}, panel.data.Bytes())
	assert.Empty(t, rot.Cursor(), "system images leave the cursor alone")
}

func TestShowSystemImageCustomFallback(t *testing.T) {
	t.Parallel()

	p, panel, _ := newTestPresenter(afero.NewMemMapFs(), nil, nil)
	require.NoError(t, p.ShowSystemImage("Charging.bin", image7color.Green))
	assert.Contains(t, panel.calls, "Clear Green")
}

func TestShowPanelErrors(t *testing.T) {
	t.Parallel()

	t.Run("init", func(t *testing.T) {
		p, panel, _ := newTestPresenter(newTestFs(t, "A.bin"), nil, nil)
		panel.initErr = errors.New("bus stuck")
		err := p.ShowNext()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus stuck")
	})

	t.Run("refresh still sleeps", func(t *testing.T) {
		p, panel, _ := newTestPresenter(newTestFs(t, "A.bin"), nil, nil)
		panel.failOn = "EndImage"
		require.Error(t, p.ShowNext())
		assert.Equal(t, imageCalls, panel.calls)
	})

	t.Run("clear still sleeps", func(t *testing.T) {
		p, panel, _ := newTestPresenter(newTestFs(t), nil, nil)
		panel.failOn = "Clear Clean"
		require.Error(t, p.ShowNext())
		assert.Equal(t, []string{"Init", "Clear Clean", "Sleep"}, panel.calls)
	})
}

func TestShowDrivesLED(t *testing.T) {
	t.Parallel()

	led := &gpiotest.Pin{N: "LED"}
	p, panel, _ := newTestPresenter(newTestFs(t, "A.bin"), nil, &Opts{LED: led})
	panel.led = led

	require.NoError(t, p.ShowNext())
	assert.Equal(t, imageCalls, panel.calls, "LED must be high for every panel call")
	assert.Equal(t, gpio.Low, led.Read())

	panel.calls = nil
	panel.failOn = "EndImage"
	require.Error(t, p.ShowNext())
	assert.Equal(t, gpio.Low, led.Read(), "LED must be released on error")
}

func TestShowReleasesStorage(t *testing.T) {
	t.Parallel()

	p, _, rot := newTestPresenter(newTestFs(t, "A.bin"), nil, nil)
	require.NoError(t, p.ShowNext())

	s, err := rot.Begin()
	require.NoError(t, err, "storage bus must be free after a show")
	require.NoError(t, s.Close())
}
