package device

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/mklimuk/lightsensor"
	"github.com/mklimuk/lightsensor/environment"
	"github.com/mklimuk/lightsensor/softi2c"
)

// Default wiring of the sensor on the BeagleBone GPIO1 bank.
const (
	DefaultSCL = 17
	DefaultSDA = 16
)

type DriverOpts struct {
	Address     byte
	Mode        environment.Mode
	SCL         int
	SDA         int
	IntervalMs  uint64
	AutoRefresh bool
	Clock       clock.Clock
	Sleep       func(time.Duration)
	// Closers are released after the pins, e.g. the adaptor owning them.
	Closers     []io.Closer
}

type DriverOpt func(*DriverOpts)

func WithAddress(addr byte) DriverOpt {
	return func(o *DriverOpts) {
		o.Address = addr
	}
}

func WithMode(mode environment.Mode) DriverOpt {
	return func(o *DriverOpts) {
		o.Mode = mode
	}
}

func WithLines(scl, sda int) DriverOpt {
	return func(o *DriverOpts) {
		o.SCL = scl
		o.SDA = sda
	}
}

func WithInterval(ms uint64) DriverOpt {
	return func(o *DriverOpts) {
		o.IntervalMs = ms
	}
}

func WithAutoRefresh(enabled bool) DriverOpt {
	return func(o *DriverOpts) {
		o.AutoRefresh = enabled
	}
}

// WithClock sets the clock used by the cache and the refresher.
func WithClock(clk clock.Clock) DriverOpt {
	return func(o *DriverOpts) {
		o.Clock = clk
	}
}

// WithSleep replaces the conversion wait of the sensor.
func WithSleep(sleep func(time.Duration)) DriverOpt {
	return func(o *DriverOpts) {
		o.Sleep = sleep
	}
}

// WithCloser adds a resource released on Close.
func WithCloser(c io.Closer) DriverOpt {
	return func(o *DriverOpts) {
		o.Closers = append(o.Closers, c)
	}
}

// Driver owns the whole stack from the pins up to the record, and the
// background refresher.
type Driver struct {
	pins      sensors.Pins
	master    *softi2c.Master
	closers   []io.Closer
	light     *environment.LightSensor
	settings  *environment.Settings
	refresher *environment.Refresher
	record    *Record

	closeOnce sync.Once
	closeErr  error
}

// Load drives both lines high, builds the sensor stack on top of pins and
// starts background refresh. The sensor itself is initialized on first read.
func Load(pins sensors.Pins, opts ...DriverOpt) (*Driver, error) {
	config := DriverOpts{
		Address:     environment.BH1750AddrLow,
		Mode:        environment.ContinuousHigh,
		SCL:         DefaultSCL,
		SDA:         DefaultSDA,
		IntervalMs:  environment.DefaultIntervalMs,
		AutoRefresh: true,
		Clock:       clock.New(),
		Sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	settings := environment.NewSettings()
	if err := settings.SetIntervalMs(config.IntervalMs); err != nil {
		return nil, err
	}
	settings.SetAutoRefresh(config.AutoRefresh)

	master := softi2c.NewMaster(pins, config.SCL, config.SDA)
	master.Idle()
	sensor := environment.NewBH1750(master, config.Address,
		environment.WithMode(config.Mode),
		environment.WithSleep(config.Sleep))
	light := environment.NewLightSensor(sensor, settings, environment.WithClock(config.Clock))
	d := &Driver{
		pins:      pins,
		master:    master,
		closers:   config.Closers,
		light:     light,
		settings:  settings,
		refresher: environment.NewRefresher(light, settings, config.Clock),
		record:    NewRecord(light, settings),
	}
	d.refresher.Start()
	slog.Info("light sensor loaded",
		"address", config.Address,
		"mode", config.Mode,
		"scl", config.SCL,
		"sda", config.SDA,
		"interval", settings.Interval())
	return d, nil
}

func (d *Driver) Record() *Record {
	return d.record
}

func (d *Driver) Light() *environment.LightSensor {
	return d.light
}

func (d *Driver) Settings() *environment.Settings {
	return d.settings
}

// Bus exposes the bit-banged master as a generic I2C bus. Transactions on it
// are not serialised with sensor reads.
func (d *Driver) Bus(name string) *softi2c.Bus {
	return softi2c.NewBus(name, d.master)
}

// Sleep powers the sensor down until the next read.
func (d *Driver) Sleep(ctx context.Context) error {
	return d.light.PowerDown(ctx)
}

// Close stops the refresher, waits for a foreground read in progress and
// releases the pins. Reads after Close fail with os.ErrClosed. Later calls
// return the result of the first one.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.refresher.Stop()
		err := d.light.Close()
		if closer, ok := d.pins.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		for _, closer := range d.closers {
			err = multierr.Append(err, closer.Close())
		}
		d.closeErr = err
		slog.Info("light sensor unloaded")
	})
	return d.closeErr
}
