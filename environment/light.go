package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Reading is a copy of the cached sensor state.
type Reading struct {
	Lux         uint32
	Updated     time.Time
	Initialized bool
	Continuous  bool
}

type LightOpts struct {
	Clock clock.Clock
}

type LightOpt func(*LightOpts)

func WithClock(clk clock.Clock) LightOpt {
	return func(o *LightOpts) {
		o.Clock = clk
	}
}

// LightSensor caches the last lux value behind one lock. The same lock
// serialises every bus transaction, so a foreground read waits for a
// background refresh to finish and vice versa.
//
// Typical usage:
//
//	s := NewLightSensor(NewBH1750(master, BH1750AddrLow), NewSettings())
//	lux, err := s.Get(ctx)
type LightSensor struct {
	mx       sync.Mutex
	sensor   *BH1750
	settings *Settings
	clock    clock.Clock
	rec      Reading
	closed   bool
}

func NewLightSensor(sensor *BH1750, settings *Settings, opts ...LightOpt) *LightSensor {
	config := LightOpts{
		Clock: clock.New(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &LightSensor{
		sensor:   sensor,
		settings: settings,
		clock:    config.Clock,
	}
}

// ReadLux runs a full measurement transaction and updates the cache.
// A context cancelled while waiting for the bus aborts before any bus
// activity; a started transaction always runs to completion.
func (l *LightSensor) ReadLux(ctx context.Context) (uint32, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.usable(ctx); err != nil {
		return 0, err
	}
	return l.readLux()
}

// Get returns the cached value while it is younger than the refresh
// interval and auto refresh is on; otherwise it reads the sensor.
func (l *LightSensor) Get(ctx context.Context) (uint32, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.closed {
		return 0, errClosed
	}
	if !l.stale() {
		return l.rec.Lux, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.readLux()
}

// Snapshot returns a copy of the cached state.
func (l *LightSensor) Snapshot() Reading {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.rec
}

// PowerDown sends the sensor to sleep. The next read initializes it again.
func (l *LightSensor) PowerDown(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.usable(ctx); err != nil {
		return err
	}
	l.rec.Initialized = false
	l.rec.Continuous = false
	return l.sensor.PowerDown()
}

// Close waits for the transaction in progress, if any, and refuses every
// later bus access. The pins may be released once it returns.
func (l *LightSensor) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.closed = true
	return nil
}

var errClosed = fmt.Errorf("light sensor: %w", os.ErrClosed)

func (l *LightSensor) usable(ctx context.Context) error {
	if l.closed {
		return errClosed
	}
	return ctx.Err()
}

func (l *LightSensor) stale() bool {
	if !l.settings.AutoRefresh() || l.rec.Updated.IsZero() {
		return true
	}
	return l.clock.Since(l.rec.Updated) >= l.settings.Interval()
}

// readLux must be called with mx held.
func (l *LightSensor) readLux() (uint32, error) {
	continuous := l.rec.Continuous
	switch {
	case !l.rec.Initialized:
		if err := l.sensor.Init(); err != nil {
			return 0, fmt.Errorf("could not initialize sensor: %w", err)
		}
		continuous = IsContinuous(l.sensor.Mode())
	case !continuous:
		// a one-shot result is stale until a new measurement is triggered
		if err := l.sensor.Trigger(); err != nil {
			l.reset()
			return 0, fmt.Errorf("could not trigger measurement: %w", err)
		}
	}
	raw, err := l.sensor.ReadRaw()
	if err != nil {
		l.reset()
		return 0, fmt.Errorf("could not read measurement: %w", err)
	}
	l.rec = Reading{
		Lux:         Lux(raw),
		Updated:     l.clock.Now(),
		Initialized: true,
		Continuous:  continuous,
	}
	slog.Debug("light measured", "raw", raw, "lux", l.rec.Lux)
	return l.rec.Lux, nil
}

// reset sends the state machine back to uninitialized while keeping the last
// good value.
func (l *LightSensor) reset() {
	l.rec.Initialized = false
	l.rec.Continuous = false
}
