package environment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mklimuk/lightsensor"
)

// Refresh interval bounds in milliseconds.
const (
	MinIntervalMs     = 10
	MaxIntervalMs     = 60000
	DefaultIntervalMs = 1000
)

// Settings are the process wide refresh knobs shared by the cache and the
// refresher. Writes are validated; readers never see an out of range value.
type Settings struct {
	intervalMs  atomic.Uint32
	autoRefresh atomic.Bool
}

func NewSettings() *Settings {
	s := &Settings{}
	s.intervalMs.Store(DefaultIntervalMs)
	s.autoRefresh.Store(true)
	return s
}

func (s *Settings) Interval() time.Duration {
	return time.Duration(s.intervalMs.Load()) * time.Millisecond
}

func (s *Settings) IntervalMs() uint32 {
	return s.intervalMs.Load()
}

// SetIntervalMs replaces the interval, keeping the previous one when ms is
// outside [MinIntervalMs, MaxIntervalMs].
func (s *Settings) SetIntervalMs(ms uint64) error {
	if ms < MinIntervalMs || ms > MaxIntervalMs {
		return fmt.Errorf("refresh interval %dms not in [%d, %d]: %w", ms, MinIntervalMs, MaxIntervalMs, sensors.ErrRange)
	}
	s.intervalMs.Store(uint32(ms))
	return nil
}

func (s *Settings) AutoRefresh() bool {
	return s.autoRefresh.Load()
}

func (s *Settings) SetAutoRefresh(enabled bool) {
	s.autoRefresh.Store(enabled)
}

// LuxReader performs a measurement.
type LuxReader interface {
	ReadLux(ctx context.Context) (uint32, error)
}

// Refresher keeps the cache warm from a background goroutine. The interval
// is re-read on every cycle so a change applies from the next wait on.
type Refresher struct {
	reader   LuxReader
	settings *Settings
	clock    clock.Clock

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewRefresher(reader LuxReader, settings *Settings, clk clock.Clock) *Refresher {
	if clk == nil {
		clk = clock.New()
	}
	return &Refresher{
		reader:   reader,
		settings: settings,
		clock:    clk,
		done:     make(chan struct{}),
	}
}

func (r *Refresher) Start() {
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.wg.Add(1)
		go r.run(ctx)
	})
}

// Stop signals the goroutine and waits for it to exit. After Stop returns
// the refresher will not touch the sensor again.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		if r.cancel != nil {
			r.cancel()
		}
	})
	r.wg.Wait()
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()
	slog.Debug("starting background refresh", "interval", r.settings.Interval())
	for {
		timer := r.clock.Timer(r.settings.Interval())
		select {
		case <-r.done:
			timer.Stop()
			slog.Debug("stopping background refresh")
			return
		case <-timer.C:
		}
		if !r.settings.AutoRefresh() {
			continue
		}
		// best effort, the cache keeps its last value on failure
		lux, err := r.reader.ReadLux(ctx)
		if err != nil {
			slog.Debug("background refresh failed", "error", err)
			continue
		}
		slog.Debug("background refresh", "lux", lux)
	}
}
