// Package device exposes the cached light reading as a small text record:
// reading it yields the lux value, writing a decimal number sets the refresh
// interval in milliseconds.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mklimuk/lightsensor"
	"github.com/mklimuk/lightsensor/environment"
)

// MaxWrite is the size limit of a single interval write.
const MaxWrite = 32

type Getter interface {
	Get(ctx context.Context) (uint32, error)
}

type Record struct {
	sensor   Getter
	settings *environment.Settings
	handles  atomic.Int64
}

func NewRecord(sensor Getter, settings *environment.Settings) *Record {
	return &Record{
		sensor:   sensor,
		settings: settings,
	}
}

func (r *Record) Get(ctx context.Context) (uint32, error) {
	return r.sensor.Get(ctx)
}

// Text renders the current value the way a read of the record returns it.
func (r *Record) Text(ctx context.Context) (string, error) {
	lux, err := r.sensor.Get(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d\n", lux), nil
}

func (r *Record) Interval() uint32 {
	return r.settings.IntervalMs()
}

// SetInterval parses a decimal millisecond value, optionally signed with a
// single '+' and followed by a single newline, and applies it as the refresh
// interval.
func (r *Record) SetInterval(text string) error {
	if len(text) >= MaxWrite {
		return fmt.Errorf("interval write of %d bytes: %w", len(text), sensors.ErrParse)
	}
	value := strings.TrimPrefix(strings.TrimSuffix(text, "\n"), "+")
	if value == "" {
		return fmt.Errorf("empty interval: %w", sensors.ErrParse)
	}
	ms, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return fmt.Errorf("interval %q: %w", value, sensors.ErrRange)
		}
		return fmt.Errorf("interval %q: %w", value, sensors.ErrParse)
	}
	if err := r.settings.SetIntervalMs(ms); err != nil {
		return err
	}
	slog.Info("refresh interval updated", "interval", ms)
	return nil
}

func (r *Record) AutoRefresh() bool {
	return r.settings.AutoRefresh()
}

func (r *Record) SetAutoRefresh(enabled bool) {
	r.settings.SetAutoRefresh(enabled)
	slog.Info("auto refresh updated", "enabled", enabled)
}

// Open returns a file-like view of the record. Every handle reads the value
// once from its start.
func (r *Record) Open(ctx context.Context) *Handle {
	open := r.handles.Add(1)
	slog.Debug("record opened", "open", open)
	return &Handle{ctx: ctx, record: r}
}

var _ io.ReadWriteCloser = &Handle{}

type Handle struct {
	ctx    context.Context
	record *Record
	offset int64
	closed bool
}

// Read returns the decimal lux value followed by a newline on the first call
// and io.EOF afterwards.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	if h.offset > 0 {
		return 0, io.EOF
	}
	text, err := h.record.Text(h.ctx)
	if err != nil {
		return 0, err
	}
	if len(p) < len(text) {
		return 0, io.ErrShortBuffer
	}
	n := copy(p, text)
	h.offset += int64(n)
	return n, nil
}

// Write sets the refresh interval from p.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	if err := h.record.SetInterval(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	open := h.record.handles.Add(-1)
	slog.Debug("record closed", "open", open)
	return nil
}
