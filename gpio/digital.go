// Package gpio drives the software bus through gobot digital pins, so any
// board gobot supports (sysfs or character device) can host the sensor.
package gpio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gobot.io/x/gobot/v2"
	"gobot.io/x/gobot/v2/system"

	"github.com/mklimuk/lightsensor"
)

var _ sensors.Pins = &DigitalPins{}

type DigitalOpts struct {
	Settle time.Duration
	Sleep  func(time.Duration)
}

type DigitalOpt func(*DigitalOpts)

func WithSettle(d time.Duration) DigitalOpt {
	return func(o *DigitalOpts) {
		o.Settle = d
	}
}

func WithSleep(sleep func(time.Duration)) DigitalOpt {
	return func(o *DigitalOpts) {
		o.Sleep = sleep
	}
}

// DigitalPins maps line numbers to gobot pins. Line i is the i-th id given to
// NewDigitalPins.
type DigitalPins struct {
	mx      sync.Mutex
	ids     []string
	pins    []gobot.DigitalPinner
	levels  []int
	config  DigitalOpts
	lastErr error
}

// NewDigitalPins obtains a pin from provider for every id.
func NewDigitalPins(provider gobot.DigitalPinnerProvider, ids []string, opts ...DigitalOpt) (*DigitalPins, error) {
	config := DigitalOpts{
		Settle: 5 * time.Microsecond,
		Sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	d := &DigitalPins{
		ids:    ids,
		pins:   make([]gobot.DigitalPinner, len(ids)),
		levels: make([]int, len(ids)),
		config: config,
	}
	for i, id := range ids {
		pin, err := provider.DigitalPin(id)
		if err != nil {
			return nil, fmt.Errorf("could not get digital pin %s: %w", id, err)
		}
		d.pins[i] = pin
	}
	return d, nil
}

// Line returns the line number of pin id.
func (d *DigitalPins) Line(id string) (int, error) {
	for i, known := range d.ids {
		if known == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("pin %s: %w", id, sensors.ErrRange)
}

// Err returns the last error met by a pin operation.
func (d *DigitalPins) Err() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.lastErr
}

func (d *DigitalPins) SetPin(pin int) {
	d.write(pin, 1)
}

func (d *DigitalPins) ClearPin(pin int) {
	d.write(pin, 0)
}

func (d *DigitalPins) ConfigureDirection(pin int, dir sensors.Direction) {
	d.mx.Lock()
	defer d.mx.Unlock()
	p, err := d.pin(pin)
	if err == nil {
		if dir == sensors.Input {
			err = p.ApplyOptions(system.WithPinDirectionInput())
		} else {
			// keep the last driven level so the line does not glitch
			err = p.ApplyOptions(system.WithPinDirectionOutput(d.levels[pin]))
		}
	}
	d.record(err, "direction", pin)
	d.settle()
}

func (d *DigitalPins) ReadPin(pin int) bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	defer d.settle()
	p, err := d.pin(pin)
	if err != nil {
		d.record(err, "read", pin)
		return false
	}
	val, err := p.Read()
	if err != nil {
		d.record(err, "read", pin)
		return false
	}
	return val != 0
}

func (d *DigitalPins) write(pin int, val int) {
	d.mx.Lock()
	defer d.mx.Unlock()
	p, err := d.pin(pin)
	if err == nil {
		err = p.Write(val)
		d.levels[pin] = val
	}
	d.record(err, "write", pin)
	d.settle()
}

// Close releases every pin.
func (d *DigitalPins) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	var err error
	for i, p := range d.pins {
		if uerr := p.Unexport(); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("could not release pin %s: %w", d.ids[i], uerr))
		}
	}
	return err
}

func (d *DigitalPins) pin(pin int) (gobot.DigitalPinner, error) {
	if pin < 0 || pin >= len(d.pins) {
		return nil, fmt.Errorf("line %d: %w", pin, sensors.ErrRange)
	}
	return d.pins[pin], nil
}

func (d *DigitalPins) record(err error, op string, pin int) {
	if err != nil {
		d.lastErr = err
		slog.Warn("gpio operation failed", "op", op, "pin", pin, "error", err)
	}
}

func (d *DigitalPins) settle() {
	if d.config.Settle > 0 {
		d.config.Sleep(d.config.Settle)
	}
}
