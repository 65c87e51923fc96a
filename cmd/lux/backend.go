package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor"
	"github.com/mklimuk/lightsensor/adapter"
	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/device"
	"github.com/mklimuk/lightsensor/gpio"
	"github.com/mklimuk/lightsensor/mmio"
	"github.com/mklimuk/lightsensor/pkg/config"
	"github.com/mklimuk/lightsensor/sim"
)

// simRaw is the measurement the simulated sensor reports, 1000 lux.
const simRaw = 1200

// backend is a set of pins ready to carry the bus.
type backend struct {
	pins    sensors.Pins
	scl     int
	sda     int
	closers []io.Closer
}

func openBackend(ctx context.Context, c config.Config) (*backend, error) {
	settle := time.Duration(c.SettleUs) * time.Microsecond
	switch c.Backend {
	case config.BackendMMIO:
		scl, sda, err := c.Pins.Lines()
		if err != nil {
			return nil, err
		}
		block, err := mmio.Map(c.MMIO.Base, c.MMIO.Size, c.MMIO.Layout(), mmio.WithSettle(settle))
		if err != nil {
			return nil, err
		}
		return &backend{pins: block, scl: scl, sda: sda}, nil
	case config.BackendGobot:
		board, err := gpio.Connect(c.Gobot.Platform)
		if err != nil {
			return nil, err
		}
		pins, err := gpio.NewDigitalPins(board, []string{c.Pins.SCL, c.Pins.SDA}, gpio.WithSettle(settle))
		if err != nil {
			_ = board.Close()
			return nil, err
		}
		return &backend{pins: pins, scl: 0, sda: 1, closers: []io.Closer{board}}, nil
	case config.BackendMCP2221:
		scl, sda, err := c.Pins.Lines()
		if err != nil {
			return nil, err
		}
		bridge := adapter.NewMCP2221(adapter.WithResponseWait(time.Millisecond))
		if err := bridge.Connect(); err != nil {
			return nil, err
		}
		if err := bridge.UseAsGPIO(ctx); err != nil {
			_ = bridge.Close()
			return nil, err
		}
		return &backend{pins: bridge, scl: scl, sda: sda}, nil
	case config.BackendSim:
		scl, sda, err := c.Pins.Lines()
		if err != nil {
			return nil, err
		}
		dev := sim.NewBH1750(c.Sensor.Address)
		dev.SetRaw(simRaw)
		board := sim.NewBoard(c.MMIO.Layout(), scl, sda, dev)
		return &backend{pins: mmio.NewBlock(board, c.MMIO.Layout(), mmio.WithSettle(0)), scl: scl, sda: sda}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// loadDriver opens the configured backend and loads the sensor stack on it.
// Failures are returned as exit errors.
func loadDriver(c *cli.Context, opts ...device.DriverOpt) (*device.Driver, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
	}
	b, err := openBackend(c.Context, cfg)
	if err != nil {
		return nil, console.Exit(console.ExitFailure, "could not open %s backend: %s", cfg.Backend, console.Red(err))
	}
	slog.Debug("backend ready", "backend", cfg.Backend, "scl", b.scl, "sda", b.sda)
	defaults := []device.DriverOpt{
		device.WithAddress(cfg.Sensor.Address),
		device.WithMode(mode),
		device.WithLines(b.scl, b.sda),
		device.WithInterval(cfg.Refresh.IntervalMs),
		device.WithAutoRefresh(cfg.Refresh.Auto),
	}
	for _, closer := range b.closers {
		defaults = append(defaults, device.WithCloser(closer))
	}
	drv, err := device.Load(b.pins, append(defaults, opts...)...)
	if err != nil {
		if closer, ok := b.pins.(io.Closer); ok {
			_ = closer.Close()
		}
		for _, closer := range b.closers {
			_ = closer.Close()
		}
		return nil, console.Fail("could not load sensor", err)
	}
	return drv, nil
}

func closeDriver(drv *device.Driver) {
	if err := drv.Close(); err != nil {
		console.Warnf("could not release the sensor cleanly: %s", err)
	}
}
