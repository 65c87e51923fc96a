// Package i2c opens the kernel's hardware buses, so the sensor wiring can be
// checked against a known good master.
package i2c

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open initializes the host drivers and opens bus dev, e.g. "/dev/i2c-2" or
// "2". An empty name selects the first bus found.
func Open(dev string) (i2c.BusCloser, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return bus, nil
}

// Probe reports whether a device acknowledges a one byte read at addr.
func Probe(bus i2c.Bus, addr uint16) bool {
	return bus.Tx(addr, nil, make([]byte, 1)) == nil
}

// Scan probes every non reserved 7-bit address of bus.
func Scan(bus i2c.Bus) []uint16 {
	var found []uint16
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		if Probe(bus, addr) {
			found = append(found, addr)
		}
	}
	return found
}
