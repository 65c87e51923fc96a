// Package softi2c implements an I2C bus master by toggling two GPIO pins.
package softi2c

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/lightsensor"
)

var _ sensors.BusMaster = &Master{}

// Master owns the clock and data pins of one emulated bus. It is not safe for
// concurrent use; callers serialise whole transactions.
type Master struct {
	pins sensors.Pins
	scl  int
	sda  int
}

func NewMaster(pins sensors.Pins, scl, sda int) *Master {
	return &Master{
		pins: pins,
		scl:  scl,
		sda:  sda,
	}
}

// Idle drives both lines as outputs, high.
func (m *Master) Idle() {
	m.pins.ConfigureDirection(m.scl, sensors.Output)
	m.pins.ConfigureDirection(m.sda, sensors.Output)
	m.pins.SetPin(m.scl)
	m.pins.SetPin(m.sda)
}

// Start issues a start condition: data falls while the clock is high.
func (m *Master) Start() {
	m.pins.ConfigureDirection(m.sda, sensors.Output)
	m.data(true)
	m.clock(true)
	m.data(false)
	m.clock(false)
}

// Stop issues a stop condition: data rises while the clock is high.
func (m *Master) Stop() {
	m.pins.ConfigureDirection(m.sda, sensors.Output)
	m.data(false)
	m.clock(true)
	m.data(true)
}

func (m *Master) SendByte(b byte) bool {
	m.pins.ConfigureDirection(m.sda, sensors.Output)
	for i := 7; i >= 0; i-- {
		m.data(b&(1<<uint(i)) != 0)
		m.clock(true)
		m.clock(false)
	}
	m.pins.ConfigureDirection(m.sda, sensors.Input)
	m.clock(true)
	// receiver pulls data low to acknowledge
	ack := !m.pins.ReadPin(m.sda)
	m.clock(false)
	if !ack {
		slog.Debug("byte not acknowledged", "byte", fmt.Sprintf("%#02x", b))
	}
	return ack
}

func (m *Master) ReceiveByte(ack bool) byte {
	var b byte
	m.pins.ConfigureDirection(m.sda, sensors.Input)
	for i := 7; i >= 0; i-- {
		m.clock(true)
		if m.pins.ReadPin(m.sda) {
			b |= 1 << uint(i)
		}
		m.clock(false)
	}
	m.pins.ConfigureDirection(m.sda, sensors.Output)
	m.data(!ack)
	m.clock(true)
	m.clock(false)
	return b
}

func (m *Master) clock(high bool) {
	if high {
		m.pins.SetPin(m.scl)
		return
	}
	m.pins.ClearPin(m.scl)
}

func (m *Master) data(high bool) {
	if high {
		m.pins.SetPin(m.sda)
		return
	}
	m.pins.ClearPin(m.sda)
}
