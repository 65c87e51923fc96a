package softi2c

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/lightsensor"
)

var _ i2c.Bus = &Bus{}

// MaxSpeed is the fastest clock the default 5us settle delay can sustain.
const MaxSpeed = 50 * physic.KiloHertz

// Bus exposes a Master through the periph i2c.Bus interface so generic
// periph device drivers can talk over the emulated bus.
type Bus struct {
	mx     sync.Mutex
	master *Master
	name   string
}

func NewBus(name string, master *Master) *Bus {
	return &Bus{name: name, master: master}
}

func (b *Bus) String() string {
	return b.name
}

// Tx writes w then reads len(r) bytes, using a repeated start between the
// two phases. Only 7-bit addresses are supported.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("softi2c: 10-bit address %#x not supported", addr)
	}
	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if len(w) > 0 {
		b.master.Start()
		if !b.master.SendByte(byte(addr) << 1) {
			b.master.Stop()
			return fmt.Errorf("softi2c: write address %#x: %w", addr, sensors.ErrNoAck)
		}
		for i, c := range w {
			if !b.master.SendByte(c) {
				b.master.Stop()
				return fmt.Errorf("softi2c: write byte %d to %#x: %w", i, addr, sensors.ErrNoAck)
			}
		}
	}
	if len(r) > 0 {
		b.master.Start()
		if !b.master.SendByte(byte(addr)<<1 | 1) {
			b.master.Stop()
			return fmt.Errorf("softi2c: read address %#x: %w", addr, sensors.ErrNoAck)
		}
		for i := range r {
			// the last byte is nacked to end the read
			r[i] = b.master.ReceiveByte(i < len(r)-1)
		}
	}
	b.master.Stop()
	return nil
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f > MaxSpeed {
		return fmt.Errorf("softi2c: %s exceeds maximum bus speed of %s", f, MaxSpeed)
	}
	return nil
}

// Probe reports whether a device acknowledges addr.
func (b *Bus) Probe(addr uint16) bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.master.Start()
	ack := b.master.SendByte(byte(addr) << 1)
	b.master.Stop()
	return ack
}

// Scan probes every non reserved 7-bit address.
func (b *Bus) Scan() []uint16 {
	var found []uint16
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		if b.Probe(addr) {
			found = append(found, addr)
		}
	}
	return found
}
