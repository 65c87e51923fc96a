// Package mmio exposes a GPIO bank's memory-mapped registers as pin primitives.
package mmio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mklimuk/lightsensor"
)

var _ sensors.Pins = &Block{}

// DefaultSettle is the delay applied after every register access.
const DefaultSettle = 5 * time.Microsecond

// Registers is a word addressable register file.
type Registers interface {
	Load(offset uint32) uint32
	Store(offset uint32, value uint32)
}

// Layout holds the register offsets of a GPIO bank relative to its base.
type Layout struct {
	// Direction register, bit cleared selects output.
	Direction uint32
	// Input reads the current pin levels.
	Input uint32
	// Clear drives pins low for every bit written as 1.
	Clear uint32
	// Set drives pins high for every bit written as 1.
	Set uint32
}

// AM335x GPIO1 bank, as found on the BeagleBone.
const (
	AM335xGPIO1Base = 0x4804C000
	AM335xGPIOSize  = 0x1000
)

var AM335xLayout = Layout{
	Direction: 0x134,
	Input:     0x138,
	Clear:     0x190,
	Set:       0x194,
}

// Validate checks that every offset is word aligned and fits in size bytes.
func (l Layout) Validate(size int) error {
	for name, off := range map[string]uint32{
		"direction": l.Direction,
		"input":     l.Input,
		"clear":     l.Clear,
		"set":       l.Set,
	} {
		if off%4 != 0 {
			return fmt.Errorf("%s register offset %#x is not word aligned", name, off)
		}
		if int(off)+4 > size {
			return fmt.Errorf("%s register offset %#x outside of %#x byte window", name, off, size)
		}
	}
	return nil
}

type BlockOpts struct {
	Settle time.Duration
	Sleep  func(time.Duration)
}

type BlockOpt func(*BlockOpts)

// WithSettle overrides the per access settle delay. Zero disables it.
func WithSettle(d time.Duration) BlockOpt {
	return func(o *BlockOpts) {
		o.Settle = d
	}
}

// WithSleep replaces the function used to wait out the settle delay.
func WithSleep(sleep func(time.Duration)) BlockOpt {
	return func(o *BlockOpts) {
		o.Sleep = sleep
	}
}

// Block is an owned handle on one GPIO bank.
type Block struct {
	mx     sync.Mutex
	regs   Registers
	layout Layout
	config BlockOpts
	closer io.Closer
}

func NewBlock(regs Registers, layout Layout, opts ...BlockOpt) *Block {
	config := BlockOpts{
		Settle: DefaultSettle,
		Sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	b := &Block{
		regs:   regs,
		layout: layout,
		config: config,
	}
	if c, ok := regs.(io.Closer); ok {
		b.closer = c
	}
	return b
}

func (b *Block) SetPin(pin int) {
	b.regs.Store(b.layout.Set, mask(pin))
	b.settle()
}

func (b *Block) ClearPin(pin int) {
	b.regs.Store(b.layout.Clear, mask(pin))
	b.settle()
}

func (b *Block) ConfigureDirection(pin int, dir sensors.Direction) {
	// the set and clear registers are write-1 only, direction is shared
	b.mx.Lock()
	reg := b.regs.Load(b.layout.Direction)
	if dir == sensors.Input {
		reg |= mask(pin)
	} else {
		reg &^= mask(pin)
	}
	b.regs.Store(b.layout.Direction, reg)
	b.mx.Unlock()
	b.settle()
}

func (b *Block) ReadPin(pin int) bool {
	high := b.regs.Load(b.layout.Input)&mask(pin) != 0
	b.settle()
	return high
}

// Close releases the underlying mapping, if any.
func (b *Block) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Block) settle() {
	if b.config.Settle > 0 {
		b.config.Sleep(b.config.Settle)
	}
}

func mask(pin int) uint32 {
	return 1 << uint(pin)
}
