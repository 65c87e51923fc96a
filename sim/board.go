// Package sim provides an in-process GPIO register block with a simulated
// BH1750 wired to two of its lines, so the whole stack can run without
// hardware.
package sim

import (
	"sync"

	"github.com/mklimuk/lightsensor/mmio"
)

var _ mmio.Registers = &Board{}

// Board emulates one GPIO bank. Lines configured as inputs float high
// through their pull-ups; the data line is the wired AND of the bank and the
// device.
type Board struct {
	mx      sync.Mutex
	layout  mmio.Layout
	scl     int
	sda     int
	dir     uint32
	latch   uint32
	other   map[uint32]uint32
	dev     *BH1750
	lastSCL bool
	lastSDA bool
}

func NewBoard(layout mmio.Layout, scl, sda int, dev *BH1750) *Board {
	return &Board{
		layout: layout,
		scl:    scl,
		sda:    sda,
		// every line is an input after reset
		dir:     0xFFFFFFFF,
		other:   map[uint32]uint32{},
		dev:     dev,
		lastSCL: true,
		lastSDA: true,
	}
}

// Device returns the simulated sensor attached to the bank.
func (b *Board) Device() *BH1750 {
	return b.dev
}

func (b *Board) Load(offset uint32) uint32 {
	b.mx.Lock()
	defer b.mx.Unlock()
	switch offset {
	case b.layout.Direction:
		return b.dir
	case b.layout.Input:
		levels := b.driven()
		levels &^= 1<<uint(b.scl) | 1<<uint(b.sda)
		scl, sda := b.lines()
		if scl {
			levels |= 1 << uint(b.scl)
		}
		if sda {
			levels |= 1 << uint(b.sda)
		}
		return levels
	default:
		return b.other[offset]
	}
}

func (b *Board) Store(offset uint32, value uint32) {
	b.mx.Lock()
	defer b.mx.Unlock()
	switch offset {
	case b.layout.Set:
		b.latch |= value
	case b.layout.Clear:
		b.latch &^= value
	case b.layout.Direction:
		b.dir = value
	default:
		b.other[offset] = value
		return
	}
	b.propagate()
}

func (b *Board) propagate() {
	scl, sda := b.lines()
	if scl == b.lastSCL && sda == b.lastSDA {
		return
	}
	if b.dev != nil {
		b.dev.observe(b.lastSCL, b.lastSDA, scl, sda)
	}
	// the device may have changed what it drives on a falling clock
	b.lastSCL, b.lastSDA = b.lines()
}

// driven returns the level of every line as seen from the bank side.
func (b *Board) driven() uint32 {
	return b.dir | b.latch
}

func (b *Board) lines() (scl, sda bool) {
	levels := b.driven()
	scl = levels&(1<<uint(b.scl)) != 0
	sda = levels&(1<<uint(b.sda)) != 0
	if b.dev != nil && b.dev.holdsLow() {
		sda = false
	}
	return scl, sda
}
