package sim

import (
	"fmt"
	"sync"
)

type EventKind int

const (
	EventStart EventKind = iota
	EventStop
	EventByte
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "START"
	case EventStop:
		return "STOP"
	default:
		return "BYTE"
	}
}

// Event is one bus condition or byte as seen by the simulated device.
type Event struct {
	Kind  EventKind
	Value byte
	// Acked reports the acknowledge bit that followed the byte.
	Acked bool
	// FromDevice is set for bytes the device transmitted.
	FromDevice bool
}

func (e Event) String() string {
	if e.Kind != EventByte {
		return e.Kind.String()
	}
	dir := "<"
	if e.FromDevice {
		dir = ">"
	}
	ack := "N"
	if e.Acked {
		ack = "A"
	}
	return fmt.Sprintf("%s%#02x%s", dir, e.Value, ack)
}

type phase int

const (
	phaseIdle phase = iota
	phaseAddress
	phaseWrite
	phaseRead
	phaseIgnore
)

const (
	cmdPowerDown   = 0x00
	cmdPowerOn     = 0x01
	cmdReset       = 0x07
	cmdContHigh    = 0x10
	cmdContHigh2   = 0x11
	cmdContLow     = 0x13
	cmdOneShotHigh = 0x20
	cmdOneShotHi2  = 0x21
	cmdOneShotLow  = 0x23
)

// BH1750 is a bus slave that behaves like the light sensor: it decodes
// conditions and bytes from line levels, applies commands and returns its
// 16-bit data register on reads.
type BH1750 struct {
	mx      sync.Mutex
	addr    byte
	present bool
	powered bool
	mode    byte
	raw     uint16
	data    uint16
	rejects map[byte]int
	events  []Event
	cmds    []byte

	phase     phase
	bits      int
	shift     byte
	acking    bool
	nacked    bool
	read      bool
	out       [2]byte
	outIdx    int
	masterAck bool
	pullLow   bool
}

func NewBH1750(addr byte) *BH1750 {
	return &BH1750{
		addr:    addr,
		present: true,
		rejects: map[byte]int{},
	}
}

// SetRaw sets the value the next measurement will produce.
func (d *BH1750) SetRaw(raw uint16) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.raw = raw
}

// RejectCommand makes the device nack cmd for the next times occurrences.
func (d *BH1750) RejectCommand(cmd byte, times int) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.rejects[cmd] = times
}

// SetPresent connects or disconnects the device from the bus. A missing
// device does not acknowledge its address.
func (d *BH1750) SetPresent(present bool) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.present = present
}

func (d *BH1750) Powered() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.powered
}

// Mode returns the last accepted measurement command.
func (d *BH1750) Mode() byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.mode
}

// Events returns a copy of everything observed on the bus so far.
func (d *BH1750) Events() []Event {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]Event(nil), d.events...)
}

// Commands returns every acknowledged command byte in order.
func (d *BH1750) Commands() []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]byte(nil), d.cmds...)
}

func (d *BH1750) ClearEvents() {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.events = nil
	d.cmds = nil
}

// holdsLow reports whether the device is pulling the data line down.
func (d *BH1750) holdsLow() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.pullLow
}

// observe is called with the line levels before and after every change.
func (d *BH1750) observe(prevSCL, prevSDA, scl, sda bool) {
	d.mx.Lock()
	defer d.mx.Unlock()
	switch {
	case prevSCL && scl && prevSDA && !sda:
		d.start()
	case prevSCL && scl && !prevSDA && sda:
		d.stop()
	case !prevSCL && scl:
		d.rising(sda)
	case prevSCL && !scl:
		d.falling()
	}
}

func (d *BH1750) start() {
	d.events = append(d.events, Event{Kind: EventStart})
	d.phase = phaseAddress
	d.bits = 0
	d.shift = 0
	d.acking = false
	d.nacked = false
	d.pullLow = false
}

func (d *BH1750) stop() {
	d.events = append(d.events, Event{Kind: EventStop})
	d.phase = phaseIdle
	d.pullLow = false
}

func (d *BH1750) rising(sda bool) {
	switch d.phase {
	case phaseAddress, phaseWrite:
		if d.bits < 8 {
			d.shift <<= 1
			if sda {
				d.shift |= 1
			}
			d.bits++
		}
	case phaseRead:
		if d.bits == 8 {
			d.masterAck = !sda
			d.events = append(d.events, Event{Kind: EventByte, Value: d.out[d.outIdx], Acked: d.masterAck, FromDevice: true})
		}
		d.bits++
	}
}

func (d *BH1750) falling() {
	switch d.phase {
	case phaseAddress, phaseWrite:
		switch {
		case d.bits == 8 && !d.acking:
			ack := d.receive(d.shift)
			d.events = append(d.events, Event{Kind: EventByte, Value: d.shift, Acked: ack})
			d.acking = true
			d.nacked = !ack
			d.pullLow = ack
		case d.acking:
			d.acking = false
			d.pullLow = false
			d.bits = 0
			d.shift = 0
			switch {
			case d.nacked:
				d.phase = phaseIgnore
			case d.phase == phaseAddress && d.read:
				d.phase = phaseRead
				d.load()
				d.drive()
			default:
				d.phase = phaseWrite
			}
		}
	case phaseRead:
		switch {
		case d.bits < 8:
			d.drive()
		case d.bits == 8:
			// master answers with ack or nack
			d.pullLow = false
		default:
			if !d.masterAck {
				d.phase = phaseIgnore
				d.pullLow = false
				return
			}
			d.bits = 0
			if d.outIdx < len(d.out)-1 {
				d.outIdx++
			} else {
				d.out = [2]byte{0xFF, 0xFF}
				d.outIdx = 0
			}
			d.drive()
		}
	}
}

func (d *BH1750) drive() {
	d.pullLow = d.out[d.outIdx]&(1<<uint(7-d.bits)) == 0
}

func (d *BH1750) load() {
	if d.powered && continuous(d.mode) {
		d.data = d.raw
	}
	d.out = [2]byte{byte(d.data >> 8), byte(d.data)}
	d.outIdx = 0
}

func (d *BH1750) receive(b byte) bool {
	if d.phase == phaseAddress {
		if !d.present || b>>1 != d.addr {
			return false
		}
		d.read = b&1 == 1
		return true
	}
	if d.rejects[b] > 0 {
		d.rejects[b]--
		return false
	}
	d.apply(b)
	d.cmds = append(d.cmds, b)
	return true
}

func (d *BH1750) apply(cmd byte) {
	switch cmd {
	case cmdPowerDown:
		d.powered = false
	case cmdPowerOn:
		d.powered = true
	case cmdReset:
		if d.powered {
			d.data = 0
		}
	case cmdContHigh, cmdContHigh2, cmdContLow, cmdOneShotHigh, cmdOneShotHi2, cmdOneShotLow:
		// a measurement instruction wakes the device
		d.powered = true
		d.mode = cmd
		d.data = d.raw
		if !continuous(cmd) {
			// one-shot measurements power the device down once done
			d.powered = false
		}
	}
}

func continuous(cmd byte) bool {
	return cmd == cmdContHigh || cmd == cmdContHigh2 || cmd == cmdContLow
}
