package environment

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mklimuk/lightsensor"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

// Instruction set, single byte with no payload.
const (
	OpPowerDown byte = 0x00
	OpPowerOn   byte = 0x01
	OpReset     byte = 0x07
)

// Mode is a measurement instruction. The sensor either free-runs
// (continuous) or measures once and powers down (one-shot).
type Mode byte

const (
	ContinuousHigh  Mode = 0x10
	ContinuousHigh2 Mode = 0x11
	ContinuousLow   Mode = 0x13
	OneShotHigh     Mode = 0x20
	OneShotLow      Mode = 0x23
)

var modeNames = map[Mode]string{
	ContinuousHigh:  "continuous-high",
	ContinuousHigh2: "continuous-high2",
	ContinuousLow:   "continuous-low",
	OneShotHigh:     "one-shot-high",
	OneShotLow:      "one-shot-low",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%#02x)", byte(m))
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown measurement mode %q", s)
}

// WaitTime returns the worst case conversion time of mode. Unknown modes get
// the high resolution wait.
func WaitTime(m Mode) time.Duration {
	switch m {
	case ContinuousLow, OneShotLow:
		return 24 * time.Millisecond
	default:
		return 180 * time.Millisecond
	}
}

func IsContinuous(m Mode) bool {
	return m == ContinuousHigh || m == ContinuousHigh2 || m == ContinuousLow
}

// Lux converts a raw reading: the sensor counts 1.2 per lux.
func Lux(raw uint16) uint32 {
	return uint32(raw) * 10 / 12
}

type BH1750Opts struct {
	Mode  Mode
	Sleep func(time.Duration)
}

type BH1750Opt func(*BH1750Opts)

func WithMode(mode Mode) BH1750Opt {
	return func(o *BH1750Opts) {
		o.Mode = mode
	}
}

// WithSleep replaces the function used to wait for conversions.
func WithSleep(sleep func(time.Duration)) BH1750Opt {
	return func(o *BH1750Opts) {
		o.Sleep = sleep
	}
}

// BH1750 sequences bus master primitives into sensor instructions. It holds
// no lock; callers serialise access to the bus.
type BH1750 struct {
	bus    sensors.BusMaster
	addr   byte
	config BH1750Opts
}

func NewBH1750(bus sensors.BusMaster, addr byte, opts ...BH1750Opt) *BH1750 {
	config := BH1750Opts{
		Mode:  ContinuousHigh,
		Sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &BH1750{
		bus:    bus,
		addr:   addr,
		config: config,
	}
}

func (s *BH1750) Mode() Mode {
	return s.config.Mode
}

// SendCommand writes a single instruction byte.
func (s *BH1750) SendCommand(cmd byte) error {
	s.bus.Start()
	if !s.bus.SendByte(s.addr << 1) {
		s.bus.Stop()
		return fmt.Errorf("bh1750: write address %#02x: %w", s.addr, sensors.ErrNoAck)
	}
	if !s.bus.SendByte(cmd) {
		s.bus.Stop()
		return fmt.Errorf("bh1750: command %#02x: %w", cmd, sensors.ErrNoAck)
	}
	s.bus.Stop()
	return nil
}

// ReadRaw fetches the 16-bit measurement register, high byte first.
func (s *BH1750) ReadRaw() (uint16, error) {
	s.bus.Start()
	if !s.bus.SendByte(s.addr<<1 | 1) {
		s.bus.Stop()
		return 0, fmt.Errorf("bh1750: read address %#02x: %w", s.addr, sensors.ErrNoAck)
	}
	high := s.bus.ReceiveByte(true)
	// nack on the last byte ends the read
	low := s.bus.ReceiveByte(false)
	s.bus.Stop()
	return uint16(high)<<8 | uint16(low), nil
}

// Init powers the sensor on, resets its data register and starts the
// configured measurement, then waits for the first conversion.
func (s *BH1750) Init() error {
	for _, cmd := range []byte{OpPowerOn, OpReset, byte(s.config.Mode)} {
		if err := s.SendCommand(cmd); err != nil {
			return err
		}
	}
	s.config.Sleep(WaitTime(s.config.Mode))
	slog.Debug("bh1750 initialized", "mode", s.config.Mode)
	return nil
}

// Trigger starts a new measurement and waits for it to complete. One-shot
// modes need this before every read.
func (s *BH1750) Trigger() error {
	if err := s.SendCommand(byte(s.config.Mode)); err != nil {
		return err
	}
	s.config.Sleep(WaitTime(s.config.Mode))
	return nil
}

// PowerDown puts the sensor into its lowest power state.
func (s *BH1750) PowerDown() error {
	return s.SendCommand(OpPowerDown)
}
