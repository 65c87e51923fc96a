package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/lightsensor"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// GP lines available on the bridge.
const GPIOCount = 4

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrNotFound = errors.New("MCP2221 device not found")

var _ sensors.Pins = &MCP2221{}

const (
	cmdStatus        = 0x10
	cmdSetGPIOValues = 0x50
	cmdGetGPIOValues = 0x51
	cmdGetSRAM       = 0xB0
	cmdSetSRAM       = 0xB1
)

type MCP2221Status struct {
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	LastWriteRequestedSize uint16
	LastWriteSentSize      uint16
	ReadPending            int
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// This is alternate function of GPIO0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	// This is the dedicated function operation of GPIO0
	GPIO0SSPND GPIODesignation = 0b00000010
	// This is the dedicated function of GPIO1
	GPIO1ClockOutput GPIODesignation = 0b00000001
	// This is the alternate function 0 of GPIO1
	GPIO1ADC1 GPIODesignation = 0b00000010
	// This is the dedicated function of GPIO2
	GPIO2ClockOutput GPIODesignation = 0b00000001
	// This is the dedicated function of GPIO3
	GPIO3LEDI2C GPIODesignation = 0b00000001
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

// Value returns the level of line pin.
func (v MCP2221GPIOValues) Value(pin int) byte {
	return [GPIOCount]byte{v.GPIO0Value, v.GPIO1Value, v.GPIO2Value, v.GPIO3Value}[pin]
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

// Opener returns a connection to the bridge's HID interface.
type Opener func() (io.ReadWriteCloser, error)

type MCP2221Opts struct {
	ResponseWait time.Duration
	Opener       Opener
}

type MCP2221Opt func(*MCP2221Opts)

// WithResponseWait sets the delay between a request and reading its response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = wait
	}
}

func WithOpener(open Opener) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Opener = open
	}
}

// OpenHID opens the bridge with index id among the attached ones. With no id
// exactly one bridge must be attached.
func OpenHID(id ...int) Opener {
	return func() (io.ReadWriteCloser, error) {
		devs := hid.Enumerate(VendorID, ProductID)
		if len(devs) == 0 {
			return nil, ErrNotFound
		}
		if len(devs) > 1 && len(id) == 0 {
			return nil, fmt.Errorf("ambiguous device identification")
		}
		idx := 0
		if len(id) > 0 {
			idx = id[0]
		}
		if idx < 0 || idx >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", idx)
		}
		dev, err := devs[idx].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

// MCP2221 talks to the USB bridge over HID reports. Its four GP lines can
// serve as the pins of a software bus; each pin access is one report round
// trip, so such a bus runs at a few hertz.
type MCP2221 struct {
	mx       sync.Mutex
	request  []byte
	response []byte
	config   MCP2221Opts
	// dev is held open between Connect and Close; without it every command
	// opens the device.
	dev     io.ReadWriteCloser
	lastErr error
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		Opener:       OpenHID(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		request:  make([]byte, 64),
		response: make([]byte, 64),
		config:   config,
	}
}

// Connect opens the device and keeps it open until Close.
func (d *MCP2221) Connect() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev != nil {
		return nil
	}
	dev, err := d.config.Opener()
	if err != nil {
		return err
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

// Err returns the last error met by a pin operation.
func (d *MCP2221) Err() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.lastErr
}

func (d *MCP2221) SetPin(pin int) {
	d.writePin(pin, 1)
}

func (d *MCP2221) ClearPin(pin int) {
	d.writePin(pin, 0)
}

func (d *MCP2221) ConfigureDirection(pin int, dir sensors.Direction) {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.setGPIO(context.Background(), pin, func(slot []byte) {
		slot[2] = 0x01
		if dir == sensors.Input {
			slot[3] = 0x01
		}
	})
	d.record(err, "direction", pin)
}

func (d *MCP2221) ReadPin(pin int) bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	if pin < 0 || pin >= GPIOCount {
		d.record(fmt.Errorf("GP%d: %w", pin, sensors.ErrRange), "read", pin)
		return false
	}
	values, err := d.readGPIO(context.Background())
	if !d.record(err, "read", pin) {
		return false
	}
	return values.Value(pin) != 0
}

func (d *MCP2221) writePin(pin int, value byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.setGPIO(context.Background(), pin, func(slot []byte) {
		slot[0] = 0x01
		slot[1] = value
	})
	d.record(err, "write", pin)
}

// record keeps err for Err and reports whether the operation succeeded.
func (d *MCP2221) record(err error, op string, pin int) bool {
	if err != nil {
		d.lastErr = err
		slog.Warn("gpio operation failed", "op", op, "pin", pin, "error", err)
		return false
	}
	return true
}

// setGPIO sends a set GPIO values command altering one line. The request
// carries a 4 byte slot per line: alter output, output value, alter
// direction, direction.
func (d *MCP2221) setGPIO(ctx context.Context, pin int, fill func(slot []byte)) error {
	if pin < 0 || pin >= GPIOCount {
		return fmt.Errorf("GP%d: %w", pin, sensors.ErrRange)
	}
	d.resetBuffers()
	d.request[0] = cmdSetGPIOValues
	start := 2 + pin*4
	fill(d.request[start : start+4])
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO values command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	d.request[1] = 0x01
	d.request[2] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[3] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[4] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[5] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	// read could not be performed
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

// UseAsGPIO switches every GP line to plain GPIO operation, which the pin
// methods require.
func (d *MCP2221) UseAsGPIO(ctx context.Context) error {
	return d.SetGPIOParameters(ctx, MCP2221GPIOParameters{
		GPIO0Mode: GPIOModeIn,
		GPIO1Mode: GPIOModeIn,
		GPIO2Mode: GPIOModeIn,
		GPIO3Mode: GPIOModeIn,
	})
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.readGPIO(ctx)
}

func (d *MCP2221) readGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.resetBuffers()
	d.request[0] = cmdGetGPIOValues
	err := d.send(ctx, true)
	var res MCP2221GPIOValues
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	// read could not be performed
	if d.response[1] == 0x01 {
		return res, ErrCommandFailed
	}
	res.GPIO0Mode, res.GPIO0Value = gpioValue(d.response[2:4])
	res.GPIO1Mode, res.GPIO1Value = gpioValue(d.response[4:6])
	res.GPIO2Mode, res.GPIO2Value = gpioValue(d.response[6:8])
	res.GPIO3Mode, res.GPIO3Value = gpioValue(d.response[8:10])
	return res, nil
}

func gpioValue(pair []byte) (GPIOMode, byte) {
	if pair[1] == byte(GPIOModeNoOperation) {
		return GPIOModeNoOperation, pair[0]
	}
	return GPIOMode(pair[1] << 3), pair[0]
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	d.request[1] = 0x01
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	// read could not be performed
	if d.response[1] == 0x01 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(d.response[4] & gpioModeMask),
		GPIO0Designation: GPIODesignation(d.response[4] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(d.response[5] & gpioModeMask),
		GPIO1Designation: GPIODesignation(d.response[5] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(d.response[6] & gpioModeMask),
		GPIO2Designation: GPIODesignation(d.response[6] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(d.response[7] & gpioModeMask),
		GPIO3Designation: GPIODesignation(d.response[7] & gpioOperationMask),
	}, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev := d.dev
	if dev == nil {
		var err error
		dev, err = d.config.Opener()
		if err != nil {
			return err
		}
		defer func() {
			if err := dev.Close(); err != nil {
				slog.Debug("could not close adapter", "error", err)
			}
		}()
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("sending message to adapter", "request", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.config.ResponseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to %#02x for request %#02x", d.response[0], d.request[0])
	}
	slog.Debug("read message from adapter", "response", hex.EncodeToString(d.response))
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
