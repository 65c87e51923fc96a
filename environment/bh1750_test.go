package environment

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/lightsensor"
)

// MockBusMaster is a mock implementation of sensors.BusMaster using testify/mock
type MockBusMaster struct {
	mock.Mock
	open          int64 // transactions between start and stop
	maxConcurrent int64 // maximum overlapping transactions observed
	mu            sync.Mutex
}

func (m *MockBusMaster) Start() {
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.open, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.mu.Unlock()
	m.Called()
}

func (m *MockBusMaster) Stop() {
	m.Called()
	atomic.AddInt64(&m.open, -1)
}

func (m *MockBusMaster) SendByte(b byte) bool {
	return m.Called(b).Bool(0)
}

func (m *MockBusMaster) ReceiveByte(ack bool) byte {
	return m.Called(ack).Get(0).(byte)
}

// sent returns the bytes passed to SendByte in order.
func (m *MockBusMaster) sent() []byte {
	var out []byte
	for _, call := range m.Calls {
		if call.Method == "SendByte" {
			out = append(out, call.Arguments.Get(0).(byte))
		}
	}
	return out
}

const (
	writeAddr = BH1750AddrLow << 1
	readAddr  = BH1750AddrLow<<1 | 1
)

func noSleep(time.Duration) {}

func TestBH1750_SendCommand(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Return().Once()
	bus.On("SendByte", byte(writeAddr)).Return(true).Once()
	bus.On("SendByte", OpPowerOn).Return(true).Once()
	bus.On("Stop").Return().Once()

	sensor := NewBH1750(bus, BH1750AddrLow)
	require.NoError(t, sensor.SendCommand(OpPowerOn))
	bus.AssertExpectations(t)
	assert.Equal(t, []byte{0x46, 0x01}, bus.sent())
}

func TestBH1750_SendCommand_Nack(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*MockBusMaster)
		expected []byte
	}{
		{
			name: "address",
			setup: func(bus *MockBusMaster) {
				bus.On("SendByte", byte(writeAddr)).Return(false).Once()
			},
			expected: []byte{0x46},
		},
		{
			name: "command",
			setup: func(bus *MockBusMaster) {
				bus.On("SendByte", byte(writeAddr)).Return(true).Once()
				bus.On("SendByte", OpReset).Return(false).Once()
			},
			expected: []byte{0x46, 0x07},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := &MockBusMaster{}
			bus.On("Start").Return().Once()
			bus.On("Stop").Return().Once()
			test.setup(bus)

			err := NewBH1750(bus, BH1750AddrLow).SendCommand(OpReset)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sensors.ErrNoAck))
			bus.AssertExpectations(t)
			assert.Equal(t, test.expected, bus.sent())
		})
	}
}

func TestBH1750_ReadRaw(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Return().Once()
	bus.On("SendByte", byte(readAddr)).Return(true).Once()
	bus.On("ReceiveByte", true).Return(byte(0x12)).Once()
	bus.On("ReceiveByte", false).Return(byte(0x34)).Once()
	bus.On("Stop").Return().Once()

	raw, err := NewBH1750(bus, BH1750AddrLow).ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), raw)
	bus.AssertExpectations(t)
}

func TestBH1750_ReadRaw_Nack(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Return().Once()
	bus.On("SendByte", byte(readAddr)).Return(false).Once()
	bus.On("Stop").Return().Once()

	_, err := NewBH1750(bus, BH1750AddrLow).ReadRaw()
	assert.True(t, errors.Is(err, sensors.ErrNoAck))
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReceiveByte", mock.Anything)
}

func TestBH1750_Init(t *testing.T) {
	for _, mode := range []Mode{ContinuousHigh, ContinuousLow, OneShotHigh} {
		t.Run(mode.String(), func(t *testing.T) {
			bus := &MockBusMaster{}
			bus.On("Start").Return()
			bus.On("Stop").Return()
			bus.On("SendByte", mock.Anything).Return(true)

			var slept []time.Duration
			sensor := NewBH1750(bus, BH1750AddrLow, WithMode(mode), WithSleep(func(d time.Duration) {
				slept = append(slept, d)
			}))
			require.NoError(t, sensor.Init())
			assert.Equal(t, []byte{0x46, 0x01, 0x46, 0x07, 0x46, byte(mode)}, bus.sent())
			assert.Equal(t, []time.Duration{WaitTime(mode)}, slept)
			bus.AssertNumberOfCalls(t, "Start", 3)
			bus.AssertNumberOfCalls(t, "Stop", 3)
		})
	}
}

func TestBH1750_Init_StopsOnFirstFailure(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Return()
	bus.On("Stop").Return()
	bus.On("SendByte", byte(writeAddr)).Return(true)
	bus.On("SendByte", OpPowerOn).Return(true)
	bus.On("SendByte", OpReset).Return(false)

	slept := false
	sensor := NewBH1750(bus, BH1750AddrLow, WithSleep(func(time.Duration) { slept = true }))
	err := sensor.Init()
	assert.True(t, errors.Is(err, sensors.ErrNoAck))
	assert.False(t, slept)
	assert.Equal(t, []byte{0x46, 0x01, 0x46, 0x07}, bus.sent())
}

func TestBH1750_Lux(t *testing.T) {
	tests := []struct {
		raw      uint16
		expected uint32
	}{
		{0, 0},
		{1, 0},
		{12, 10},
		{120, 100},
		{0x1234, 3883},
		{65535, 54612},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.raw), func(t *testing.T) {
			assert.Equal(t, test.expected, Lux(test.raw))
		})
	}
}

func TestBH1750_WaitTime(t *testing.T) {
	tests := []struct {
		mode       Mode
		wait       time.Duration
		continuous bool
	}{
		{ContinuousHigh, 180 * time.Millisecond, true},
		{ContinuousHigh2, 180 * time.Millisecond, true},
		{ContinuousLow, 24 * time.Millisecond, true},
		{OneShotHigh, 180 * time.Millisecond, false},
		{OneShotLow, 24 * time.Millisecond, false},
		{Mode(0x42), 180 * time.Millisecond, false},
	}
	for _, test := range tests {
		t.Run(test.mode.String(), func(t *testing.T) {
			assert.Equal(t, test.wait, WaitTime(test.mode))
			assert.Equal(t, test.continuous, IsContinuous(test.mode))
		})
	}
}

func TestParseMode(t *testing.T) {
	for mode, name := range modeNames {
		parsed, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	mode, err := ParseMode(" One-Shot-Low\n")
	require.NoError(t, err)
	assert.Equal(t, OneShotLow, mode)

	_, err = ParseMode("dim")
	assert.Error(t, err)
	assert.Equal(t, "mode(0x42)", Mode(0x42).String())
}
