package environment

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/lightsensor"
	"github.com/mklimuk/lightsensor/mmio"
	"github.com/mklimuk/lightsensor/sim"
	"github.com/mklimuk/lightsensor/softi2c"
)

const (
	simSCL = 17
	simSDA = 16
)

type simSetup struct {
	light    *LightSensor
	dev      *sim.BH1750
	settings *Settings
	clock    *clock.Mock
}

func newSimLight(t *testing.T, mode Mode) *simSetup {
	t.Helper()
	dev := sim.NewBH1750(BH1750AddrLow)
	board := sim.NewBoard(mmio.AM335xLayout, simSCL, simSDA, dev)
	master := softi2c.NewMaster(mmio.NewBlock(board, mmio.AM335xLayout, mmio.WithSettle(0)), simSCL, simSDA)
	master.Idle()
	dev.ClearEvents()

	clk := clock.NewMock()
	// the mock starts at the epoch; move away from it so timestamps are meaningful
	clk.Add(time.Hour)
	settings := NewSettings()
	sensor := NewBH1750(master, BH1750AddrLow, WithMode(mode), WithSleep(noSleep))
	return &simSetup{
		light:    NewLightSensor(sensor, settings, WithClock(clk)),
		dev:      dev,
		settings: settings,
		clock:    clk,
	}
}

func TestLightSensor_FirstReadInitializes(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	s.dev.SetRaw(120)

	lux, err := s.light.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lux)
	assert.Equal(t, []byte{OpPowerOn, OpReset, byte(ContinuousHigh)}, s.dev.Commands())

	rec := s.light.Snapshot()
	assert.True(t, rec.Initialized)
	assert.True(t, rec.Continuous)
	assert.Equal(t, uint32(100), rec.Lux)
	assert.Equal(t, s.clock.Now(), rec.Updated)
}

func TestLightSensor_CacheTTL(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)
	_, err := s.light.Get(ctx)
	require.NoError(t, err)

	s.dev.ClearEvents()
	s.dev.SetRaw(240)
	s.clock.Add(999 * time.Millisecond)
	lux, err := s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lux, "fresh value must come from the cache")
	assert.Empty(t, s.dev.Events(), "a cache hit must not touch the bus")

	s.clock.Add(time.Millisecond)
	lux, err = s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), lux)
	assert.Empty(t, s.dev.Commands(), "continuous mode reads without commands")
	assert.NotEmpty(t, s.dev.Events())
}

func TestLightSensor_IntervalChangeAppliesToCache(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)
	_, err := s.light.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, s.settings.SetIntervalMs(100))
	s.dev.SetRaw(360)
	s.clock.Add(150 * time.Millisecond)
	lux, err := s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), lux)
}

func TestLightSensor_AutoRefreshDisabled(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.settings.SetAutoRefresh(false)
	s.dev.SetRaw(120)
	_, err := s.light.Get(ctx)
	require.NoError(t, err)

	s.dev.SetRaw(240)
	lux, err := s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), lux, "every read goes to the sensor when auto refresh is off")
}

func TestLightSensor_InitFailureRetries(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)
	s.dev.RejectCommand(OpReset, 1)

	_, err := s.light.Get(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sensors.ErrNoAck))
	assert.False(t, s.light.Snapshot().Initialized)
	assert.Equal(t, []byte{OpPowerOn}, s.dev.Commands())

	s.dev.ClearEvents()
	lux, err := s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lux)
	assert.Equal(t, []byte{OpPowerOn, OpReset, byte(ContinuousHigh)}, s.dev.Commands(), "retry starts from power on")
}

func TestLightSensor_ReadFailureKeepsValue(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)
	_, err := s.light.Get(ctx)
	require.NoError(t, err)
	updated := s.light.Snapshot().Updated

	s.dev.SetPresent(false)
	s.clock.Add(2 * time.Second)
	_, err = s.light.Get(ctx)
	assert.True(t, errors.Is(err, sensors.ErrNoAck))
	rec := s.light.Snapshot()
	assert.False(t, rec.Initialized)
	assert.Equal(t, uint32(100), rec.Lux)
	assert.Equal(t, updated, rec.Updated)

	s.dev.SetPresent(true)
	s.dev.ClearEvents()
	_, err = s.light.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{OpPowerOn, OpReset, byte(ContinuousHigh)}, s.dev.Commands())
}

func TestLightSensor_OneShot(t *testing.T) {
	s := newSimLight(t, OneShotHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)

	lux, err := s.light.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lux)
	assert.False(t, s.light.Snapshot().Continuous)
	assert.False(t, s.dev.Powered(), "one-shot measurement powers the sensor down")

	s.dev.ClearEvents()
	s.dev.SetRaw(240)
	lux, err = s.light.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), lux)
	assert.Equal(t, []byte{byte(OneShotHigh)}, s.dev.Commands(), "only the measurement is re-triggered")
}

func TestLightSensor_PowerDown(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx := context.Background()
	s.dev.SetRaw(120)
	_, err := s.light.ReadLux(ctx)
	require.NoError(t, err)
	require.True(t, s.dev.Powered())

	require.NoError(t, s.light.PowerDown(ctx))
	assert.False(t, s.dev.Powered())
	assert.False(t, s.light.Snapshot().Initialized)

	s.dev.ClearEvents()
	_, err = s.light.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{OpPowerOn, OpReset, byte(ContinuousHigh)}, s.dev.Commands())
}

func TestLightSensor_CanceledContext(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.light.ReadLux(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, s.dev.Events())
}

func TestLightSensor_ConcurrentReadsSerialized(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Run(func(mock.Arguments) { time.Sleep(100 * time.Microsecond) }).Return()
	bus.On("Stop").Return()
	bus.On("SendByte", mock.Anything).Return(true)
	bus.On("ReceiveByte", true).Return(byte(0x00))
	bus.On("ReceiveByte", false).Return(byte(0x78))

	settings := NewSettings()
	settings.SetAutoRefresh(false)
	light := NewLightSensor(NewBH1750(bus, BH1750AddrLow, WithSleep(noSleep)), settings)

	const numOps = 20
	var wg sync.WaitGroup
	wg.Add(numOps)
	for i := 0; i < numOps; i++ {
		go func() {
			defer wg.Done()
			lux, err := light.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, uint32(100), lux)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&bus.maxConcurrent), int64(1), "bus transactions must not interleave")
	powerOn := 0
	for _, b := range bus.sent() {
		if b == OpPowerOn {
			powerOn++
		}
	}
	assert.Equal(t, 1, powerOn, "sensor is initialized once")
}

func TestLightSensor_Close(t *testing.T) {
	s := newSimLight(t, ContinuousHigh)
	s.dev.SetRaw(120)
	ctx := context.Background()
	_, err := s.light.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, s.light.Close())
	s.dev.ClearEvents()
	s.clock.Add(time.Hour)

	_, err = s.light.Get(ctx)
	assert.True(t, errors.Is(err, os.ErrClosed))
	_, err = s.light.ReadLux(ctx)
	assert.True(t, errors.Is(err, os.ErrClosed))
	assert.True(t, errors.Is(s.light.PowerDown(ctx), os.ErrClosed))
	assert.Empty(t, s.dev.Events(), "no bus activity after close")
	assert.Equal(t, uint32(100), s.light.Snapshot().Lux)
}

func TestLightSensor_RefreshAndReadsSerialized(t *testing.T) {
	bus := &MockBusMaster{}
	bus.On("Start").Run(func(mock.Arguments) { time.Sleep(200 * time.Microsecond) }).Return()
	bus.On("Stop").Return()
	bus.On("SendByte", mock.Anything).Return(true)
	bus.On("ReceiveByte", true).Return(byte(0x00))
	bus.On("ReceiveByte", false).Return(byte(0x78))

	settings := NewSettings()
	require.NoError(t, settings.SetIntervalMs(MinIntervalMs))
	light := NewLightSensor(NewBH1750(bus, BH1750AddrLow, WithSleep(noSleep)), settings)
	refresher := NewRefresher(light, settings, clock.New())
	refresher.Start()

	const numOps = 10
	var wg sync.WaitGroup
	wg.Add(numOps)
	for i := 0; i < numOps; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				lux, err := light.ReadLux(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, uint32(100), lux)
				time.Sleep(3 * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	// let a few more refresh cycles run on their own
	time.Sleep(5 * MinIntervalMs * time.Millisecond)
	refresher.Stop()

	assert.LessOrEqual(t, atomic.LoadInt64(&bus.maxConcurrent), int64(1), "bus transactions must not interleave")
	assert.Zero(t, atomic.LoadInt64(&bus.open))
}
