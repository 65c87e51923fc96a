package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/device"
	"github.com/mklimuk/lightsensor/pkg/config"
)

func newSimDriver(t *testing.T) (*device.Driver, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	out := &bytes.Buffer{}
	console.SetOutput(out, out)

	c := config.Default()
	c.Backend = config.BackendSim
	b, err := openBackend(context.Background(), c)
	require.NoError(t, err)
	drv, err := device.Load(b.pins,
		device.WithLines(b.scl, b.sda),
		device.WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv, out
}

func TestConsole_Read(t *testing.T) {
	drv, out := newSimDriver(t)
	c := &cli.Context{Context: context.Background()}
	assert.True(t, consoleLine(c, drv, "read"))
	assert.Contains(t, out.String(), "1000 lux")
}

func TestConsole_Interval(t *testing.T) {
	drv, out := newSimDriver(t)
	c := &cli.Context{Context: context.Background()}
	assert.True(t, consoleLine(c, drv, "interval 250"))
	assert.Equal(t, 250*time.Millisecond, drv.Settings().Interval())
	assert.Contains(t, out.String(), "250 ms")

	out.Reset()
	assert.True(t, consoleLine(c, drv, "interval 5"))
	assert.Contains(t, out.String(), "ERROR")
	assert.Equal(t, 250*time.Millisecond, drv.Settings().Interval())
}

func TestConsole_AutoAndSleep(t *testing.T) {
	drv, out := newSimDriver(t)
	c := &cli.Context{Context: context.Background()}
	assert.True(t, consoleLine(c, drv, "auto off"))
	assert.False(t, drv.Record().AutoRefresh())
	assert.True(t, consoleLine(c, drv, "auto maybe"))
	assert.Contains(t, out.String(), "expected on or off")

	assert.True(t, consoleLine(c, drv, "read"))
	assert.True(t, drv.Light().Snapshot().Initialized)
	assert.True(t, consoleLine(c, drv, "sleep"))
	assert.False(t, drv.Light().Snapshot().Initialized)

	out.Reset()
	assert.True(t, consoleLine(c, drv, "state"))
	assert.Contains(t, out.String(), "initialized:  false")
	assert.Contains(t, out.String(), "auto refresh: off")
}

func TestConsole_Quit(t *testing.T) {
	drv, out := newSimDriver(t)
	c := &cli.Context{Context: context.Background()}
	assert.True(t, consoleLine(c, drv, "dance"))
	assert.Contains(t, out.String(), "unknown command")
	assert.False(t, consoleLine(c, drv, "quit"))
}

func TestParseSwitch(t *testing.T) {
	for word, expected := range map[string]bool{"on": true, "OFF": false, "1": true, "no": false} {
		enabled, ok := parseSwitch(word)
		assert.True(t, ok, word)
		assert.Equal(t, expected, enabled, word)
	}
	_, ok := parseSwitch("maybe")
	assert.False(t, ok)
}

func TestOpenBackend_Unknown(t *testing.T) {
	c := config.Default()
	c.Backend = "spi"
	_, err := openBackend(context.Background(), c)
	assert.Error(t, err)
}
