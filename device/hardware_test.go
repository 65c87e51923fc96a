//go:build integration

package device_test

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/lightsensor/device"
	"github.com/mklimuk/lightsensor/mmio"
	"github.com/mklimuk/lightsensor/pkg/config"
)

// Runs against a real BH1750 on the memory-mapped GPIO bank described by
// LUX_CONFIG (or the built-in AM335x defaults). Needs root.
func TestHardware_Read(t *testing.T) {
	cfg, err := config.Load(os.Getenv("LUX_CONFIG"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	mode, err := cfg.Mode()
	require.NoError(t, err)
	scl, sda, err := cfg.Pins.Lines()
	require.NoError(t, err)

	block, err := mmio.Map(cfg.MMIO.Base, cfg.MMIO.Size, cfg.MMIO.Layout(),
		mmio.WithSettle(time.Duration(cfg.SettleUs)*time.Microsecond))
	require.NoError(t, err)
	drv, err := device.Load(block,
		device.WithAddress(cfg.Sensor.Address),
		device.WithMode(mode),
		device.WithLines(scl, sda),
		device.WithAutoRefresh(false))
	require.NoError(t, err)
	defer func() { assert.NoError(t, drv.Close()) }()

	found := drv.Bus("hw").Scan()
	assert.Contains(t, found, uint16(cfg.Sensor.Address))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := drv.Record().Open(ctx)
	text, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	lux, err := strconv.ParseUint(strings.TrimSuffix(string(text), "\n"), 10, 32)
	require.NoError(t, err)
	t.Logf("measured %d lux", lux)
	assert.LessOrEqual(t, lux, uint64(54612))

	assert.NoError(t, drv.Sleep(ctx))
	assert.False(t, drv.Light().Snapshot().Initialized)
}
