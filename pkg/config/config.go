// Package config holds the light sensor tool settings. Values come from a
// YAML file layered over Default and may be overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/lightsensor/environment"
	"github.com/mklimuk/lightsensor/mmio"
)

// Version is set at build time.
var Version = "dev"

const (
	BackendMMIO    = "mmio"
	BackendGobot   = "gobot"
	BackendMCP2221 = "mcp2221"
	BackendSim     = "sim"
)

type MMIO struct {
	Base      uint64 `yaml:"base"`
	Size      int    `yaml:"size"`
	Direction uint32 `yaml:"direction"`
	Input     uint32 `yaml:"input"`
	Clear     uint32 `yaml:"clear"`
	Set       uint32 `yaml:"set"`
}

func (m MMIO) Layout() mmio.Layout {
	return mmio.Layout{
		Direction: m.Direction,
		Input:     m.Input,
		Clear:     m.Clear,
		Set:       m.Set,
	}
}

// Pins name the bus lines. The register and bridge backends take line
// numbers; gobot takes the platform pin ids.
type Pins struct {
	SCL string `yaml:"scl"`
	SDA string `yaml:"sda"`
}

// Lines parses both pins as line numbers.
func (p Pins) Lines() (scl, sda int, err error) {
	scl, err = strconv.Atoi(p.SCL)
	if err != nil {
		return 0, 0, fmt.Errorf("scl pin %q is not a line number", p.SCL)
	}
	sda, err = strconv.Atoi(p.SDA)
	if err != nil {
		return 0, 0, fmt.Errorf("sda pin %q is not a line number", p.SDA)
	}
	return scl, sda, nil
}

type Gobot struct {
	Platform string `yaml:"platform"`
}

type Sensor struct {
	Address byte   `yaml:"address"`
	Mode    string `yaml:"mode"`
}

type Refresh struct {
	IntervalMs uint64 `yaml:"interval_ms"`
	Auto       bool   `yaml:"auto"`
}

type Config struct {
	Backend  string  `yaml:"backend"`
	MMIO     MMIO    `yaml:"mmio"`
	Pins     Pins    `yaml:"pins"`
	Gobot    Gobot   `yaml:"gobot"`
	Sensor   Sensor  `yaml:"sensor"`
	Refresh  Refresh `yaml:"refresh"`
	SettleUs int     `yaml:"settle_us"`
}

func Default() Config {
	return Config{
		Backend: BackendMMIO,
		MMIO: MMIO{
			Base:      mmio.AM335xGPIO1Base,
			Size:      mmio.AM335xGPIOSize,
			Direction: mmio.AM335xLayout.Direction,
			Input:     mmio.AM335xLayout.Input,
			Clear:     mmio.AM335xLayout.Clear,
			Set:       mmio.AM335xLayout.Set,
		},
		Pins: Pins{
			SCL: "17",
			SDA: "16",
		},
		Gobot: Gobot{
			Platform: "beaglebone",
		},
		Sensor: Sensor{
			Address: environment.BH1750AddrLow,
			Mode:    environment.ContinuousHigh.String(),
		},
		Refresh: Refresh{
			IntervalMs: environment.DefaultIntervalMs,
			Auto:       true,
		},
		SettleUs: 5,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Mode returns the parsed measurement mode.
func (c Config) Mode() (environment.Mode, error) {
	return environment.ParseMode(c.Sensor.Mode)
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMMIO:
		if err := c.MMIO.Layout().Validate(c.MMIO.Size); err != nil {
			return err
		}
		if _, _, err := c.Pins.Lines(); err != nil {
			return err
		}
	case BackendMCP2221, BackendSim:
		if _, _, err := c.Pins.Lines(); err != nil {
			return err
		}
	case BackendGobot:
		if c.Gobot.Platform == "" {
			return fmt.Errorf("gobot backend needs a platform")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Pins.SCL == c.Pins.SDA {
		return fmt.Errorf("scl and sda must be different pins")
	}
	if c.Sensor.Address != environment.BH1750AddrLow && c.Sensor.Address != environment.BH1750AddrHigh {
		return fmt.Errorf("sensor address %#02x is neither %#02x nor %#02x", c.Sensor.Address, environment.BH1750AddrLow, environment.BH1750AddrHigh)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if err := environment.NewSettings().SetIntervalMs(c.Refresh.IntervalMs); err != nil {
		return err
	}
	if c.SettleUs < 0 {
		return fmt.Errorf("settle_us must not be negative")
	}
	return nil
}
