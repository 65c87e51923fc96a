package main

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/device"
)

var consoleCommands = []string{"read", "interval", "auto", "sleep", "state", "help", "quit"}

var consoleCmd = cli.Command{
	Name:  "console",
	Usage: "interactive session with a loaded sensor",
	Action: func(c *cli.Context) error {
		drv, err := loadDriver(c)
		if err != nil {
			return err
		}
		defer closeDriver(drv)
		console.PInfof(console.PictoPin, "sensor loaded, type %s for commands", console.Bold("help"))
		return console.Shell("lux> ", consoleCommands, func(line string) bool {
			return consoleLine(c, drv, line)
		})
	},
}

// consoleLine runs one console command and reports whether to keep going.
func consoleLine(c *cli.Context, drv *device.Driver, line string) bool {
	fields := strings.Fields(line)
	rec := drv.Record()
	switch fields[0] {
	case "read":
		printReading(c.Context, rec)
	case "interval":
		if len(fields) != 2 {
			console.PInfof(console.PictoClock, "refresh interval %s ms", console.White(rec.Interval()))
			return true
		}
		if err := rec.SetInterval(fields[1]); err != nil {
			console.Errorf("interval rejected: %s", console.Red(err))
			return true
		}
		console.PInfof(console.PictoClock, "refresh interval set to %s ms", console.Green(rec.Interval()))
	case "auto":
		if len(fields) != 2 {
			console.Infof("auto refresh is %s", onOff(rec.AutoRefresh()))
			return true
		}
		enabled, ok := parseSwitch(fields[1])
		if !ok {
			console.Errorf("expected on or off, got %q", fields[1])
			return true
		}
		rec.SetAutoRefresh(enabled)
		console.Infof("auto refresh %s", onOff(enabled))
	case "sleep":
		if err := drv.Sleep(c.Context); err != nil {
			console.Errorf("could not power the sensor down: %s", console.Red(err))
			return true
		}
		console.PInfof(console.PictoMoon, "sensor powered down until the next read")
	case "state":
		snap := drv.Light().Snapshot()
		updated := "never"
		if !snap.Updated.IsZero() {
			updated = snap.Updated.Format(time.DateTime)
		}
		console.Printf("lux:          %s\n", console.Lux(snap.Lux))
		console.Printf("updated:      %s\n", console.White(updated))
		console.Printf("initialized:  %s\n", console.White(snap.Initialized))
		console.Printf("continuous:   %s\n", console.White(snap.Continuous))
		console.Printf("interval:     %s\n", console.White(drv.Settings().Interval()))
		console.Printf("auto refresh: %s\n", onOff(rec.AutoRefresh()))
	case "help":
		console.Print("read             measure or return the cached value\n" +
			"interval [ms]    show or set the refresh interval\n" +
			"auto [on|off]    show or switch background refresh\n" +
			"sleep            power the sensor down\n" +
			"state            show the cached state\n" +
			"quit             leave the console\n")
	case "quit", "exit":
		return false
	default:
		console.Warnf("unknown command %q, type help", fields[0])
	}
	return true
}

func onOff(enabled bool) string {
	if enabled {
		return console.Green("on")
	}
	return console.Yellow("off")
}
