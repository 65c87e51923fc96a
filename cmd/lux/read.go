package main

import (
	"context"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/device"
	"github.com/mklimuk/lightsensor/environment"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "read the light level once",
	Action: func(c *cli.Context) error {
		drv, err := loadDriver(c)
		if err != nil {
			return err
		}
		defer closeDriver(drv)
		h := drv.Record().Open(c.Context)
		defer h.Close()
		text, err := io.ReadAll(h)
		if err != nil {
			return console.Fail("error getting light sensor read", err)
		}
		console.Print(string(text))
		return nil
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "keep the sensor refreshed and print the cached value periodically",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "every",
			Value: time.Second,
			Usage: "print period",
		},
	},
	Action: func(c *cli.Context) error {
		every := c.Duration("every")
		if every <= 0 {
			return console.Exit(console.ExitUsage, "print period must be positive")
		}
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		drv, err := loadDriver(c, device.WithAutoRefresh(true))
		if err != nil {
			return err
		}
		defer closeDriver(drv)
		console.PInfof(console.PictoClock, "refreshing every %s, printing every %s", drv.Settings().Interval(), every)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			printReading(ctx, drv.Record())
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func printReading(ctx context.Context, rec *device.Record) {
	lux, err := rec.Get(ctx)
	if err != nil {
		console.Errorf("error getting light sensor read: %s", console.Red(err))
		return
	}
	console.PInfof(console.PictoBulb, "%s lux", console.Lux(lux))
}

var intervalCmd = cli.Command{
	Name:      "interval",
	Usage:     "check a refresh interval write",
	ArgsUsage: "<ms>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "usage: lux interval <ms>")
		}
		settings := environment.NewSettings()
		rec := device.NewRecord(nil, settings)
		if err := rec.SetInterval(c.Args().First()); err != nil {
			return console.Fail("interval rejected", err)
		}
		console.PInfof(console.PictoClock, "refresh interval %s ms accepted", console.Green(rec.Interval()))
		return nil
	},
}

// parseSwitch accepts on/off style words.
func parseSwitch(word string) (bool, bool) {
	switch strings.ToLower(word) {
	case "on", "true", "1", "yes":
		return true, true
	case "off", "false", "0", "no":
		return false, true
	}
	return false, false
}
