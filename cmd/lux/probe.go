package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/device"
	"github.com/mklimuk/lightsensor/environment"
	"github.com/mklimuk/lightsensor/i2c"
)

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "scan the bit-banged bus for devices",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "kernel",
			Usage: "scan this kernel i2c bus instead (e.g. /dev/i2c-2)",
		},
	},
	Action: func(c *cli.Context) error {
		if dev := c.String("kernel"); dev != "" {
			bus, err := i2c.Open(dev)
			if err != nil {
				return console.Exit(console.ExitFailure, "could not open %s: %s", dev, console.Red(err))
			}
			defer bus.Close()
			printFound(bus.String(), i2c.Scan(bus))
			return nil
		}
		// keep the refresher off the bus while scanning
		drv, err := loadDriver(c, device.WithAutoRefresh(false))
		if err != nil {
			return err
		}
		defer closeDriver(drv)
		bus := drv.Bus(cfg.Backend)
		printFound(bus.String(), bus.Scan())
		return nil
	},
}

func printFound(bus string, found []uint16) {
	if len(found) == 0 {
		console.PInfof(console.PictoStop, "no device answered on %s", bus)
		return
	}
	for _, addr := range found {
		name := ""
		switch addr {
		case environment.BH1750AddrLow, environment.BH1750AddrHigh:
			name = "BH1750"
		}
		console.Printf("%s %s\n", console.White(fmt.Sprintf("%#02x", addr)), name)
	}
}
