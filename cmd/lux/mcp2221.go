package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/lightsensor/adapter"
	"github.com/mklimuk/lightsensor/cmd/lux/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect the MCP2221 USB bridge backend",
	Subcommands: cli.Commands{
		&mcp2221DetectCmd,
		&mcp2221GPIOCmd,
		&mcp2221StatusCmd,
	},
}

var mcp2221DetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list attached bridges",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(adapter.VendorID, adapter.ProductID)
		if len(devices) == 0 {
			console.PInfof(console.PictoStop, "no MCP2221 attached")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 16, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ID\tPATH\tSERIAL\tVENDOR\tPRODUCT\n")
		for i, dev := range devices {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%#x\t%#x\n", i, dev.Path, dev.Serial, dev.VendorID, dev.ProductID)
		}
		_ = w.Flush()
		return nil
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print GP line configuration and levels",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "id", Usage: "bridge index as listed by detect"},
	},
	Action: func(c *cli.Context) error {
		a := bridge(c)
		params, err := a.GetGPIOParameters(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		values, err := a.ReadGPIO(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encode(map[string]interface{}{
			"parameters": params,
			"values":     values,
		})
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the bridge status",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "id", Usage: "bridge index as listed by detect"},
	},
	Action: func(c *cli.Context) error {
		status, err := bridge(c).Status(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encode(status)
	},
}

func bridge(c *cli.Context) *adapter.MCP2221 {
	if c.IsSet("id") {
		return adapter.NewMCP2221(adapter.WithOpener(adapter.OpenHID(c.Int("id"))))
	}
	return adapter.NewMCP2221()
}

func encode(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Fail("encoding error", err)
	}
	return nil
}
