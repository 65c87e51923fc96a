package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightsensor/cmd/lux/console"
	"github.com/mklimuk/lightsensor/pkg/config"
)

var commit string
var date string

// cfg is loaded before any command runs.
var cfg config.Config

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "lux"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, date, commit)
	app.Usage = "BH1750 ambient light sensor on a bit-banged bus"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "/etc/lux.yaml",
			Usage:   "configuration file; defaults apply when it does not exist",
			EnvVars: []string{"LUX_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "pin backend (mmio, gobot, mcp2221, sim), overrides the configuration",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))

		var err error
		cfg, err = config.Load(ctx.String("config"))
		if err != nil {
			return console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
		}
		if backend := ctx.String("backend"); backend != "" {
			cfg.Backend = backend
			if err := cfg.Validate(); err != nil {
				return console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
			}
		}
		return nil
	}
	app.Commands = cli.Commands{
		&readCmd,
		&watchCmd,
		&intervalCmd,
		&consoleCmd,
		&probeCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}
