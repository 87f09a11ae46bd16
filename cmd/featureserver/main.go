package main

import (
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
)

const (
	catalogDriver = `catalogDriver`
	catalogPath   = `catalogPath`
	scanRoot      = `scanRoot`
	scanStrict    = `scanStrict`
	addr          = `addr`
	logLevel      = `logLevel`
	logConsole    = `logConsole`
	file          = `file`
	optionsFile   = `options`
)

func envOf(name string) []string { return []string{strcase.ToScreamingSnake(name)} }

func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    catalogDriver,
			Usage:   "Catalog store: sqlite or memory",
			Value:   "sqlite",
			EnvVars: envOf(catalogDriver),
		},
		&cli.StringFlag{
			Name:    catalogPath,
			Aliases: []string{"db"},
			Usage:   "SQLite catalog file",
			Value:   "catalog.db",
			EnvVars: envOf(catalogPath),
		},
	}
}

func scanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    scanRoot,
			Aliases: []string{"r"},
			Usage:   "Directory searched recursively for dataset files",
			EnvVars: envOf(scanRoot),
		},
		&cli.BoolFlag{
			Name:    scanStrict,
			Usage:   "Abort a scan on the first dataset that cannot be described",
			EnvVars: envOf(scanStrict),
		},
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "featureserver"
	app.Usage = "Serve features of gridded ocean model datasets"
	app.Version = versioninfo.Short()
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    logLevel,
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: envOf(logLevel),
		},
		&cli.BoolFlag{
			Name:    logConsole,
			Usage:   "Human readable log output",
			EnvVars: envOf(logConsole),
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "Run the HTTP API",
			Flags: append(append([]cli.Flag{
				&cli.StringFlag{
					Name:    addr,
					Usage:   "Listen address",
					Value:   ":8090",
					EnvVars: envOf(addr),
				},
			}, catalogFlags()...), scanFlags()...),
			Action: serveAction,
		},
		{
			Name:   "scan",
			Usage:  "Index new dataset files once and print the report",
			Flags:  append(catalogFlags(), scanFlags()...),
			Action: scanAction,
		},
		{
			Name:  "pyramid",
			Usage: "Print the tile matrix set for one dataset file or the whole catalog",
			Flags: append(catalogFlags(),
				&cli.StringFlag{
					Name:    file,
					Aliases: []string{"f"},
					Usage:   "Dataset file; the catalog extent is used when empty",
				},
				&cli.StringFlag{
					Name:  optionsFile,
					Usage: "JSON file overriding pyramid options",
				},
			),
			Action: pyramidAction,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
