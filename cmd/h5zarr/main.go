// Command h5zarr consolidates HDF5 files into Zarr metadata stores and
// reads arrays back through the chunk manifests.
package main

import (
	"os"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/send"
	"github.com/urfave/cli"
)

func main() {
	grip.EmergencyFatal(buildApp().Run(os.Args))
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "h5zarr"
	app.Usage = "serve HDF5 files as Zarr v2 stores"

	app.Commands = []cli.Command{
		consolidateCommand(),
		inspectCommand(),
		lsCommand(),
		readCommand(),
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "level",
			Value:  "info",
			Usage:  "lowest visible log level: 'emergency|alert|critical|error|warning|notice|info|debug|trace'",
			EnvVar: "H5ZARR_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log at debug level",
		},
	}

	app.Before = func(c *cli.Context) error {
		l := c.String("level")
		if c.Bool("verbose") {
			l = "debug"
		}
		return loggingSetup(app.Name, l)
	}

	return app
}

func loggingSetup(name, l string) error {
	if err := grip.SetSender(send.MakeErrorLogger()); err != nil {
		return err
	}
	grip.SetName(name)

	sender := grip.GetSender()
	info := sender.Level()
	info.Threshold = level.FromString(l)

	return sender.SetLevel(info)
}
