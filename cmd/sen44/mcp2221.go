package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sen44/adapter"
	"github.com/mklimuk/sen44/cmd/sen44/console"
	"github.com/mklimuk/sen44/snsctx"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect and control the MCP2221 USB to I2C bridge",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221SpeedCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encodeYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a pending I2C transfer and free the bus",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.ReleaseBus(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encodeYAML(status)
	},
}

var mcp2221SpeedCmd = cli.Command{
	Name:  "speed",
	Usage: "set the I2C clock",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "hz", Value: 100_000},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		if err := a.SetSpeed(ctx, c.Int("hz")); err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		console.Infof("i2c clock set to %d Hz", c.Int("hz"))
		return nil
	},
}
