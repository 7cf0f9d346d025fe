package cli

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/node/config"
)

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Manage client config",
	Subcommands: []*cli.Command{
		configDefaultCmd,
		configShowCmd,
		configNetworksCmd,
	},
}

var configDefaultCmd = &cli.Command{
	Name:  "default",
	Usage: "Print default client config",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-comment",
			Usage: "don't comment default values",
		},
	},
	Action: func(cctx *cli.Context) error {
		c := config.DefaultClient()

		var cb []byte
		if cctx.Bool("no-comment") {
			buf := new(bytes.Buffer)
			if err := toml.NewEncoder(buf).Encode(c); err != nil {
				return xerrors.Errorf("encoding config: %w", err)
			}
			cb = buf.Bytes()
		} else {
			var err error
			if cb, err = config.ConfigComment(c); err != nil {
				return err
			}
		}

		fmt.Fprintln(cctx.App.Writer, string(cb)) // nolint:errcheck
		return nil
	},
}

var configShowCmd = &cli.Command{
	Name:  "show",
	Usage: "Print the effective config with file and environment overrides applied",
	Action: func(cctx *cli.Context) error {
		c, err := LoadConfig(cctx)
		if err != nil {
			return err
		}
		if c.APISecret != "" {
			c.APISecret = "<redacted>"
		}
		return toml.NewEncoder(cctx.App.Writer).Encode(c)
	},
}

var configNetworksCmd = &cli.Command{
	Name:  "networks",
	Usage: "List the built-in network bundles",
	Action: func(cctx *cli.Context) error {
		for _, n := range build.Networks() {
			b, err := build.Network(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "%s\t%d\t%s\n", n, b.ChainID, b.RPCURL) // nolint:errcheck
		}
		return nil
	},
}
