package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/node"
	"github.com/nectarprotocol/nectar-go/node/config"
)

var log = logging.Logger("cli")

const metadataContext = "context"

const DefaultConfigPath = "~/.nectar/config.toml"

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to the client config file",
	EnvVars: []string{"NECTAR_CONFIG"},
	Value:   DefaultConfigPath,
}

var FlagNetwork = &cli.StringFlag{
	Name:  "network",
	Usage: "network bundle to use (moonbeam, moonbase, localhost), overrides the config",
}

// ReqContext returns context for cli execution. Calling it for the first time
// installs SIGTERM handler that will close returned context.
// Not safe for concurrent execution.
func ReqContext(cctx *cli.Context) context.Context {
	if uctx, ok := cctx.App.Metadata[metadataContext]; ok {
		// unchecked cast as if something else is in there
		// it is crash worthy either way
		return uctx.(context.Context)
	}

	ctx, done := context.WithCancel(traceContext(cctx))
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]interface{}{}
	}
	cctx.App.Metadata[metadataContext] = ctx
	return ctx
}

func traceContext(cctx *cli.Context) context.Context {
	if mtCtx, ok := cctx.App.Metadata["traceContext"]; ok {
		return mtCtx.(context.Context)
	}
	return cctx.Context
}

// LoadConfig reads the config file named by --config, applies environment
// overrides and the --network flag.
func LoadConfig(cctx *cli.Context) (*config.Client, error) {
	cfg, err := config.FromFile(cctx.String(FlagConfig.Name), config.DefaultClient())
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}
	if n := cctx.String(FlagNetwork.Name); n != "" {
		cfg.Network = n
	}
	return cfg, nil
}

// GetClient builds a client from config. The returned closer must be called
// when the command ends.
func GetClient(cctx *cli.Context) (*node.Client, func(), error) {
	if c, ok := cctx.App.Metadata["testnode-client"]; ok {
		return c.(*node.Client), func() {}, nil
	}

	cfg, err := LoadConfig(cctx)
	if err != nil {
		return nil, nil, err
	}
	c, err := node.New(ReqContext(cctx), cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			log.Warnw("closing client", "error", err)
		}
	}, nil
}

var Commands = []*cli.Command{
	queryCmd,
	trainCmd,
	computeCmd,
	resultCmd,
	listCmd,
	priceCmd,
	approveCmd,
	policyCmd,
	bucketCmd,
	roleCmd,
	configCmd,
}
