package main

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	"github.com/nectarprotocol/nectar-go/build"
	lcli "github.com/nectarprotocol/nectar-go/cli"
	"github.com/nectarprotocol/nectar-go/lib/nectarlog"
	"github.com/nectarprotocol/nectar-go/metrics"
)

var log = logging.Logger("main")

func main() {
	nectarlog.SetupLogLevels()

	if err := view.Register(metrics.DefaultViews...); err != nil {
		log.Warnw("registering metric views", "error", err)
	}

	ctx, span := trace.StartSpan(context.Background(), "/cli")
	defer span.End()

	app := &cli.App{
		Name:                      "nectar",
		Usage:                     "Query private datasets on the Nectar marketplace",
		Version:                   build.UserVersion(),
		EnableBashCompletion:      true,
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			lcli.FlagConfig,
			lcli.FlagNetwork,
		},
		Commands: lcli.Commands,
	}
	app.Setup()
	app.Metadata["traceContext"] = ctx

	lcli.RunApp(app)
}
