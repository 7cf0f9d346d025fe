package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/policymgr"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

var queryCmd = &cli.Command{
	Name:      "query",
	Usage:     "Run an aggregate query and wait for its result",
	ArgsUsage: "<aggregate> [column]",
	Flags: append([]cli.Flag{
		filterFlag,
		&cli.BoolFlag{
			Name:  "categorize",
			Usage: "report the aggregate per data owner where policies allow it",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "print the query index and return without waiting",
		},
	}, targetFlags...),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 || cctx.NArg() > 2 {
			return IncorrectNumArgs(cctx)
		}
		q := &querymgr.AggregateQuery{Type: cctx.Args().Get(0), Column: cctx.Args().Get(1)}

		filters, err := parseFilters(cctx.StringSlice("where"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		q.Filters = filters

		t, err := parseTarget(cctx)
		if err != nil {
			return ShowHelp(cctx, err)
		}
		if cctx.Bool("categorize") {
			t.CategorizeByDO = true
			t.AggregateType = q.Type
		}

		return submitAndPrint(cctx, q, t)
	},
}

var trainCmd = &cli.Command{
	Name:      "train",
	Usage:     "Train a model with a worker operation",
	ArgsUsage: "<operation>",
	Flags: append([]cli.Flag{
		filterFlag,
		&cli.StringSliceFlag{
			Name:  "param",
			Usage: "operation parameter key=value",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "print the query index and return without waiting",
		},
	}, targetFlags...),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return IncorrectNumArgs(cctx)
		}
		params, err := parseParams(cctx.StringSlice("param"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		filters, err := parseFilters(cctx.StringSlice("where"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		t, err := parseTarget(cctx)
		if err != nil {
			return ShowHelp(cctx, err)
		}

		return submitAndPrint(cctx, &querymgr.TrainingRequest{
			Operation:  cctx.Args().First(),
			Parameters: params,
			Filters:    filters,
		}, t)
	},
}

var computeCmd = &cli.Command{
	Name:  "compute",
	Usage: "Run a custom computation",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "pre",
			Usage: "per bucket step 'aggregate:column'",
		},
		&cli.StringFlag{
			Name:  "main",
			Usage: "main step 'aggregate:column'",
		},
		&cli.StringFlag{
			Name:  "named",
			Usage: "use a worker operation as the main step",
		},
		&cli.StringSliceFlag{
			Name:  "param",
			Usage: "parameter key=value of the named operation",
		},
		&cli.BoolFlag{
			Name:  "separate-data",
			Usage: "keep bucket datasets separate",
		},
		&cli.StringFlag{
			Name:  "categorize",
			Usage: "report the given aggregate per data owner",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "print the query index and return without waiting",
		},
	}, targetFlags...),
	Action: func(cctx *cli.Context) error {
		r := &querymgr.ComputationRequest{IsSeparateData: cctx.Bool("separate-data")}

		var err error
		if r.PreCompute, err = parseStep(cctx.String("pre")); err != nil {
			return ShowHelp(cctx, err)
		}
		if r.Main, err = parseStep(cctx.String("main")); err != nil {
			return ShowHelp(cctx, err)
		}
		if op := cctx.String("named"); op != "" {
			if r.Main != nil {
				return ShowHelp(cctx, xerrors.Errorf("--main and --named are exclusive"))
			}
			params, err := parseParams(cctx.StringSlice("param"))
			if err != nil {
				return ShowHelp(cctx, err)
			}
			r.Main = querymgr.NamedStep(op, params)
		}

		t, err := parseTarget(cctx)
		if err != nil {
			return ShowHelp(cctx, err)
		}
		if agg := cctx.String("categorize"); agg != "" {
			t.CategorizeByDO = true
			t.AggregateType = agg
		}

		return submitAndPrint(cctx, r, t)
	},
}

func submitAndPrint(cctx *cli.Context, r querymgr.Request, t querymgr.Target) error {
	c, closer, err := GetClient(cctx)
	if err != nil {
		return err
	}
	defer closer()
	ctx := ReqContext(cctx)

	h, err := c.Queries.SubmitAsync(ctx, r, t)
	if err != nil {
		return err
	}
	afmt := cctx.App.Writer
	fmt.Fprintf(afmt, "Submitted query %d\n", h.UserIndex()) // nolint:errcheck
	if cctx.Bool("async") {
		return nil
	}

	v, err := c.Queries.Await(ctx, h)
	if err != nil {
		return err
	}
	return printResult(cctx, v)
}

func printResult(cctx *cli.Context, v interface{}) error {
	afmt := cctx.App.Writer
	if cat, ok, err := querymgr.ParseCategorized(v); err != nil {
		return err
	} else if ok {
		buckets, err := cat.Buckets()
		if err != nil {
			return err
		}
		for _, b := range buckets {
			fmt.Fprintf(afmt, "%s\t%v\n", querymgr.BucketKey(b), cat.Results[querymgr.BucketKey(b)]) // nolint:errcheck
		}
		for _, k := range cat.NonConsenting {
			fmt.Fprintf(afmt, "%s\t%s\n", k, color.YellowString("not disclosed")) // nolint:errcheck
		}
		fmt.Fprintf(afmt, "total\t%v\n", cat.AggregatedTotal) // nolint:errcheck
		return nil
	}

	switch x := v.(type) {
	case []byte:
		fmt.Fprintf(afmt, "%x\n", x) // nolint:errcheck
	case string:
		fmt.Fprintln(afmt, x) // nolint:errcheck
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(afmt, string(b)) // nolint:errcheck
	}
	return nil
}

var resultCmd = &cli.Command{
	Name:      "result",
	Usage:     "Wait for the result of an earlier query",
	ArgsUsage: "<query index>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return IncorrectNumArgs(cctx)
		}
		idx, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
		if err != nil {
			return ShowHelp(cctx, xerrors.Errorf("parsing query index: %w", err))
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		v, err := c.Queries.Result(ReqContext(cctx), idx)
		if err != nil {
			return err
		}
		return printResult(cctx, v)
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List the queries in the local journal",
	Action: func(cctx *cli.Context) error {
		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		infos, err := c.Queries.List(ReqContext(cctx))
		if err != nil {
			return err
		}
		afmt := cctx.App.Writer
		for _, qi := range infos {
			state := qi.State.String()
			switch qi.State {
			case querymgr.StateSuccess:
				state = color.GreenString(state)
			case querymgr.StateFailed:
				state = color.RedString(state)
			}
			fmt.Fprintf(afmt, "%d\t%s\t%s\t%s\t%s\n", qi.UserIndex, qi.Kind, state, qi.Price, qi.RequestCID) // nolint:errcheck
		}
		return nil
	},
}

var priceCmd = &cli.Command{
	Name:  "price",
	Usage: "Resolve the price of running against buckets",
	Flags: targetFlags,
	Action: func(cctx *cli.Context) error {
		t, err := parseTarget(cctx)
		if err != nil {
			return ShowHelp(cctx, err)
		}
		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		price, err := c.Queries.ResolvePrice(ReqContext(cctx), t.BucketIDs, t.PolicyIndexes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "%s (%s USDC)\n", price, formatUSDC(price)) // nolint:errcheck
		return nil
	},
}

var approveCmd = &cli.Command{
	Name:      "approve",
	Usage:     "Set the USDC allowance of the query manager",
	ArgsUsage: "<amount in micro-units>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return IncorrectNumArgs(cctx)
		}
		amount, err := big.FromString(cctx.Args().First())
		if err != nil {
			return ShowHelp(cctx, xerrors.Errorf("parsing amount: %w", err))
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		rcpt, err := c.Queries.Authorize(ReqContext(cctx), amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "Approved %s in %s\n", amount, rcpt.TransactionHash) // nolint:errcheck
		return nil
	},
}

func formatUSDC(amount big.Int) string {
	whole := big.Div(amount, policymgr.USDCUnit)
	frac := big.Mod(amount, policymgr.USDCUnit)
	return fmt.Sprintf("%s.%06d", whole, frac.Int64())
}
