package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/policymgr"
)

var policyCmd = &cli.Command{
	Name:  "policy",
	Usage: "Manage data access policies",
	Subcommands: []*cli.Command{
		policyAddCmd,
		policyReadCmd,
		policyDeactivateCmd,
		policySetDisclosureCmd,
	},
}

var policyAddCmd = &cli.Command{
	Name:  "add",
	Usage: "Register a new policy",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "category",
			Usage: "allowed analyst category",
		},
		&cli.StringSliceFlag{
			Name:  "address",
			Usage: "allowed analyst address",
		},
		&cli.StringSliceFlag{
			Name:     "column",
			Usage:    "allowed column, '*' allows all",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "valid-days",
			Usage: "days the policy stays valid",
			Value: 30,
		},
		&cli.Float64Flag{
			Name:     "price",
			Usage:    "price in USD",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "disclose",
			Usage: "aggregate whose per bucket result may be disclosed",
		},
	},
	Action: func(cctx *cli.Context) error {
		addrs, err := parseAddrs(cctx.StringSlice("address"))
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		id, err := c.Registry.AddPolicy(ReqContext(cctx), policymgr.PolicySpec{
			AllowedCategories:    cctx.StringSlice("category"),
			AllowedAddresses:     addrs,
			AllowedColumns:       cctx.StringSlice("column"),
			ValidDays:            cctx.Int("valid-days"),
			USDPrice:             cctx.Float64("price"),
			DisclosureOperations: cctx.StringSlice("disclose"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, id) // nolint:errcheck
		return nil
	},
}

var policyReadCmd = &cli.Command{
	Name:      "read",
	Usage:     "Print a policy",
	ArgsUsage: "<policy id>",
	Action: func(cctx *cli.Context) error {
		id, err := singleID(cctx)
		if err != nil {
			return err
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		p, err := c.Registry.ReadPolicy(ReqContext(cctx), id)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\n", p.ID)
		fmt.Fprintf(w, "Owner:\t%s\n", p.Owner)
		fmt.Fprintf(w, "Price:\t%s (%s USDC)\n", p.Price, formatUSDC(p.Price))
		fmt.Fprintf(w, "Expires:\t%s\n", p.ExpDate.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Deactivated:\t%t\n", p.Deactivated)
		fmt.Fprintf(w, "Columns:\t%s\n", strings.Join(p.AllowedColumns, ", "))
		fmt.Fprintf(w, "Categories:\t%s\n", strings.Join(p.AllowedCategories, ", "))
		fmt.Fprintf(w, "Addresses:\t%s\n", joinAddrs(p.AllowedAddresses))
		fmt.Fprintf(w, "Disclosure:\t%s\n", strings.Join(p.DisclosureOperations, ", "))
		return w.Flush()
	},
}

var policyDeactivateCmd = &cli.Command{
	Name:      "deactivate",
	Usage:     "Deactivate a policy",
	ArgsUsage: "<policy id>",
	Action: func(cctx *cli.Context) error {
		id, err := singleID(cctx)
		if err != nil {
			return err
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return c.Registry.DeactivatePolicy(ReqContext(cctx), id)
	},
}

var policySetDisclosureCmd = &cli.Command{
	Name:      "set-disclosure",
	Usage:     "Set the aggregates whose per bucket results a policy discloses",
	ArgsUsage: "<policy id> [aggregate...]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 {
			return IncorrectNumArgs(cctx)
		}
		id, err := big.FromString(cctx.Args().First())
		if err != nil {
			return ShowHelp(cctx, xerrors.Errorf("parsing policy id: %w", err))
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return c.Registry.SetDisclosureOperations(ReqContext(cctx), id, cctx.Args().Tail())
	},
}

var bucketCmd = &cli.Command{
	Name:  "bucket",
	Usage: "Manage data buckets",
	Subcommands: []*cli.Command{
		bucketAddCmd,
		bucketReadCmd,
		bucketAddPolicyCmd,
	},
}

var bucketAddCmd = &cli.Command{
	Name:  "add",
	Usage: "Register a new bucket",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "policy",
			Usage:    "policy id governing the bucket",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "allowlist",
			Usage: "policy id whose address allowlist is enforced",
		},
		&cli.StringFlag{
			Name:  "data-format",
			Usage: "format of the bucket data",
			Value: "std1",
		},
		&cli.StringFlag{
			Name:     "node",
			Usage:    "address of the worker serving the bucket",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		pids, err := parseBigInts(cctx.StringSlice("policy"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		allow, err := parseBigInts(cctx.StringSlice("allowlist"))
		if err != nil {
			return ShowHelp(cctx, err)
		}
		spec := policymgr.BucketSpec{PolicyIDs: pids, DataFormat: cctx.String("data-format")}
		if len(allow) > 0 {
			spec.UseAllowlists = make([]bool, len(pids))
			for i, p := range pids {
				for _, a := range allow {
					if p.Equals(a) {
						spec.UseAllowlists[i] = true
					}
				}
			}
		}

		if spec.NodeAddress, err = ethtypes.ParseEthAddress(cctx.String("node")); err != nil {
			return ShowHelp(cctx, xerrors.Errorf("parsing node address: %w", err))
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		id, err := c.Registry.AddBucket(ReqContext(cctx), spec)
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, id) // nolint:errcheck
		return nil
	},
}

var bucketReadCmd = &cli.Command{
	Name:      "read",
	Usage:     "Print a bucket",
	ArgsUsage: "<bucket id>",
	Action: func(cctx *cli.Context) error {
		id, err := singleID(cctx)
		if err != nil {
			return err
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		b, err := c.Registry.ReadBucket(ReqContext(cctx), id)
		if err != nil {
			return err
		}

		pids := make([]string, len(b.PolicyIDs))
		for i, p := range b.PolicyIDs {
			pids[i] = p.String()
		}
		w := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\n", b.ID)
		fmt.Fprintf(w, "Owner:\t%s\n", b.Owner)
		fmt.Fprintf(w, "Node:\t%s\n", b.NodeAddress)
		fmt.Fprintf(w, "Format:\t%s\n", b.DataFormat)
		fmt.Fprintf(w, "Deactivated:\t%t\n", b.Deactivated)
		fmt.Fprintf(w, "Policies:\t%s\n", strings.Join(pids, ", "))
		return w.Flush()
	},
}

var bucketAddPolicyCmd = &cli.Command{
	Name:      "add-policy",
	Usage:     "Attach a policy to a bucket",
	ArgsUsage: "<bucket id> <policy id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return IncorrectNumArgs(cctx)
		}
		ids, err := parseBigInts(cctx.Args().Slice())
		if err != nil {
			return ShowHelp(cctx, err)
		}

		c, closer, err := GetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return c.Registry.AddPolicyToBucket(ReqContext(cctx), ids[0], ids[1])
	},
}

var roleCmd = &cli.Command{
	Name:  "role",
	Usage: "Inspect and assign marketplace roles",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print the role of an address (default the configured account)",
			ArgsUsage: "[address]",
			Action: func(cctx *cli.Context) error {
				c, closer, err := GetClient(cctx)
				if err != nil {
					return err
				}
				defer closer()

				addr := c.Ledger.Address()
				if cctx.Args().Present() {
					if addr, err = ethtypes.ParseEthAddress(cctx.Args().First()); err != nil {
						return ShowHelp(cctx, err)
					}
				}
				role, err := ledger.GetRole(ReqContext(cctx), c.Ledger, addr)
				if err != nil {
					return err
				}
				if role == "" {
					role = "none"
				}
				fmt.Fprintf(cctx.App.Writer, "%s\t%s\n", addr, role) // nolint:errcheck
				return nil
			},
		},
		{
			Name:      "assign",
			Usage:     "Assign a role to an address, requires the admin account",
			ArgsUsage: "<address> <DA|DO>",
			Action: func(cctx *cli.Context) error {
				if cctx.NArg() != 2 {
					return IncorrectNumArgs(cctx)
				}
				addr, err := ethtypes.ParseEthAddress(cctx.Args().Get(0))
				if err != nil {
					return ShowHelp(cctx, err)
				}

				c, closer, err := GetClient(cctx)
				if err != nil {
					return err
				}
				defer closer()

				rcpt, err := ledger.AssignRole(ReqContext(cctx), c.Ledger, addr, strings.ToUpper(cctx.Args().Get(1)))
				if err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "Assigned in %s\n", rcpt.TransactionHash) // nolint:errcheck
				return nil
			},
		},
	},
}

func singleID(cctx *cli.Context) (big.Int, error) {
	if cctx.NArg() != 1 {
		return big.Int{}, IncorrectNumArgs(cctx)
	}
	id, err := big.FromString(cctx.Args().First())
	if err != nil {
		return big.Int{}, ShowHelp(cctx, xerrors.Errorf("parsing id: %w", err))
	}
	return id, nil
}

func parseAddrs(vals []string) ([]ethtypes.EthAddress, error) {
	out := make([]ethtypes.EthAddress, 0, len(vals))
	for _, v := range vals {
		a, err := ethtypes.ParseEthAddress(v)
		if err != nil {
			return nil, xerrors.Errorf("parsing address %q: %w", v, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func joinAddrs(addrs []ethtypes.EthAddress) string {
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return strings.Join(s, ", ")
}
