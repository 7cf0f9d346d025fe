package cli

import (
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/querymgr"
)

var targetFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:     "bucket",
		Usage:    "bucket id to run against, repeat for several",
		Required: true,
	},
	&cli.StringSliceFlag{
		Name:  "policy-index",
		Usage: "index of the policy to use in each bucket, in bucket order (default 0 for every bucket)",
	},
}

var filterFlag = &cli.StringSliceFlag{
	Name:  "where",
	Usage: "filter condition 'column op value', op one of eq, ne, gt, gte, lt, lte, in; repeated conditions are and-ed",
}

func parseBigInts(vals []string) ([]big.Int, error) {
	out := make([]big.Int, 0, len(vals))
	for _, v := range vals {
		i, err := big.FromString(strings.TrimSpace(v))
		if err != nil {
			return nil, xerrors.Errorf("parsing id %q: %w", v, err)
		}
		out = append(out, i)
	}
	return out, nil
}

func parseTarget(cctx *cli.Context) (querymgr.Target, error) {
	var t querymgr.Target
	ids, err := parseBigInts(cctx.StringSlice("bucket"))
	if err != nil {
		return t, err
	}
	t.BucketIDs = ids

	idx := cctx.StringSlice("policy-index")
	if len(idx) == 0 {
		t.PolicyIndexes = make([]uint64, len(ids))
		return t, nil
	}
	for _, s := range idx {
		i, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return t, xerrors.Errorf("parsing policy index %q: %w", s, err)
		}
		t.PolicyIndexes = append(t.PolicyIndexes, i)
	}
	return t, nil
}

func parseValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// parseFilters turns "column op value" conditions into a filter tree.
func parseFilters(conds []string) (*querymgr.Filter, error) {
	var leaves []*querymgr.Filter
	for _, c := range conds {
		parts := strings.Fields(c)
		if len(parts) < 3 {
			return nil, xerrors.Errorf("filter %q must be 'column op value'", c)
		}
		op := querymgr.FilterOp(parts[1])
		raw := strings.Join(parts[2:], " ")

		var value interface{} = parseValue(raw)
		if op == querymgr.OpIn {
			var list []interface{}
			for _, item := range strings.Split(raw, ",") {
				list = append(list, parseValue(strings.TrimSpace(item)))
			}
			value = list
		}
		leaves = append(leaves, querymgr.Where(parts[0], op, value))
	}

	switch len(leaves) {
	case 0:
		return nil, nil
	case 1:
		return leaves[0], nil
	}
	return querymgr.And(leaves...), nil
}

// parseStep reads an "aggregate:column" expression step.
func parseStep(s string) (*querymgr.Step, error) {
	if s == "" {
		return nil, nil
	}
	agg, col, _ := strings.Cut(s, ":")
	if agg == "" {
		return nil, xerrors.Errorf("step %q must be 'aggregate:column'", s)
	}
	return querymgr.ExpressionStep(agg, col, nil), nil
}

// parseParams reads key=value parameters.
func parseParams(kvs []string) (map[string]interface{}, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, xerrors.Errorf("parameter %q must be key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}
