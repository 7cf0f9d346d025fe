package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/querymgr"
)

func TestParseFilters(t *testing.T) {
	f, err := parseFilters(nil)
	require.NoError(t, err)
	require.Nil(t, f)

	f, err = parseFilters([]string{"age gt 40"})
	require.NoError(t, err)
	require.Equal(t, querymgr.Where("age", querymgr.OpGt, 40.0), f)

	f, err = parseFilters([]string{"site in north, south", "name eq Ada Lovelace"})
	require.NoError(t, err)
	require.Equal(t, querymgr.And(
		querymgr.Where("site", querymgr.OpIn, []interface{}{"north", "south"}),
		querymgr.Where("name", querymgr.OpEq, "Ada Lovelace"),
	), f)

	_, err = parseFilters([]string{"age"})
	require.Error(t, err)
}

func TestParseStep(t *testing.T) {
	s, err := parseStep("")
	require.NoError(t, err)
	require.Nil(t, s)

	s, err = parseStep("sum:income")
	require.NoError(t, err)
	require.Equal(t, querymgr.ExpressionStep("sum", "income", nil), s)

	s, err = parseStep("count")
	require.NoError(t, err)
	require.Equal(t, "", s.Expression.Column)

	_, err = parseStep(":income")
	require.Error(t, err)
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"x=age", "y=weight=kg"})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"x": "age", "y": "weight=kg"}, p)

	_, err = parseParams([]string{"x"})
	require.Error(t, err)
}

func TestFormatUSDC(t *testing.T) {
	require.Equal(t, "0.000010", formatUSDC(big.NewInt(10)))
	require.Equal(t, "2.500000", formatUSDC(big.NewInt(2_500_000)))
}
