package ledgersim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nectarprotocol/nectar-go/querymgr"
)

func TestFilterRows(t *testing.T) {
	rows := []Row{
		{"city": "Oslo", "age": 30},
		{"city": "Lima", "age": 45},
		{"city": "Pune", "age": 60},
	}

	out := filterRows(rows, querymgr.Or(
		querymgr.Where("city", querymgr.OpEq, "Oslo"),
		querymgr.And(
			querymgr.Where("age", querymgr.OpGt, 40),
			querymgr.Where("city", querymgr.OpIn, []interface{}{"Pune"}),
		),
	))
	require.Len(t, out, 2)
	require.Equal(t, "Oslo", out[0]["city"])
	require.Equal(t, "Pune", out[1]["city"])

	require.Empty(t, filterRows(rows, querymgr.Where("missing", querymgr.OpEq, 1)))
	require.Len(t, filterRows(rows, nil), 3)
}

func TestAggregate(t *testing.T) {
	rows := []Row{{"v": 2}, {"v": "4"}, {"v": 9.0}, {"w": 1}}

	for typ, want := range map[string]float64{"count": 3, "sum": 15, "mean": 5, "min": 2, "max": 9} {
		got, err := aggregate(typ, "v", rows)
		require.NoError(t, err, typ)
		require.Equal(t, want, got, typ)
	}

	n, err := aggregate("count", "", rows)
	require.NoError(t, err)
	require.Equal(t, 4.0, n)

	_, err = aggregate("mean", "v", nil)
	require.Error(t, err)
	_, err = aggregate("sum", "v", []Row{{"v": "abc"}})
	require.Error(t, err)
}
