package querymgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"
)

func TestParseCategorized(t *testing.T) {
	full := Normalize([]byte(`{
		"categorizedByDO": true,
		"results": {"bucket_7": {"count": 12}, "bucket_3": {"count": 4}},
		"aggregatedTotal": 16
	}`))
	c, ok, err := ParseCategorized(full)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, c.Partial)
	require.Equal(t, 12.0, c.Results[BucketKey(big.NewInt(7))]["count"])
	require.Empty(t, c.NonConsenting)

	buckets, err := c.Buckets()
	require.NoError(t, err)
	require.Equal(t, []big.Int{big.NewInt(3), big.NewInt(7)}, buckets)

	total, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, 16.0, total)

	partial := Normalize([]byte(`{"categorizedByDO": "partial", "results": {}, "nonConsenting": ["bucket_9"], "aggregatedTotal": 5}`))
	c, ok, err = ParseCategorized(partial)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.Partial)
	require.Empty(t, c.Results)
	require.Equal(t, []string{"bucket_9"}, c.NonConsenting)

	for _, v := range []interface{}{5.0, "text", map[string]interface{}{"coef": 1.0}} {
		_, ok, err = ParseCategorized(v)
		require.NoError(t, err)
		require.False(t, ok)
	}

	_, ok, err = ParseCategorized(map[string]interface{}{"categorizedByDO": "maybe"})
	require.True(t, ok)
	require.Error(t, err)
}
