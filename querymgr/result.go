package querymgr

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"
)

const bucketKeyPrefix = "bucket_"

// CategorizedResult is the result of a query categorized by data owner.
// Partial is set when some buckets did not consent to identity disclosure
// for the aggregate; those are listed in NonConsenting and their values are
// only part of AggregatedTotal.
type CategorizedResult struct {
	Partial         bool
	Results         map[string]map[string]interface{}
	AggregatedTotal interface{}
	NonConsenting   []string
}

// BucketKey is the key a bucket's entry is reported under.
func BucketKey(bucketID big.Int) string {
	return bucketKeyPrefix + bucketID.String()
}

// Buckets returns the ids of the buckets with a disclosed result.
func (c *CategorizedResult) Buckets() ([]big.Int, error) {
	keys := make([]string, 0, len(c.Results))
	for k := range c.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]big.Int, 0, len(keys))
	for _, k := range keys {
		id, err := big.FromString(strings.TrimPrefix(k, bucketKeyPrefix))
		if err != nil {
			return nil, xerrors.Errorf("bad bucket key %q: %w", k, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Total returns AggregatedTotal as a number.
func (c *CategorizedResult) Total() (float64, error) {
	return asFloat(c.AggregatedTotal)
}

// ParseCategorized reads the categorized shape out of a decoded result. The
// second return is false when v is not a categorized result.
func ParseCategorized(v interface{}) (*CategorizedResult, bool, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false, nil
	}
	flag, ok := m["categorizedByDO"]
	if !ok {
		return nil, false, nil
	}

	out := &CategorizedResult{
		Results:         map[string]map[string]interface{}{},
		AggregatedTotal: m["aggregatedTotal"],
	}
	switch f := flag.(type) {
	case bool:
		if !f {
			return nil, false, nil
		}
	case string:
		if f != "partial" {
			return nil, true, xerrors.Errorf("unknown categorizedByDO value %q", f)
		}
		out.Partial = true
	default:
		return nil, true, xerrors.Errorf("unexpected categorizedByDO type %T", flag)
	}

	if raw, ok := m["results"]; ok && raw != nil {
		results, ok := raw.(map[string]interface{})
		if !ok {
			return nil, true, xerrors.Errorf("unexpected results type %T", raw)
		}
		for k, r := range results {
			entry, ok := r.(map[string]interface{})
			if !ok {
				return nil, true, xerrors.Errorf("unexpected result type %T for %s", r, k)
			}
			out.Results[k] = entry
		}
	}

	if raw, ok := m["nonConsenting"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, true, xerrors.Errorf("unexpected nonConsenting type %T", raw)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, true, xerrors.Errorf("unexpected nonConsenting entry %T", item)
			}
			out.NonConsenting = append(out.NonConsenting, s)
		}
	}
	return out, true, nil
}

func asFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, xerrors.Errorf("result %q is not a number", x)
		}
		return f, nil
	case nil:
		return 0, xerrors.Errorf("empty result")
	}
	return 0, xerrors.Errorf("result of type %T is not a number", v)
}
