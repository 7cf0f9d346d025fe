package ledgersim

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/querymgr"
)

// Row is one record of a bucket's dataset.
type Row map[string]interface{}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func compare(a, b interface{}) (int, bool) {
	fa, oka := number(a)
	fb, okb := number(b)
	if oka && okb {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}

func match(f *querymgr.Filter, r Row) bool {
	if f == nil {
		return true
	}
	if len(f.And) > 0 {
		for _, sub := range f.And {
			if !match(sub, r) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, sub := range f.Or {
			if match(sub, r) {
				return true
			}
		}
		return false
	}

	v, ok := r[f.Column]
	if !ok {
		return false
	}
	if f.Op == querymgr.OpIn {
		var list []interface{}
		switch x := f.Value.(type) {
		case []interface{}:
			list = x
		case []string:
			for _, s := range x {
				list = append(list, s)
			}
		}
		for _, item := range list {
			if c, _ := compare(v, item); c == 0 {
				return true
			}
		}
		return false
	}

	c, _ := compare(v, f.Value)
	switch f.Op {
	case querymgr.OpEq:
		return c == 0
	case querymgr.OpNe:
		return c != 0
	case querymgr.OpGt:
		return c > 0
	case querymgr.OpGte:
		return c >= 0
	case querymgr.OpLt:
		return c < 0
	case querymgr.OpLte:
		return c <= 0
	}
	return false
}

func filterRows(rows []Row, f *querymgr.Filter) []Row {
	if f == nil {
		return rows
	}
	var out []Row
	for _, r := range rows {
		if match(f, r) {
			out = append(out, r)
		}
	}
	return out
}

func column(rows []Row, col string) ([]float64, error) {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		v, ok := r[col]
		if !ok {
			continue
		}
		f, ok := number(v)
		if !ok {
			return nil, xerrors.Errorf("column %s is not numeric", col)
		}
		out = append(out, f)
	}
	return out, nil
}

// aggregate computes an aggregate over a column of the rows. count over an
// empty column counts rows.
func aggregate(typ, col string, rows []Row) (float64, error) {
	if typ == "count" && col == "" {
		return float64(len(rows)), nil
	}
	vals, err := column(rows, col)
	if err != nil {
		return 0, err
	}
	return reduce(typ, vals)
}

func reduce(typ string, vals []float64) (float64, error) {
	switch typ {
	case "count":
		return float64(len(vals)), nil
	case "sum":
		var s float64
		for _, v := range vals {
			s += v
		}
		return s, nil
	case "mean":
		if len(vals) == 0 {
			return 0, xerrors.Errorf("mean of no values")
		}
		s, _ := reduce("sum", vals)
		return s / float64(len(vals)), nil
	case "min", "max":
		if len(vals) == 0 {
			return 0, xerrors.Errorf("%s of no values", typ)
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		if typ == "min" {
			return sorted[0], nil
		}
		return sorted[len(sorted)-1], nil
	}
	return 0, xerrors.Errorf("unknown aggregate %q", typ)
}

// linearRegression fits y = a + b*x by least squares.
func linearRegression(rows []Row, xcol, ycol string) ([]float64, error) {
	var n, sx, sy, sxx, sxy float64
	for _, r := range rows {
		x, okx := number(r[xcol])
		y, oky := number(r[ycol])
		if !okx || !oky {
			continue
		}
		n++
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	if n < 2 {
		return nil, xerrors.Errorf("linear regression needs at least two points")
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return nil, xerrors.Errorf("linear regression over constant %s", xcol)
	}
	b := (n*sxy - sx*sy) / den
	a := (sy - b*sx) / n
	return []float64{a, b}, nil
}
