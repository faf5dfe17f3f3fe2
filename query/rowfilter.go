package query

import (
	"github.com/apache/arrow/go/v18/arrow"

	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/predicate"
)

// rowMatches re-applies a predicate exactly to one concrete value, the
// precise pass spec §4.7 step 5 calls for after catalog-level pruning
// ("re-applies all predicates precisely"). Unlike predicate.MayMatch over a
// Range, this is exact: numeric comparisons, equality included, use no
// tolerance.
func rowMatches(k coltype.Kind, v coltype.Value, valid bool, p predicate.Predicate) bool {
	if p.MissingSentinel != nil && !valid && p.Value.Compare(*p.MissingSentinel) == 0 {
		switch p.Op {
		case predicate.OpEQ, predicate.OpLE, predicate.OpGE:
			return true
		case predicate.OpNE:
			return false
		default:
			return false
		}
	}
	if !valid {
		return p.Op == predicate.OpNE
	}

	if k == coltype.KindString || p.Op == predicate.OpRE {
		s := v.Str
		switch p.Op {
		case predicate.OpEQ:
			return s == p.Value.Str
		case predicate.OpNE:
			return s != p.Value.Str
		case predicate.OpLT:
			return s < p.Value.Str
		case predicate.OpLE:
			return s <= p.Value.Str
		case predicate.OpGT:
			return s > p.Value.Str
		case predicate.OpGE:
			return s >= p.Value.Str
		case predicate.OpRE:
			return p.Regex.MatchString(s)
		}
		return true
	}

	a, b := v.AsFloat64(), p.Value.AsFloat64()
	switch p.Op {
	case predicate.OpEQ:
		return a == b
	case predicate.OpNE:
		return a != b
	case predicate.OpLT:
		return a < b
	case predicate.OpLE:
		return a <= b
	case predicate.OpGT:
		return a > b
	case predicate.OpGE:
		return a >= b
	}
	return true
}

// rowIndicesMatching returns the row indices of rec satisfying every
// predicate whose column is present in rec, evaluated exactly.
func rowIndicesMatching(rec arrow.Record, colIndex func(string) int, kinds map[string]coltype.Kind, preds []predicate.Predicate) []int {
	n := int(rec.NumRows())
	var out []int
	for i := 0; i < n; i++ {
		ok := true
		for _, p := range preds {
			ci := colIndex(p.Column)
			if ci < 0 {
				continue
			}
			k := kinds[p.Column]
			v, valid := coltype.ValueAt(k, rec.Column(ci), i)
			if !rowMatches(k, v, valid, p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}
