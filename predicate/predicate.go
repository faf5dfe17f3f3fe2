// Package predicate implements the range admission test of spec §4.1: given
// a file's column range (min, max, hasMissing) and a single-column
// predicate, decide whether the range could contain a matching row. A false
// result is a hard guarantee of no match; a true result is only "maybe" --
// spurious inclusion is a performance loss, never a correctness bug.
package predicate

import (
	"fmt"
	"regexp"

	"github.com/ayudhien/erddap/coltype"
)

// Op is one of the fixed operator set the engine supports. There is no
// general SQL here by design (spec Non-goals).
type Op string

const (
	OpEQ Op = "="
	OpNE Op = "!="
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpRE Op = "~"
)

// tolerance is the fixed numeric-precision tolerance used for <=, >=, = on
// numeric columns (§4.1), expressed as significant digits. Five significant
// digits matches the teacher's general float handling margin and the
// original's packed-value round-trip tolerance.
const significantDigits = 5

// expandedFPEQDigits is the much coarser tolerance sourceNeedsExpandedFP_EQ
// (§6) substitutes for significantDigits on a float `=` predicate, for
// datasets whose packed source values drift further than the standard
// precision tolerance allows.
const expandedFPEQDigits = 2

// Predicate is one conjunctive clause: column OP value. MissingSentinel, if
// non-nil, is the column's designated missing-value sentinel (resolved by
// the schema sentinel, package catalog) and participates in the numeric
// missing-value special case. ExpandedFPEQ, set by the caller when the
// dataset config's sourceNeedsExpandedFP_EQ is true and this is a float `=`
// predicate, widens the comparison per ExpandedFPEQ below.
type Predicate struct {
	Column          string
	Op              Op
	Value           coltype.Value
	MissingSentinel *coltype.Value
	Regex           *regexp.Regexp
	ExpandedFPEQ    bool
}

// ExpandedFPEQ widens a float `=` predicate into a [value-eps, value+eps]
// tolerance band before evaluation, implementing the
// sourceNeedsExpandedFP_EQ config option (§6) for datasets whose packed
// source values drift slightly on unpacking.
func ExpandedFPEQ(value float64, eps float64) (lo, hi float64) {
	return value - eps, value + eps
}

// Compile builds a Predicate, compiling the regex up front for Op==OpRE so
// MayMatch never returns a regex compile error mid-plan.
func Compile(column string, op Op, value coltype.Value, missing *coltype.Value) (Predicate, error) {
	p := Predicate{Column: column, Op: op, Value: value, MissingSentinel: missing}
	if op == OpRE {
		re, err := regexp.Compile(value.Str)
		if err != nil {
			return Predicate{}, fmt.Errorf("predicate: bad regex for column %s: %w", column, err)
		}
		p.Regex = re
	}
	return p, nil
}

// MayMatch is the single entry point described by spec §4.1. It dispatches
// on whether this is a text/regex evaluation or a numeric one.
func MayMatch(r coltype.Range, p Predicate) bool {
	if r.Kind == coltype.KindString || p.Op == OpRE {
		return textMayMatch(r, p)
	}
	return numericMayMatch(r, p)
}

// textMayMatch implements the text-column / regex-operator branch of §4.1.
func textMayMatch(r coltype.Range, p Predicate) bool {
	value := p.Value.Str

	if r.HasMissing {
		switch p.Op {
		case OpEQ:
			if value == "" {
				return true
			}
		case OpLE:
			if value == "" {
				return true
			}
		case OpGE:
			if value == "" {
				return true
			}
		case OpRE:
			if value == "" {
				return true
			}
		case OpLT:
			if value != "" {
				return true
			}
		}
		// fall through: hasMissing alone doesn't resolve the other operators;
		// continue to the min/max-based rules below using whatever populated
		// range exists (may be unpopulated if every row in the file is
		// missing, handled by !r.Populated branches below).
	}

	if !r.Populated {
		// Every row in this file is missing. Only cases already handled
		// above (via r.HasMissing) can admit; everything else provably
		// cannot match since there is no concrete value to compare.
		return false
	}

	if p.Op == OpRE {
		if r.Min.Str == r.Max.Str {
			return p.Regex.MatchString(r.Min.Str)
		}
		return true
	}

	c1 := compareStr(r.Min.Str, value)
	c2 := compareStr(r.Max.Str, value)

	switch p.Op {
	case OpEQ:
		return c1 <= 0 && c2 >= 0
	case OpNE:
		return !(r.Min.Str == r.Max.Str && r.Min.Str == value)
	case OpLT:
		return c1 < 0
	case OpLE:
		return c1 <= 0
	case OpGT:
		return c2 > 0
	case OpGE:
		return c2 >= 0
	default:
		return true
	}
}

func compareStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// numericMayMatch implements the numeric-column branch of §4.1.
func numericMayMatch(r coltype.Range, p Predicate) bool {
	minMaxIsSentinel := p.MissingSentinel != nil && r.Populated &&
		r.Min.Compare(r.Max) == 0 && r.Min.Compare(*p.MissingSentinel) == 0

	if p.MissingSentinel != nil && p.Value.Compare(*p.MissingSentinel) == 0 {
		switch p.Op {
		case OpEQ, OpLE, OpGE:
			return r.HasMissing
		case OpNE:
			return !minMaxIsSentinel
		default:
			return false
		}
	}

	if minMaxIsSentinel {
		return p.Op == OpNE
	}

	if !r.Populated {
		// Every row missing and the query value isn't the sentinel: no
		// concrete value in this file could equal it, except "!=" which a
		// wholly-missing column trivially satisfies (nothing equals value).
		return p.Op == OpNE
	}

	value := p.Value.AsFloat64()
	minV, maxV := r.Min.AsFloat64(), r.Max.AsFloat64()
	tol := tolerance(value)

	switch p.Op {
	case OpEQ:
		lo, hi := value, value
		if p.ExpandedFPEQ {
			lo, hi = ExpandedFPEQ(value, toleranceAtDigits(value, expandedFPEQDigits))
		}
		return minV-tol <= hi && lo <= maxV+tol
	case OpLE:
		return minV-tol <= value
	case OpGE:
		return maxV+tol >= value
	case OpLT:
		return minV < value
	case OpGT:
		return maxV > value
	case OpNE:
		return !(minV == maxV && minV == value)
	default:
		return true
	}
}

// tolerance returns an absolute tolerance sized to significantDigits
// relative to the magnitude of value, the "fixed numeric-precision
// tolerance" spec §4.1 calls for.
func tolerance(value float64) float64 {
	return toleranceAtDigits(value, significantDigits)
}

// toleranceAtDigits generalizes tolerance to an arbitrary significant-digit
// count, so sourceNeedsExpandedFP_EQ can ask for a coarser band than the
// standard significantDigits without duplicating the magnitude math.
func toleranceAtDigits(value float64, digits int) float64 {
	if value == 0 {
		return 1e-9
	}
	mag := value
	if mag < 0 {
		mag = -mag
	}
	tol := mag
	for tol >= 1 {
		tol /= 10
	}
	for i := 1; i < digits; i++ {
		tol /= 10
	}
	return tol
}
