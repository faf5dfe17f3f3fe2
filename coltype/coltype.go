// Package coltype provides a tagged-variant scalar type and a per-column
// min/max/hasMissing range, the common currency the catalog, the predicate
// evaluator and the file reader capability exchange instead of boxing every
// scalar as interface{}.
package coltype

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the native type carried by a Value or a Range. A column's
// Kind never changes once the schema sentinel (see package catalog) has
// captured it.
type Kind int8

const (
	KindInt64 Kind = iota
	KindUint64
	KindFloat64
	KindString
	// KindTimestamp is stored as Float64 epoch-seconds; see SPEC_FULL.md's
	// Data Model note on timestamp encoding.
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind
	I64  int64
	U64  uint64
	F64  float64
	Str  string
}

func Int64(v int64) Value     { return Value{Kind: KindInt64, I64: v} }
func Uint64(v uint64) Value   { return Value{Kind: KindUint64, U64: v} }
func Float64(v float64) Value { return Value{Kind: KindFloat64, F64: v} }
func String(v string) Value   { return Value{Kind: KindString, Str: v} }
func Timestamp(v float64) Value { return Value{Kind: KindTimestamp, F64: v} }

// IsNumeric reports whether the value's kind participates in the numeric
// branch of the predicate evaluator (§4.1) rather than the text/regex
// branch.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt64 || v.Kind == KindUint64 || v.Kind == KindFloat64 || v.Kind == KindTimestamp
}

// AsFloat64 returns the value's numeric magnitude, valid for any numeric
// Kind. Used by the tolerant numeric comparisons in package predicate.
func (v Value) AsFloat64() float64 {
	switch v.Kind {
	case KindInt64:
		return float64(v.I64)
	case KindUint64:
		return float64(v.U64)
	case KindFloat64, KindTimestamp:
		return v.F64
	default:
		return math.NaN()
	}
}

// Compare returns -1, 0, or 1 comparing v to o. Values must share a Kind
// (numeric kinds compare via AsFloat64; strings compare lexicographically).
func (v Value) Compare(o Value) int {
	if v.Kind == KindString || o.Kind == KindString {
		return compareStr(v.Str, o.Str)
	}
	a, b := v.AsFloat64(), o.AsFloat64()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
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

func (v Value) String() string {
	switch v.Kind {
	case KindInt64:
		return strconv.FormatInt(v.I64, 10)
	case KindUint64:
		return strconv.FormatUint(v.U64, 10)
	case KindFloat64, KindTimestamp:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindString:
		return v.Str
	default:
		return fmt.Sprintf("<%v>", v.Kind)
	}
}

// ParseValue parses s as the given Kind, mirroring the ColumnBuilder
// dispatch table the teacher keys off type name strings
// (merge/data_types/data_types.go's DataTypes map).
func ParseValue(k Kind, s string) (Value, error) {
	switch k {
	case KindInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		return Int64(n), err
	case KindUint64:
		n, err := strconv.ParseUint(s, 10, 64)
		return Uint64(n), err
	case KindFloat64:
		n, err := strconv.ParseFloat(s, 64)
		return Float64(n), err
	case KindTimestamp:
		n, err := strconv.ParseFloat(s, 64)
		return Timestamp(n), err
	case KindString:
		return String(s), nil
	default:
		return Value{}, fmt.Errorf("coltype: unsupported kind %v", k)
	}
}

// Range is a per-file, per-column summary: the minimum and maximum observed
// value plus a bit recording whether any row was missing/NaN/null. It is
// the unit the catalog persists and the predicate evaluator consumes.
type Range struct {
	Kind       Kind
	Min, Max   Value
	HasMissing bool
	// Populated reports whether at least one non-missing value contributed
	// to Min/Max. A file whose column is 100% missing has Populated=false,
	// HasMissing=true, and Min/Max at their Kind's zero Value.
	Populated bool
}

// ZeroRange returns the identity range for an empty scan: unpopulated, no
// missing values observed yet. Widen builds up from here.
func ZeroRange(k Kind) Range {
	return Range{Kind: k}
}

// Widen folds a single observed value into the range. missing indicates the
// value is the column's missing/fill sentinel and is excluded from
// Min/Max, only contributing to HasMissing.
func (r *Range) Widen(v Value, missing bool) {
	if missing {
		r.HasMissing = true
		return
	}
	if !r.Populated {
		r.Min, r.Max = v, v
		r.Populated = true
		return
	}
	if v.Compare(r.Min) < 0 {
		r.Min = v
	}
	if v.Compare(r.Max) > 0 {
		r.Max = v
	}
}

// Merge combines two ranges from disjoint row sets (e.g. two files' ranges
// feeding the aggregate min/max table, §4.6).
func (r Range) Merge(o Range) Range {
	out := r
	out.HasMissing = r.HasMissing || o.HasMissing
	if !o.Populated {
		return out
	}
	if !out.Populated {
		out.Min, out.Max, out.Populated = o.Min, o.Max, true
		return out
	}
	if o.Min.Compare(out.Min) < 0 {
		out.Min = o.Min
	}
	if o.Max.Compare(out.Max) > 0 {
		out.Max = o.Max
	}
	return out
}
