package predicate

import (
	"testing"

	"github.com/ayudhien/erddap/coltype"
)

func numRange(lo, hi float64) coltype.Range {
	r := coltype.ZeroRange(coltype.KindFloat64)
	r.Widen(coltype.Float64(lo), false)
	r.Widen(coltype.Float64(hi), false)
	return r
}

func TestNumericMayMatchExcludesOutsideRange(t *testing.T) {
	r := numRange(10, 20)
	p, err := Compile("x", OpEQ, coltype.Float64(5), nil)
	if err != nil {
		t.Fatal(err)
	}
	if MayMatch(r, p) {
		t.Error("a value strictly outside [min,max] must be provably excluded")
	}
}

func TestNumericMayMatchAdmitsInsideRange(t *testing.T) {
	r := numRange(10, 20)
	p, _ := Compile("x", OpEQ, coltype.Float64(15), nil)
	if !MayMatch(r, p) {
		t.Error("a value inside [min,max] must be admitted")
	}
}

func TestNumericMayMatchAdmitsAtBoundary(t *testing.T) {
	r := numRange(10, 20)
	for _, v := range []float64{10, 20} {
		p, _ := Compile("x", OpEQ, coltype.Float64(v), nil)
		if !MayMatch(r, p) {
			t.Errorf("boundary value %v must be admitted for =", v)
		}
	}
}

func TestLessThanExcludesAtOrAboveMin(t *testing.T) {
	r := numRange(10, 20)
	p, _ := Compile("x", OpLT, coltype.Float64(10), nil)
	if MayMatch(r, p) {
		t.Error("x < 10 cannot match a file whose minimum is exactly 10")
	}
}

func TestGreaterThanAdmitsJustBelowMax(t *testing.T) {
	r := numRange(10, 20)
	p, _ := Compile("x", OpGT, coltype.Float64(19), nil)
	if !MayMatch(r, p) {
		t.Error("x > 19 must be admitted when max is 20")
	}
}

func TestMissingSentinelEqualityRequiresHasMissing(t *testing.T) {
	r := coltype.ZeroRange(coltype.KindFloat64)
	r.Widen(coltype.Float64(5), false)
	missing := coltype.Float64(-999)
	p, _ := Compile("x", OpEQ, missing, &missing)

	if MayMatch(r, p) {
		t.Error("querying for the missing sentinel must exclude a file with no missing rows")
	}

	r.Widen(coltype.Float64(-999), true)
	if !MayMatch(r, p) {
		t.Error("querying for the missing sentinel must admit a file that has missing rows")
	}
}

func TestNotEqualExcludesConstantRangeAtValue(t *testing.T) {
	r := numRange(1, 1)
	p, _ := Compile("x", OpNE, coltype.Float64(1), nil)
	if MayMatch(r, p) {
		t.Error("x != 1 cannot match a file whose every value is exactly 1")
	}
}

func TestTextEqualityRange(t *testing.T) {
	r := coltype.ZeroRange(coltype.KindString)
	r.Widen(coltype.String("banana"), false)
	r.Widen(coltype.String("cherry"), false)

	p, _ := Compile("name", OpEQ, coltype.String("apple"), nil)
	if MayMatch(r, p) {
		t.Error("\"apple\" sorts before the file's lexical min \"banana\" and must be excluded")
	}

	p2, _ := Compile("name", OpEQ, coltype.String("banana"), nil)
	if !MayMatch(r, p2) {
		t.Error("a value equal to the lexical min must be admitted")
	}
}

func TestRegexMayMatchUnpopulatedColumnExcludes(t *testing.T) {
	r := coltype.ZeroRange(coltype.KindString)
	r.Widen(coltype.String(""), true) // every row missing
	p, err := Compile("name", OpRE, coltype.String("^a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if MayMatch(r, p) {
		t.Error("a regex predicate cannot match a column with no populated value and no missing-admitting rule")
	}
}

func TestExpandedFPEQWidensMatchBeyondStandardTolerance(t *testing.T) {
	r := numRange(10, 10.00002) // 10.0001 queried below lies outside this range's standard tolerance
	p, err := Compile("x", OpEQ, coltype.Float64(10.0001), nil)
	if err != nil {
		t.Fatal(err)
	}
	if MayMatch(r, p) {
		t.Fatal("expected the unexpanded predicate to exclude a value outside the standard tolerance")
	}

	p.ExpandedFPEQ = true
	if !MayMatch(r, p) {
		t.Error("sourceNeedsExpandedFP_EQ must widen = into a [value-eps, value+eps] band that admits this file")
	}
}

func TestCompileRejectsInvalidRegex(t *testing.T) {
	if _, err := Compile("name", OpRE, coltype.String("("), nil); err == nil {
		t.Error("expected an error compiling an invalid regex")
	}
}
