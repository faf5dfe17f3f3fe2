package catalogupdater

import (
	"github.com/apache/arrow/go/v18/arrow"

	"github.com/ayudhien/erddap/coltype"
)

// sortedSpacingOf computes the sortedSpacing state of spec §4.5 for one
// file's sorted column: -1 not ascending, 0 ascending but unevenly spaced,
// δ>0 strictly ascending and evenly spaced with stride δ. Grounded on
// EDDTableFromFiles.java's isAscending/isEvenlySpaced/stride computation.
func sortedSpacingOf(kind coltype.Kind, col arrow.Array) float64 {
	n := col.Len()
	if n < 2 {
		return -1
	}

	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, valid := coltype.ValueAt(kind, col, i)
		if !valid {
			return -1
		}
		values = append(values, v.AsFloat64())
	}

	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return -1
		}
	}

	stride := (values[len(values)-1] - values[0]) / float64(len(values)-1)
	if stride <= 0 {
		return 0
	}
	const tol = 1e-6
	for i := 1; i < len(values); i++ {
		expected := values[0] + stride*float64(i)
		diff := values[i] - expected
		if diff < 0 {
			diff = -diff
		}
		if diff > tol*stride {
			return 0
		}
	}
	return stride
}
