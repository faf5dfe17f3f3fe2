package catalog

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ayudhien/erddap/coltype"
)

// AggregateTable is the whole-dataset min/max/hasMissing summary of spec
// §4.6: one row per column, used to reject an entire query without opening
// any file (§4.7 step 1).
type AggregateTable struct {
	Columns map[string]coltype.Range
}

// ColumnNames returns the aggregate's column names in sorted order, used
// by diagnostics and tests that need a deterministic iteration order over
// a map.
func (a *AggregateTable) ColumnNames() []string {
	names := maps.Keys(a.Columns)
	slices.Sort(names)
	return names
}

// Recompute rebuilds the aggregate table from scratch over the given
// records. The query executor calls it over its catalog snapshot at the
// start of every query; it stays exact, not incremental, because file
// removal can retract either bound.
func Recompute(records []*FileRecord) *AggregateTable {
	agg := &AggregateTable{Columns: make(map[string]coltype.Range)}
	for _, rec := range records {
		for col, r := range rec.Columns {
			if existing, ok := agg.Columns[col]; ok {
				agg.Columns[col] = existing.Merge(r)
			} else {
				agg.Columns[col] = r
			}
		}
	}
	return agg
}
