package catalog

import (
	"testing"

	"github.com/ayudhien/erddap/coltype"
)

func rangeOf(lo, hi float64) coltype.Range {
	r := coltype.ZeroRange(coltype.KindFloat64)
	r.Widen(coltype.Float64(lo), false)
	r.Widen(coltype.Float64(hi), false)
	return r
}

func TestCatalogAscendOrder(t *testing.T) {
	c := NewCatalog()
	c.Upsert(&FileRecord{Key: FileKey{DirIndex: 1, Name: "b.csv"}})
	c.Upsert(&FileRecord{Key: FileKey{DirIndex: 0, Name: "z.csv"}})
	c.Upsert(&FileRecord{Key: FileKey{DirIndex: 1, Name: "a.csv"}})
	c.Upsert(&FileRecord{Key: FileKey{DirIndex: 0, Name: "a.csv"}})

	var seen []FileKey
	c.Ascend(func(r *FileRecord) bool {
		seen = append(seen, r.Key)
		return true
	})

	want := []FileKey{
		{DirIndex: 0, Name: "a.csv"},
		{DirIndex: 0, Name: "z.csv"},
		{DirIndex: 1, Name: "a.csv"},
		{DirIndex: 1, Name: "b.csv"},
	}
	if len(seen) != len(want) {
		t.Fatalf("got %d records, want %d", len(seen), len(want))
	}
	for i, k := range want {
		if seen[i] != k {
			t.Errorf("position %d: got %+v, want %+v", i, seen[i], k)
		}
	}
}

func TestCatalogUpsertIsUniqueByKey(t *testing.T) {
	c := NewCatalog()
	key := FileKey{DirIndex: 0, Name: "a.csv"}
	c.Upsert(&FileRecord{Key: key, LastModified: 1})
	c.Upsert(&FileRecord{Key: key, LastModified: 2})

	if c.Len() != 1 {
		t.Fatalf("expected a re-upsert at the same key to replace, not duplicate; Len()=%d", c.Len())
	}
	if got := c.Get(key).LastModified; got != 2 {
		t.Errorf("expected the later upsert to win, got LastModified=%v", got)
	}
}

func TestCatalogRemove(t *testing.T) {
	c := NewCatalog()
	key := FileKey{DirIndex: 0, Name: "a.csv"}
	c.Upsert(&FileRecord{Key: key})
	c.Remove(key)
	if c.Get(key) != nil {
		t.Error("expected record to be gone after Remove")
	}
	if c.Len() != 0 {
		t.Errorf("expected Len()=0 after removing the only record, got %d", c.Len())
	}
}

func TestCatalogSnapshotIsIndependentOfLiveMutation(t *testing.T) {
	c := NewCatalog()
	key := FileKey{DirIndex: 0, Name: "a.csv"}
	c.Upsert(&FileRecord{Key: key, Columns: map[string]coltype.Range{"x": rangeOf(0, 1)}})

	snap := c.Snapshot()
	c.Upsert(&FileRecord{Key: key, Columns: map[string]coltype.Range{"x": rangeOf(100, 200)}})

	if snap[0].Columns["x"] != rangeOf(0, 1) {
		t.Error("snapshot record was mutated by a later Upsert; Snapshot must clone")
	}
}

func TestAggregateRecompute(t *testing.T) {
	records := []*FileRecord{
		{Key: FileKey{Name: "a"}, Columns: map[string]coltype.Range{"x": rangeOf(0, 10)}},
		{Key: FileKey{Name: "b"}, Columns: map[string]coltype.Range{"x": rangeOf(-5, 3)}},
	}
	agg := Recompute(records)
	got := agg.Columns["x"]
	if got.Min.F64 != -5 || got.Max.F64 != 10 {
		t.Errorf("expected merged range [-5, 10], got [%v, %v]", got.Min.F64, got.Max.F64)
	}
}

func TestAggregateRecomputeRetractsBoundOnFileRemoval(t *testing.T) {
	all := []*FileRecord{
		{Key: FileKey{Name: "a"}, Columns: map[string]coltype.Range{"x": rangeOf(0, 10)}},
		{Key: FileKey{Name: "b"}, Columns: map[string]coltype.Range{"x": rangeOf(-5, 3)}},
	}
	withoutB := all[:1]

	agg := Recompute(withoutB)
	got := agg.Columns["x"]
	if got.Min.F64 != 0 {
		t.Errorf("removing the file that held the extreme minimum must retract it; got min=%v, want 0", got.Min.F64)
	}
}

func TestAggregateColumnNamesSorted(t *testing.T) {
	agg := &AggregateTable{Columns: map[string]coltype.Range{
		"z": rangeOf(0, 1), "a": rangeOf(0, 1), "m": rangeOf(0, 1),
	}}
	names := agg.ColumnNames()
	want := []string{"a", "m", "z"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("position %d: got %q, want %q", i, names[i], n)
		}
	}
}

func TestSnapshotFollowsReplaceAllVisitationOrder(t *testing.T) {
	c := NewCatalog()
	a := &FileRecord{Key: FileKey{DirIndex: 0, Name: "a.csv"}}
	b := &FileRecord{Key: FileKey{DirIndex: 0, Name: "b.csv"}}
	z := &FileRecord{Key: FileKey{DirIndex: 0, Name: "z.csv"}}

	// A visitation order deliberately not (dirIndex, name) ascending, as
	// sortFilesBySourceNames would produce.
	c.ReplaceAll([]*FileRecord{z, a, b})

	snap := c.Snapshot()
	want := []FileKey{z.Key, a.Key, b.Key}
	if len(snap) != len(want) {
		t.Fatalf("got %d records, want %d", len(snap), len(want))
	}
	for i, k := range want {
		if snap[i].Key != k {
			t.Errorf("position %d: got %+v, want %+v -- Snapshot must preserve ReplaceAll's visitation order", i, snap[i].Key, k)
		}
	}

	// SnapshotByKey must ignore that order and always report (dirIndex,
	// name) ascending, since the updater's merge-diff walk depends on it.
	byKey := c.SnapshotByKey()
	wantByKey := []FileKey{a.Key, b.Key, z.Key}
	for i, k := range wantByKey {
		if byKey[i].Key != k {
			t.Errorf("position %d: got %+v, want %+v -- SnapshotByKey must stay (dirIndex, name) ascending", i, byKey[i].Key, k)
		}
	}
}

func TestDirTableInternIsStableAndDeduplicates(t *testing.T) {
	dt := NewDirTable()
	i1 := dt.Intern("/data/a")
	i2 := dt.Intern("/data/b")
	i3 := dt.Intern("/data/a")
	if i1 != i3 {
		t.Errorf("interning the same path twice should return the same index: got %d and %d", i1, i3)
	}
	if i1 == i2 {
		t.Errorf("distinct paths must get distinct indexes")
	}
	if dt.Path(i1) != "/data/a" || dt.Path(i2) != "/data/b" {
		t.Error("Path must reverse Intern")
	}
}
