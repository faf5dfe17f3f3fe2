package query

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/predicate"
	"github.com/ayudhien/erddap/sink/memsink"
)

// fakeReader answers core.FileReader.Read from an in-memory table of
// file -> column -> values, keyed by Dir+Name, mirroring the pattern used in
// catalogupdater's tests so the executor can be exercised without a real
// filesystem or DuckDB.
type fakeReader struct {
	files map[string]map[string][]float64
	fail  map[string]bool
}

func (f *fakeReader) key(dir, name string) string { return dir + name }

func (f *fakeReader) Read(ctx context.Context, req core.ReadRequest) (*core.Table, error) {
	k := f.key(req.Dir, req.Name)
	if f.fail[k] {
		return nil, errors.New("simulated read failure")
	}
	cols, ok := f.files[k]
	if !ok {
		return nil, errors.New("no such file")
	}

	mem := memory.NewGoAllocator()
	var fields []arrow.Field
	var arrays []arrow.Array
	n := 0
	for _, name := range req.ColumnNames {
		vals := cols[name]
		n = len(vals)
		b := array.NewFloat64Builder(mem)
		for _, v := range vals {
			b.Append(v)
		}
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
		arrays = append(arrays, b.NewArray())
	}
	rec := array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(n))
	return &core.Table{Record: rec}, nil
}

func rng(lo, hi float64) coltype.Range {
	r := coltype.ZeroRange(coltype.KindFloat64)
	r.Widen(coltype.Float64(lo), false)
	r.Widen(coltype.Float64(hi), false)
	return r
}

func newTestExecutor(r *fakeReader) *Executor {
	return &Executor{
		Config: &core.DatasetConfig{
			DatasetID:     "test",
			FilesAreLocal: true,
			DataVariables: []core.ColumnConfig{
				{SourceName: "temp", Kind: coltype.KindFloat64},
			},
		},
		Catalog:  catalog.NewCatalog(),
		Dirs:     catalog.NewDirTable(),
		BadFiles: catalog.NewBadFileRegistry(),
		Reader:   r,
	}
}

func TestExecuteRejectsWholeDatasetWhenRangeExcludesPredicate(t *testing.T) {
	r := &fakeReader{}
	e := newTestExecutor(r)
	dirIdx := e.Dirs.Intern("/data/")
	e.Catalog.Upsert(&catalog.FileRecord{
		Key:     catalog.FileKey{DirIndex: int16(dirIdx), Name: "a.csv"},
		Columns: map[string]coltype.Range{"temp": rng(10, 20)},
	})

	p, err := predicate.Compile("temp", predicate.OpEQ, coltype.Float64(5), nil)
	if err != nil {
		t.Fatal(err)
	}

	s := memsink.New()
	err = e.Execute(context.Background(), Query{ResultColumns: []string{"temp"}, Predicates: []predicate.Predicate{p}}, s)
	if !errors.Is(err, core.ErrNoMatchingData) {
		t.Fatalf("expected ErrNoMatchingData for a value provably outside every file's range, got %v", err)
	}
	if len(s.Chunks()) != 0 {
		t.Error("expected no chunks written when the whole dataset is rejected in step 1")
	}
	if s.Finished() {
		t.Error("expected Finish not to be called on whole-dataset rejection")
	}
}

func TestExecuteFiltersRowsWithinAMatchingFile(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/a.csv": {"temp": {1, 15, 30}},
	}}
	e := newTestExecutor(r)
	dirIdx := e.Dirs.Intern("/data/")
	e.Catalog.Upsert(&catalog.FileRecord{
		Key:     catalog.FileKey{DirIndex: int16(dirIdx), Name: "a.csv"},
		Columns: map[string]coltype.Range{"temp": rng(1, 30)},
	})

	p, err := predicate.Compile("temp", predicate.OpGE, coltype.Float64(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	s := memsink.New()
	err = e.Execute(context.Background(), Query{ResultColumns: []string{"temp"}, Predicates: []predicate.Predicate{p}}, s)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !s.Finished() {
		t.Error("expected Finish to be called after a successful query")
	}
	if got := s.TotalRows(); got != 2 {
		t.Errorf("expected 2 rows (15 and 30) to survive exact row filtering, got %d", got)
	}
}

func TestExecuteRetriesThenQuarantinesOnPersistentReadFailure(t *testing.T) {
	r := &fakeReader{fail: map[string]bool{"/data/bad.csv": true}}
	e := newTestExecutor(r)
	dirIdx := e.Dirs.Intern("/data/")
	e.Catalog.Upsert(&catalog.FileRecord{
		Key:     catalog.FileKey{DirIndex: int16(dirIdx), Name: "bad.csv"},
		Columns: map[string]coltype.Range{"temp": rng(1, 30)},
	})

	p, err := predicate.Compile("temp", predicate.OpGE, coltype.Float64(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	s := memsink.New()
	err = e.Execute(context.Background(), Query{ResultColumns: []string{"temp"}, Predicates: []predicate.Predicate{p}}, s)
	if !errors.Is(err, core.ErrRetryLater) {
		t.Fatalf("expected ErrRetryLater after both read attempts fail, got %v", err)
	}
	if _, ok := e.BadFiles.Get(int16(dirIdx), "bad.csv"); !ok {
		t.Error("expected the persistently failing local file to be quarantined")
	}
}

func TestExecuteDistinctDedupsAcrossUniformAndNonUniformFiles(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/multi.csv": {"temp": {5, 5, 9}},
	}}
	e := newTestExecutor(r)
	dirIdx := e.Dirs.Intern("/data/")
	e.Catalog.Upsert(&catalog.FileRecord{
		Key:     catalog.FileKey{DirIndex: int16(dirIdx), Name: "multi.csv"},
		Columns: map[string]coltype.Range{"temp": rng(5, 9)},
	})
	e.Catalog.Upsert(&catalog.FileRecord{
		Key:     catalog.FileKey{DirIndex: int16(dirIdx), Name: "uniform.csv"},
		Columns: map[string]coltype.Range{"temp": rng(5, 5)},
	})

	s := memsink.New()
	err := e.Execute(context.Background(), Query{ResultColumns: []string{"temp"}, Distinct: true}, s)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := s.TotalRows(); got != 2 {
		t.Errorf("expected distinct() to collapse the duplicate 5 (one from the scanned non-uniform file, one from the uniform fast path) down to 2 rows (5, 9), got %d", got)
	}
}

func TestDistinctAccumulatorShortCircuitsOnUniformRows(t *testing.T) {
	acc := NewDistinctAccumulator([]string{"temp"})
	acc.Add([]coltype.Value{coltype.Float64(5)})
	acc.Add([]coltype.Value{coltype.Float64(5)})
	acc.Add([]coltype.Value{coltype.Float64(9)})

	chunk, err := acc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if chunk == nil {
		t.Fatal("expected a non-nil chunk from Flush with rows added")
	}
	if got := chunk.Record.NumRows(); got != 2 {
		t.Errorf("expected distinct() to collapse the duplicate row, got %d rows", got)
	}
}
