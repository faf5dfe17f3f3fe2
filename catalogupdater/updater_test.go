package catalogupdater

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
)

// fakeReader answers core.FileReader.Read from an in-memory table of
// file -> column -> values, keyed by Dir+Name, so updater tests don't
// need a real filesystem or DuckDB.
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
	attrs := make(map[string]catalog.ColumnAttributes, len(req.ColumnNames))
	for _, name := range req.ColumnNames {
		attrs[name] = catalog.ColumnAttributes{Scale: math.NaN(), Offset: math.NaN(), Fill: math.NaN(), Missing: math.NaN()}
	}
	return &core.Table{Record: rec, Attrs: attrs}, nil
}

func newTestConfig() *core.DatasetConfig {
	return &core.DatasetConfig{
		DatasetID:     "test",
		FilesAreLocal: true,
		DataVariables: []core.ColumnConfig{
			{SourceName: "temp", Kind: coltype.KindFloat64},
		},
	}
}

func newTestUpdater(r *fakeReader) *Updater {
	return &Updater{
		Config:   newTestConfig(),
		Reader:   r,
		Catalog:  catalog.NewCatalog(),
		Dirs:     catalog.NewDirTable(),
		BadFiles: catalog.NewBadFileRegistry(),
		Sentinel: catalog.NewSchemaSentinel(catalog.NewAttributeOverrides()),
	}
}

func TestRunScansNewFiles(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/a.csv": {"temp": {1, 2, 3}},
	}}
	u := newTestUpdater(r)

	summary, err := u.Run(context.Background(), []core.DiscoveryResult{
		{Dir: "/data/", Name: "a.csv", LastModified: 100},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Scanned != 1 || summary.Kept != 0 {
		t.Errorf("expected 1 scanned, 0 kept on first pass; got %+v", summary)
	}
	if u.Catalog.Len() != 1 {
		t.Fatalf("expected 1 catalog entry, got %d", u.Catalog.Len())
	}
}

func TestRunIsIdempotentOnUnchangedFiles(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/a.csv": {"temp": {1, 2, 3}},
	}}
	u := newTestUpdater(r)
	discovered := []core.DiscoveryResult{{Dir: "/data/", Name: "a.csv", LastModified: 100}}

	if _, err := u.Run(context.Background(), discovered); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := u.Run(context.Background(), discovered)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Scanned != 0 || summary.Kept != 1 {
		t.Errorf("a file whose lastModified hasn't changed must be kept, not rescanned; got %+v", summary)
	}
}

func TestRunRescansOnLastModifiedChange(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/a.csv": {"temp": {1, 2, 3}},
	}}
	u := newTestUpdater(r)

	if _, err := u.Run(context.Background(), []core.DiscoveryResult{
		{Dir: "/data/", Name: "a.csv", LastModified: 100},
	}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	r.files["/data/a.csv"]["temp"] = []float64{1, 2, 3, 4, 5}
	summary, err := u.Run(context.Background(), []core.DiscoveryResult{
		{Dir: "/data/", Name: "a.csv", LastModified: 200},
	})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Scanned != 1 {
		t.Errorf("a changed lastModified must trigger a rescan; got %+v", summary)
	}
}

func TestRunRemovesVanishedFiles(t *testing.T) {
	r := &fakeReader{files: map[string]map[string][]float64{
		"/data/a.csv": {"temp": {1}},
	}}
	u := newTestUpdater(r)

	if _, err := u.Run(context.Background(), []core.DiscoveryResult{
		{Dir: "/data/", Name: "a.csv", LastModified: 100},
	}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := u.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Removed != 1 {
		t.Errorf("expected the vanished file to be counted removed; got %+v", summary)
	}
	if u.Catalog.Len() != 0 {
		t.Errorf("expected an empty catalog after its only file vanished, got Len()=%d", u.Catalog.Len())
	}
}

func TestRunQuarantinesOldFailingFile(t *testing.T) {
	r := &fakeReader{
		files: map[string]map[string][]float64{"/data/bad.csv": {"temp": {1}}},
		fail:  map[string]bool{"/data/bad.csv": true},
	}
	u := newTestUpdater(r)

	_, err := u.Run(context.Background(), []core.DiscoveryResult{
		// LastModified far in the past so badFileAgeThreshold is exceeded.
		{Dir: "/data/", Name: "bad.csv", LastModified: 0},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := u.BadFiles.Get(0, "bad.csv"); !ok {
		t.Error("expected an old failing file to be quarantined in the bad-file registry")
	}
}
