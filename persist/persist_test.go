package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
)

func sampleRecord() *catalog.FileRecord {
	r := coltype.ZeroRange(coltype.KindFloat64)
	r.Widen(coltype.Float64(1), false)
	r.Widen(coltype.Float64(9), false)
	return &catalog.FileRecord{
		Key:           catalog.FileKey{DirIndex: 0, Name: "a.csv"},
		LastModified:  1000,
		SortedSpacing: -1,
		Columns:       map[string]coltype.Range{"x": r},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dirs := []string{"/data/one"}
	records := []*catalog.FileRecord{sampleRecord()}
	bad := []BadFileOut{{Key: "0/broken.csv", LastModified: 5, Reason: "schema mismatch"}}

	if err := Save(dir, dirs, records, bad); err != nil {
		t.Fatalf("Save: %v", err)
	}

	state, ok := Load(dir)
	if !ok {
		t.Fatal("expected Load to succeed after Save")
	}
	if len(state.Dirs) != 1 || state.Dirs[0] != "/data/one" {
		t.Errorf("dirs round trip: got %v", state.Dirs)
	}
	if len(state.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(state.Records))
	}
	got := state.Records[0]
	if got.Key != records[0].Key || got.LastModified != 1000 {
		t.Errorf("record identity lost in round trip: got %+v", got)
	}
	gotRange := got.Columns["x"]
	if gotRange.Min.F64 != 1 || gotRange.Max.F64 != 9 {
		t.Errorf("column range lost in round trip: got [%v, %v]", gotRange.Min.F64, gotRange.Max.F64)
	}
	if len(state.BadFiles) != 1 || state.BadFiles[0].Key != "0/broken.csv" {
		t.Errorf("bad files round trip: got %v", state.BadFiles)
	}
}

func TestSaveLeavesNoTempFilesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, nil, nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != DirTableFileName && e.Name() != FileTableFileName {
			t.Errorf("unexpected leftover file after a successful Save: %s", e.Name())
		}
	}
}

func TestSaveOmitsBadFilesWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, nil, nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, BadFilesFileName)); !os.IsNotExist(err) {
		t.Error("expected no badFiles file to be written when there are no bad files")
	}
}

func TestLoadOfEmptyDirectoryIsNotOk(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Load(dir); ok {
		t.Error("expected Load to report ok=false for a directory with no persisted state, not an error")
	}
}

func TestLoadOfCorruptFileTableIsNotOk(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, []string{"/data"}, nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileTableFileName), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := Load(dir); ok {
		t.Error("expected Load to report ok=false (discard-and-rebuild) for corrupted fileTable JSON")
	}
}
