// Package persist implements atomic on-disk persistence of the catalog,
// directory table and bad-file registry, following spec §4.4's
// "Persistence" rules and §6's "Persisted state layout": three
// self-describing flat columnar containers (directoryTable, fileTable,
// badFiles), each written to a temp path and renamed into place, in the
// order bad-files -> directory table -> catalog, so a crash never leaves
// the catalog referencing an undefined directory. Grounded on the
// teacher's merge/index/json_index.go flush/rename discipline, using the
// same github.com/json-iterator/go streaming encoder and
// github.com/google/uuid for collision-free temp names instead of the
// teacher's math/rand suffix.
package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
)

const (
	DirTableFileName  = "directoryTable"
	FileTableFileName = "fileTable"
	BadFilesFileName  = "badFiles"
)

// fileRecordDTO is the on-disk shape of one catalog.FileRecord: fixed
// leading columns (dirIndex, fileName, lastModified, sortedSpacing) then,
// per data variable, three columns <name>_min/<name>_max/<name>_hasNaN
// (spec §6), expressed here as a single embedded map rather than parallel
// arrays since JSON has no native columnar layout.
type fileRecordDTO struct {
	DirIndex      int16                   `json:"dirIndex"`
	FileName      string                  `json:"fileName"`
	LastModified  float64                 `json:"lastModified"`
	SortedSpacing float64                 `json:"sortedSpacing"`
	Columns       map[string]rangeDTO     `json:"columns"`
}

type rangeDTO struct {
	Kind       int8    `json:"kind"`
	MinStr     string  `json:"minStr,omitempty"`
	MaxStr     string  `json:"maxStr,omitempty"`
	MinNum     float64 `json:"minNum,omitempty"`
	MaxNum     float64 `json:"maxNum,omitempty"`
	HasMissing bool    `json:"hasNaN"`
	Populated  bool    `json:"populated"`
}

func toRangeDTO(r coltype.Range) rangeDTO {
	d := rangeDTO{Kind: int8(r.Kind), HasMissing: r.HasMissing, Populated: r.Populated}
	if r.Kind == coltype.KindString {
		d.MinStr, d.MaxStr = r.Min.Str, r.Max.Str
	} else {
		d.MinNum, d.MaxNum = r.Min.AsFloat64(), r.Max.AsFloat64()
	}
	return d
}

func fromRangeDTO(d rangeDTO) coltype.Range {
	k := coltype.Kind(d.Kind)
	r := coltype.Range{Kind: k, HasMissing: d.HasMissing, Populated: d.Populated}
	if k == coltype.KindString {
		r.Min, r.Max = coltype.String(d.MinStr), coltype.String(d.MaxStr)
	} else {
		switch k {
		case coltype.KindInt64:
			r.Min, r.Max = coltype.Int64(int64(d.MinNum)), coltype.Int64(int64(d.MaxNum))
		case coltype.KindUint64:
			r.Min, r.Max = coltype.Uint64(uint64(d.MinNum)), coltype.Uint64(uint64(d.MaxNum))
		default:
			r.Min, r.Max = coltype.Float64(d.MinNum), coltype.Float64(d.MaxNum)
		}
	}
	return r
}

func recordToDTO(r *catalog.FileRecord) fileRecordDTO {
	dto := fileRecordDTO{
		DirIndex:      r.Key.DirIndex,
		FileName:      r.Key.Name,
		LastModified:  r.LastModified,
		SortedSpacing: r.SortedSpacing,
		Columns:       make(map[string]rangeDTO, len(r.Columns)),
	}
	for col, rng := range r.Columns {
		dto.Columns[col] = toRangeDTO(rng)
	}
	return dto
}

func dtoToRecord(dto fileRecordDTO) *catalog.FileRecord {
	rec := &catalog.FileRecord{
		Key:           catalog.FileKey{DirIndex: dto.DirIndex, Name: dto.FileName},
		LastModified:  dto.LastModified,
		SortedSpacing: dto.SortedSpacing,
		Columns:       make(map[string]coltype.Range, len(dto.Columns)),
	}
	for col, rd := range dto.Columns {
		rec.Columns[col] = fromRangeDTO(rd)
	}
	return rec
}

// State is the full persisted state of one dataset.
type State struct {
	Dirs    []string
	Records []*catalog.FileRecord
	// BadFiles carries raw keys ("dirIndex/name") since the loader doesn't
	// reconstruct a catalog.BadFileRegistry directly -- callers replay
	// these into one via BadFileRegistry.Add.
	BadFiles []BadFileOut
}

type BadFileOut struct {
	Key          string  `json:"key"`
	LastModified float64 `json:"lastModified"`
	Reason       string  `json:"reason"`
}

// Save writes dirs, records and badFiles to dataDir, each via temp-file +
// rename, in the order badFiles -> directoryTable -> fileTable (spec §4.4:
// "Rename order: bad-file registry first ... directory index second,
// catalog last"). On a write failure the temporaries are removed and the
// previous on-disk files are left untouched; on a rename failure the
// remaining temporaries are removed and files already renamed stay
// replaced.
func Save(dataDir string, dirs []string, records []*catalog.FileRecord, badFiles []BadFileOut) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("persist: mkdir %s: %w", dataDir, err)
	}

	suffix := uuid.NewString()
	badTmp := filepath.Join(dataDir, BadFilesFileName+"."+suffix)
	dirTmp := filepath.Join(dataDir, DirTableFileName+"."+suffix)
	fileTmp := filepath.Join(dataDir, FileTableFileName+"."+suffix)

	cleanup := func() {
		os.Remove(badTmp)
		os.Remove(dirTmp)
		os.Remove(fileTmp)
	}

	if len(badFiles) > 0 {
		if err := writeJSON(badTmp, badFiles); err != nil {
			cleanup()
			return fmt.Errorf("persist: writing badFiles: %w", err)
		}
	}
	if err := writeJSON(dirTmp, dirs); err != nil {
		cleanup()
		return fmt.Errorf("persist: writing directoryTable: %w", err)
	}
	dtos := make([]fileRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = recordToDTO(r)
	}
	if err := writeJSON(fileTmp, dtos); err != nil {
		cleanup()
		return fmt.Errorf("persist: writing fileTable: %w", err)
	}

	badPath := filepath.Join(dataDir, BadFilesFileName)
	dirPath := filepath.Join(dataDir, DirTableFileName)
	filePath := filepath.Join(dataDir, FileTableFileName)

	if len(badFiles) == 0 {
		os.Remove(badPath)
	} else if err := os.Rename(badTmp, badPath); err != nil {
		cleanup()
		return fmt.Errorf("persist: rename badFiles: %w", err)
	}
	if err := os.Rename(dirTmp, dirPath); err != nil {
		cleanup()
		return fmt.Errorf("persist: rename directoryTable: %w", err)
	}
	if err := os.Rename(fileTmp, filePath); err != nil {
		cleanup()
		return fmt.Errorf("persist: rename fileTable: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	stream := jsoniter.NewStream(jsoniter.ConfigDefault, f, 4096)
	stream.WriteVal(v)
	if stream.Error != nil {
		return stream.Error
	}
	return stream.Flush()
}

// Load reads a previously-saved State from dataDir. Corruption (missing
// file, malformed JSON) is reported by returning ok=false rather than an
// error, per spec §6's "Corruption ... triggers discard-and-rebuild" --
// callers should treat ok=false as "start from an empty catalog", not as
// a fatal error.
func Load(dataDir string) (state State, ok bool) {
	dirs, err := readJSON[[]string](filepath.Join(dataDir, DirTableFileName))
	if err != nil {
		return State{}, false
	}
	dtos, err := readJSON[[]fileRecordDTO](filepath.Join(dataDir, FileTableFileName))
	if err != nil {
		return State{}, false
	}
	records := make([]*catalog.FileRecord, len(dtos))
	for i, dto := range dtos {
		records[i] = dtoToRecord(dto)
	}

	badOut, _ := readJSON[[]BadFileOut](filepath.Join(dataDir, BadFilesFileName))
	// a missing badFiles file is normal (no quarantined files); anything
	// else (malformed JSON) is corruption, but we don't fail the whole
	// load over it -- the catalog and directory table are the load-bearing
	// state, matching the original's badFileMap treatment as auxiliary.

	return State{Dirs: dirs, Records: records, BadFiles: badOut}, true
}

func readJSON[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := jsoniter.ConfigDefault.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
