// Package config loads the declarative, per-dataset YAML records of spec
// §6 into core.DatasetConfig, the direct descendant of the teacher's
// config.LoadConfig (yaml.Unmarshal into model.Config), and the top-level
// server Configuration loaded with viper (config/configuration.go).
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
)

// datasetFile mirrors the on-disk YAML shape of one dataset's declarative
// record.
type datasetFile struct {
	DatasetID               string             `yaml:"dataset_id"`
	FileDir                 string             `yaml:"file_dir"`
	FileNameRegex           string             `yaml:"file_name_regex"`
	Recursive               bool               `yaml:"recursive"`
	FilesAreLocal           bool               `yaml:"files_are_local"`
	MetadataFrom            string             `yaml:"metadata_from"`
	PreExtractRegex         string             `yaml:"pre_extract_regex"`
	PostExtractRegex        string             `yaml:"post_extract_regex"`
	ExtractRegex            string             `yaml:"extract_regex"`
	ColumnNameForExtract    string             `yaml:"column_name_for_extract"`
	SortedColumnSourceName  string             `yaml:"sorted_column_source_name"`
	SortFilesBySourceNames  []string           `yaml:"sort_files_by_source_names"`
	ColumnNamesRow          int                `yaml:"column_names_row"`
	FirstDataRow            int                `yaml:"first_data_row"`
	SourceNeedsExpandedFPEQ bool               `yaml:"source_needs_expanded_fpeq"`
	ReloadEveryNMinutes     int                `yaml:"reload_every_n_minutes"`
	NowWindowMinutes        int                `yaml:"now_window_minutes"`
	AddGlobalAttributes     map[string]any     `yaml:"add_global_attributes"`
	DataVariables           []dataVariableFile `yaml:"data_variables"`
}

// dataVariableFile's packing-attribute fields are pointers so an omitted
// YAML key loads as nil, distinguishable from an explicit 0 -- a bare
// float64 here would make "missing: 0" and "no missing key at all"
// indistinguishable, silently turning every legitimate zero-valued reading
// into the missing sentinel (core.ColumnConfig.Missing's doc: "NaN if
// unspecified").
type dataVariableFile struct {
	SourceName string   `yaml:"source_name"`
	Kind       string   `yaml:"kind"`
	Scale      *float64 `yaml:"scale"`
	Offset     *float64 `yaml:"offset"`
	Fill       *float64 `yaml:"fill"`
	Missing    *float64 `yaml:"missing"`
	Units      string   `yaml:"units"`
	IsTime     bool     `yaml:"is_time"`
	IsLat      bool     `yaml:"is_lat"`
	IsLon      bool     `yaml:"is_lon"`
	IsAlt      bool     `yaml:"is_alt"`
}

// floatOrNaN dereferences p, or reports "unspecified" as NaN if p is nil.
func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// LoadDatasetConfig reads and validates one dataset's YAML record.
func LoadDatasetConfig(filename string) (*core.DatasetConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read dataset config %s: %w", filename, err)
	}

	var raw datasetFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dataset config %s: %w", filename, err)
	}

	cfg, err := fromFile(raw)
	if err != nil {
		return nil, fmt.Errorf("dataset config %s: %w", filename, err)
	}
	return cfg, nil
}

func fromFile(raw datasetFile) (*core.DatasetConfig, error) {
	vars := make([]core.ColumnConfig, 0, len(raw.DataVariables))
	for _, v := range raw.DataVariables {
		kind, err := kindFromString(v.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", v.SourceName, err)
		}
		vars = append(vars, core.ColumnConfig{
			SourceName: v.SourceName,
			Kind:       kind,
			Scale:      floatOrNaN(v.Scale),
			Offset:     floatOrNaN(v.Offset),
			Fill:       floatOrNaN(v.Fill),
			Missing:    floatOrNaN(v.Missing),
			Units:      v.Units,
			IsTime:     v.IsTime,
			IsLat:      v.IsLat,
			IsLon:      v.IsLon,
			IsAlt:      v.IsAlt,
		})
	}

	cfg := &core.DatasetConfig{
		DatasetID:               raw.DatasetID,
		FileDir:                 raw.FileDir,
		FileNameRegex:           raw.FileNameRegex,
		Recursive:               raw.Recursive,
		FilesAreLocal:           raw.FilesAreLocal,
		MetadataFrom:            raw.MetadataFrom,
		PreExtractRegex:         raw.PreExtractRegex,
		PostExtractRegex:        raw.PostExtractRegex,
		ExtractRegex:            raw.ExtractRegex,
		ColumnNameForExtract:    raw.ColumnNameForExtract,
		SortedColumnSourceName:  raw.SortedColumnSourceName,
		SortFilesBySourceNames:  raw.SortFilesBySourceNames,
		ColumnNamesRow:          raw.ColumnNamesRow,
		FirstDataRow:            raw.FirstDataRow,
		SourceNeedsExpandedFPEQ: raw.SourceNeedsExpandedFPEQ,
		ReloadEveryNMinutes:     raw.ReloadEveryNMinutes,
		AddGlobalAttributes:     raw.AddGlobalAttributes,
		DataVariables:           vars,
	}
	if raw.NowWindowMinutes > 0 {
		cfg.NowWindow = time.Duration(raw.NowWindowMinutes) * time.Minute
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func kindFromString(s string) (coltype.Kind, error) {
	switch s {
	case "int64":
		return coltype.KindInt64, nil
	case "uint64":
		return coltype.KindUint64, nil
	case "float64", "":
		return coltype.KindFloat64, nil
	case "string":
		return coltype.KindString, nil
	case "timestamp":
		return coltype.KindTimestamp, nil
	default:
		return 0, fmt.Errorf("unknown column kind %q", s)
	}
}
