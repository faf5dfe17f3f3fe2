package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/derive"
)

// ColumnConfig describes one column of the dataset's logical schema,
// combining the source name, logical type, and optional packing
// attributes/role, matching spec §3's Column descriptor and §6's
// dataVariable[] option.
type ColumnConfig struct {
	SourceName string
	Kind       coltype.Kind

	Scale   float64 // NaN if unspecified
	Offset  float64
	Fill    float64
	Missing float64
	Units   string

	// Role flags; a designated subset of columns has distinguished roles
	// (spec §3). At most one column may set each of these.
	IsTime, IsLat, IsLon, IsAlt bool

	// DerivedExpr, if non-empty, is an expr-lang formula computing this
	// column's value from other source columns of the same file instead of
	// reading it directly -- the Go-idiomatic equivalent of the original's
	// "sourceName starts with =" derived-variable convention. Every
	// identifier referenced must name another (non-derived) column of the
	// same dataset.
	DerivedExpr string
}

// DatasetConfig is the declarative, one-record-per-dataset configuration of
// spec §6.
type DatasetConfig struct {
	DatasetID string

	FileDir       string
	FileNameRegex string
	Recursive     bool
	FilesAreLocal bool

	MetadataFrom string // "first" or "last"

	PreExtractRegex      string
	PostExtractRegex     string
	ExtractRegex         string
	ColumnNameForExtract string

	SortedColumnSourceName string
	SortFilesBySourceNames []string

	ColumnNamesRow int
	FirstDataRow   int

	SourceNeedsExpandedFPEQ bool

	ReloadEveryNMinutes int

	NowWindow time.Duration // configurable "now+4h" fudge, §4.7 step 6 / §9

	AddGlobalAttributes map[string]any
	DataVariables       []ColumnConfig
}

const (
	MetadataFromFirst = "first"
	MetadataFromLast  = "last"
)

var datasetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Validate enforces the config-time invariants spec §7 calls fatal at
// construction: an unsafe datasetId, a sortedColumn that isn't declared
// among the data variables or isn't numeric, an extract column declared
// without a regex (or vice versa), and an unparseable sortFilesBySourceNames
// list (must be space separated, not comma separated -- the exact
// complaint EDDTableFromFiles.java raises).
func (c *DatasetConfig) Validate() error {
	if c.DatasetID == "" || !datasetIDPattern.MatchString(c.DatasetID) {
		return fmt.Errorf("%w: datasetId %q is not filename-safe", ErrBadRequest, c.DatasetID)
	}
	for _, name := range c.SortFilesBySourceNames {
		if strings.Contains(name, ",") {
			return fmt.Errorf("%w: sortFilesBySourceNames should be space separated, not comma separated", ErrBadRequest)
		}
	}
	if c.ExtractRegex == "" && c.ColumnNameForExtract != "" {
		return fmt.Errorf("%w: columnNameForExtract=%q but extractRegex=\"\"", ErrBadRequest, c.ColumnNameForExtract)
	}
	if c.ColumnNameForExtract == "" && c.ExtractRegex != "" {
		return fmt.Errorf("%w: extractRegex=%q but columnNameForExtract wasn't specified", ErrBadRequest, c.ExtractRegex)
	}
	if c.SortedColumnSourceName != "" {
		found := false
		for _, dv := range c.DataVariables {
			if dv.SourceName == c.SortedColumnSourceName {
				found = true
				if dv.Kind == coltype.KindString {
					return fmt.Errorf("%w: sortedColumnSourceName must be a time or numeric column", ErrBadRequest)
				}
			}
		}
		if !found {
			return fmt.Errorf("%w: sortedColumnSourceName=%q isn't among the data variables", ErrBadRequest, c.SortedColumnSourceName)
		}
	}
	if c.MetadataFrom != "" && c.MetadataFrom != MetadataFromFirst && c.MetadataFrom != MetadataFromLast {
		return fmt.Errorf("%w: metadataFrom must be %q or %q", ErrBadRequest, MetadataFromFirst, MetadataFromLast)
	}
	for _, dv := range c.DataVariables {
		if dv.Kind == coltype.KindString && dv.IsTime {
			// spec §9 Open Question: reject non-ISO textual time columns at
			// construction rather than silently mis-sort them lexicographically.
			return fmt.Errorf("%w: time column %q must be numeric (epoch-seconds); textual time sources must be converted before ingestion", ErrBadRequest, dv.SourceName)
		}
		if dv.DerivedExpr != "" {
			if dv.Kind == coltype.KindString {
				return fmt.Errorf("%w: derived column %q must be numeric", ErrBadRequest, dv.SourceName)
			}
			if _, err := derive.Compile(dv.DerivedExpr); err != nil {
				return fmt.Errorf("%w: column %q: %v", ErrBadRequest, dv.SourceName, err)
			}
		}
	}
	return nil
}

// NowWindowOrDefault returns the configured now+window fudge (§4.7 step 6),
// defaulting to 4 hours when unset, per the empirical default the original
// hardcodes and spec §9 asks implementations to make configurable.
func (c *DatasetConfig) NowWindowOrDefault() time.Duration {
	if c.NowWindow <= 0 {
		return 4 * time.Hour
	}
	return c.NowWindow
}

// IDColumn returns the ColumnConfig synthesized from filenames, if
// configured, and whether one exists.
func (c *DatasetConfig) IDColumn() (ColumnConfig, bool) {
	if c.ColumnNameForExtract == "" {
		return ColumnConfig{}, false
	}
	return ColumnConfig{SourceName: c.ColumnNameForExtract, Kind: coltype.KindString}, true
}
