// Package core defines the engine's public, domain-agnostic boundary: the
// pluggable FileReader and ResultSink capabilities spec §9 asks for
// ("model the reader as a capability value... passed to the core; the
// core knows nothing about text vs. binary formats"), the Table exchange
// format, the dataset configuration record, and the Dataset type that
// wires catalog + updater + query planner together for one dataset.
package core

import (
	"context"

	"github.com/apache/arrow/go/v18/arrow"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
)

// Table is the standardized exchange format between the core and its
// collaborators: a column-oriented batch plus, optionally, the per-column
// packing attributes a freshly-read file carries (used by the schema
// sentinel and by min/max computation).
type Table struct {
	Record arrow.Record
	Attrs  map[string]catalog.ColumnAttributes
}

// ColumnIndex returns the position of name in t's schema, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t.Record == nil {
		return -1
	}
	for i, f := range t.Record.Schema().Fields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// ReadRequest is everything a FileReader needs to produce one sub-table,
// mirroring the call signature of spec §6's "File reader" interface.
type ReadRequest struct {
	Dir, Name     string
	ColumnNames   []string
	ColumnTypes   []coltype.Kind
	SortedSpacing float64
	MinSorted     float64
	MaxSorted     float64
	HasSortedBounds bool
	GetMetadata   bool
	MustGetAllData bool

	// DerivedExprs maps a requested column name to its expr-lang formula
	// when that column is computed from other source columns rather than
	// read directly (ColumnConfig.DerivedExpr). A FileReader that doesn't
	// support derived columns may ignore this and return the raw source
	// column instead, if one happens to exist; the reference
	// filereader/duckdbreader adapter honors it.
	DerivedExprs map[string]string
}

// FileReader is the pluggable capability that opens one file and returns a
// sub-table for a requested column subset, optionally restricted to a
// sorted-column range. The core never imports a concrete format reader;
// see package filereader for reference adapters.
type FileReader interface {
	Read(ctx context.Context, req ReadRequest) (*Table, error)
}

// DiscoveryResult is one file found by a Discovery scan.
type DiscoveryResult struct {
	Dir          string
	Name         string
	LastModified float64 // wall-clock milliseconds
}

// Discovery lists the files making up a dataset. Reference adapters live
// in package discovery (local filesystem, S3-compatible object storage).
type Discovery interface {
	Scan(ctx context.Context) ([]DiscoveryResult, error)
}

// ResultSink is the streaming output interface the query executor writes
// standardized chunks to (spec §6).
type ResultSink interface {
	WriteSome(ctx context.Context, chunk *Table) error
	WriteAllAndFinish(ctx context.Context, chunk *Table) error
	Finish() error
}

// Notifier delivers operational notifications -- persistence failures and
// post-update-pass bad-file summaries (spec §7) -- to a human. See package
// notify for concrete implementations.
type Notifier interface {
	Notify(subject, body string) error
}
