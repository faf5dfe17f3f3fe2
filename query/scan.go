package query

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
)

// retryDelay is the short pause before the single retry spec §4.7 step 5
// and §7 call for on transient I/O failure during a query-time scan.
const retryDelay = 200 * time.Millisecond

// scanFileWithRetry implements spec §4.7 step 5: read the file for the
// requested (non-id) columns, plus any other non-id columns the predicates
// name, within the sorted-range bounds, retry once on
// failure, quarantine (local files only) and surface core.ErrRetryLater on
// a second failure, then append the id column if requested and re-apply
// every predicate exactly to the scanned rows.
func (e *Executor) scanFileWithRetry(
	ctx context.Context,
	rec *catalog.FileRecord,
	q Query,
	minSorted, maxSorted float64,
	hasSortedBounds bool,
	idCol core.ColumnConfig,
	hasIDCol bool,
) (*core.Table, error) {
	wantID := false
	var dataCols []string
	for _, c := range q.ResultColumns {
		if hasIDCol && c == idCol.SourceName {
			wantID = true
			continue
		}
		dataCols = append(dataCols, c)
	}

	// Predicate columns outside the result are read too, so the exact row
	// filter can see them; projectAndRename keeps only dataCols.
	readCols := append([]string(nil), dataCols...)
	var kinds []coltype.Kind
	kindByName := make(map[string]coltype.Kind, len(dataCols))
	for _, c := range dataCols {
		k := e.kindOf(c)
		kinds = append(kinds, k)
		kindByName[c] = k
	}
	for _, p := range q.Predicates {
		if _, ok := kindByName[p.Column]; !ok && (!hasIDCol || p.Column != idCol.SourceName) {
			k := e.kindOf(p.Column)
			kindByName[p.Column] = k
			readCols = append(readCols, p.Column)
			kinds = append(kinds, k)
		}
	}

	dir := e.Dirs.Path(int(rec.Key.DirIndex))
	req := core.ReadRequest{
		Dir:             dir,
		Name:            rec.Key.Name,
		ColumnNames:     readCols,
		ColumnTypes:     kinds,
		SortedSpacing:   rec.SortedSpacing,
		MinSorted:       minSorted,
		MaxSorted:       maxSorted,
		HasSortedBounds: hasSortedBounds,
		GetMetadata:     false,
		MustGetAllData:  true,
		DerivedExprs:    e.derivedExprsFor(readCols),
	}

	table, err := e.Reader.Read(ctx, req)
	if err != nil {
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, nil
		}
		table, err = e.Reader.Read(ctx, req)
		if err != nil {
			if e.Config.FilesAreLocal {
				e.BadFiles.Add(rec.Key.DirIndex, rec.Key.Name, rec.LastModified, "query-time read failure: "+err.Error())
			}
			return nil, core.ErrRetryLater
		}
	}

	colIndex := func(name string) int { return table.ColumnIndex(name) }
	idx := rowIndicesMatching(table.Record, colIndex, kindByName, q.Predicates)
	if len(idx) == 0 {
		return nil, nil
	}

	return e.projectAndRename(table, dataCols, idx, wantID, idCol, rec)
}

func (e *Executor) kindOf(column string) coltype.Kind {
	for _, dv := range e.Config.DataVariables {
		if dv.SourceName == column {
			return dv.Kind
		}
	}
	return coltype.KindFloat64
}

// derivedExprsFor returns the DerivedExpr formula for each of cols that has
// one configured, or nil if none do.
func (e *Executor) derivedExprsFor(cols []string) map[string]string {
	var out map[string]string
	for _, c := range cols {
		for _, dv := range e.Config.DataVariables {
			if dv.SourceName == c && dv.DerivedExpr != "" {
				if out == nil {
					out = make(map[string]string)
				}
				out[c] = dv.DerivedExpr
				break
			}
		}
	}
	return out
}

// projectAndRename builds the final chunk: the requested data columns (in
// requested order) restricted to idx, plus the id column if requested,
// matching spec §4.7 step 5's "project, rename" phase of the
// standardization pipeline. Destination naming/renaming beyond source name
// is left to a higher layer; this keeps the core's output keyed by source
// name, which the reference sinks treat as already-final.
func (e *Executor) projectAndRename(table *core.Table, dataCols []string, idx []int, wantID bool, idCol core.ColumnConfig, rec *catalog.FileRecord) (*core.Table, error) {
	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, 0, len(dataCols)+1)
	cols := make([]arrow.Array, 0, len(dataCols)+1)

	for _, name := range dataCols {
		ci := table.ColumnIndex(name)
		if ci < 0 {
			continue
		}
		src := table.Record.Column(ci)
		fields = append(fields, arrow.Field{Name: name, Type: src.DataType(), Nullable: true})
		cols = append(cols, takeIndices(mem, src, idx))
	}

	if wantID {
		b := array.NewStringBuilder(mem)
		id := rec.Columns[idCol.SourceName].Min.Str
		for range idx {
			b.Append(id)
		}
		fields = append(fields, arrow.Field{Name: idCol.SourceName, Type: arrow.BinaryTypes.String, Nullable: false})
		cols = append(cols, b.NewArray())
	}

	schema := arrow.NewSchema(fields, nil)
	out := array.NewRecord(schema, cols, int64(len(idx)))
	return &core.Table{Record: out}, nil
}

// takeIndices builds a new arrow array containing only the given row
// indices of src, preserving src's concrete type.
func takeIndices(mem memory.Allocator, src arrow.Array, idx []int) arrow.Array {
	switch s := src.(type) {
	case *array.Int64:
		b := array.NewInt64Builder(mem)
		for _, i := range idx {
			if s.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(s.Value(i))
			}
		}
		return b.NewArray()
	case *array.Uint64:
		b := array.NewUint64Builder(mem)
		for _, i := range idx {
			if s.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(s.Value(i))
			}
		}
		return b.NewArray()
	case *array.Float64:
		b := array.NewFloat64Builder(mem)
		for _, i := range idx {
			if s.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(s.Value(i))
			}
		}
		return b.NewArray()
	case *array.String:
		b := array.NewStringBuilder(mem)
		for _, i := range idx {
			if s.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(s.Value(i))
			}
		}
		return b.NewArray()
	default:
		b := array.NewStringBuilder(mem)
		for range idx {
			b.AppendNull()
		}
		return b.NewArray()
	}
}
