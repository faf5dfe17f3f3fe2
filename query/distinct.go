package query

import (
	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
)

// uniformRow checks whether every requested column has min=max in rec
// (spec §4.7 step 4): if so, one catalog-only row stands in for the whole
// file. Returns the row as a slice of tagged values in ResultColumns
// order.
func uniformRow(rec *catalog.FileRecord, resultColumns []string, idCol core.ColumnConfig, hasIDCol bool) ([]coltype.Value, bool) {
	row := make([]coltype.Value, len(resultColumns))
	for i, name := range resultColumns {
		if hasIDCol && name == idCol.SourceName {
			r, ok := rec.Columns[idCol.SourceName]
			if !ok {
				return nil, false
			}
			row[i] = r.Min
			continue
		}
		r, ok := rec.Columns[name]
		if !ok || !r.Populated || r.Min.Compare(r.Max) != 0 || r.HasMissing {
			return nil, false
		}
		row[i] = r.Min
	}
	return row, true
}

// DistinctAccumulator batches uniform rows gathered from step 4 and flushes
// them as a single chunk, mirroring EDDTableFromFiles.java's distinctTable
// accumulate-then-flush-on-first-non-uniform-file logic.
type DistinctAccumulator struct {
	columns []string
	rows    [][]coltype.Value
	seen    map[string]bool
}

func NewDistinctAccumulator(columns []string) *DistinctAccumulator {
	return &DistinctAccumulator{columns: columns, seen: make(map[string]bool)}
}

func (d *DistinctAccumulator) Add(row []coltype.Value) {
	key := rowKey(row)
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	d.rows = append(d.rows, row)
}

// SeenKey reports whether key has already been emitted by this
// accumulator, via either Add or MarkSeen, without recording it.
func (d *DistinctAccumulator) SeenKey(key string) bool {
	return d.seen[key]
}

// MarkSeen records key as emitted, so a later row with the same key --
// from either path -- is treated as a duplicate.
func (d *DistinctAccumulator) MarkSeen(key string) {
	d.seen[key] = true
}

// Flush builds a chunk from every accumulated row and resets the pending
// batch, or returns (nil, nil) if nothing was accumulated. The seen set
// itself is not reset: distinctness holds for the whole query, not just
// within one flushed batch.
func (d *DistinctAccumulator) Flush() (*core.Table, error) {
	if len(d.rows) == 0 {
		return nil, nil
	}
	rows := d.rows
	d.rows = nil

	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, len(d.columns))
	cols := make([]arrow.Array, len(d.columns))
	for ci, name := range d.columns {
		kind := rows[0][ci].Kind
		fields[ci] = arrow.Field{Name: name, Type: kind.ArrowDataType(), Nullable: false}
		b := coltype.NewBuilder(mem, kind)
		for _, row := range rows {
			if err := coltype.AppendValue(b, kind, row[ci], true); err != nil {
				return nil, err
			}
		}
		cols[ci] = b.NewArray()
	}
	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, cols, int64(len(rows)))
	return &core.Table{Record: rec}, nil
}

// dedupeChunk filters chunk down to the rows whose columns-projected key
// hasn't already been emitted through acc, covering the per-file scan path
// (query.go step 5) the same way Add covers the uniform-row fast path --
// together a distinct() query's output is deduplicated regardless of which
// path produced a given row, mirroring EDDTableFromFiles.java's
// TableWriterDistinct wrapping every table written through it, not just
// whole-file shortcuts. Returns (chunk, nil) unchanged if every row is new,
// or (nil, nil) if every row was a duplicate.
func dedupeChunk(chunk *core.Table, columns []string, acc *DistinctAccumulator) (*core.Table, error) {
	rec := chunk.Record
	n := int(rec.NumRows())
	if n == 0 {
		return chunk, nil
	}

	colIdx := make([]int, len(columns))
	for i, name := range columns {
		colIdx[i] = chunk.ColumnIndex(name)
	}

	keep := make([]int, 0, n)
	for row := 0; row < n; row++ {
		vals := make([]coltype.Value, len(columns))
		for i, ci := range colIdx {
			if ci < 0 {
				continue
			}
			col := rec.Column(ci)
			k, err := coltype.KindFromArrow(col.DataType())
			if err != nil {
				return nil, err
			}
			v, _ := coltype.ValueAt(k, col, row)
			vals[i] = v
		}
		key := rowKey(vals)
		if acc.SeenKey(key) {
			continue
		}
		acc.MarkSeen(key)
		keep = append(keep, row)
	}

	if len(keep) == n {
		return chunk, nil
	}
	if len(keep) == 0 {
		return nil, nil
	}

	mem := memory.NewGoAllocator()
	fields := rec.Schema().Fields()
	cols := make([]arrow.Array, len(fields))
	for i := range fields {
		cols[i] = takeIndices(mem, rec.Column(i), keep)
	}
	schema := arrow.NewSchema(fields, nil)
	out := array.NewRecord(schema, cols, int64(len(keep)))
	return &core.Table{Record: out}, nil
}

func rowKey(row []coltype.Value) string {
	var b []byte
	for _, v := range row {
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b)
}
