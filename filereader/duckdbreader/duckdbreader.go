// Package duckdbreader implements core.FileReader over csv and parquet
// files using DuckDB, grounded on service/db/db.go's sql.Open("duckdb", ...)
// pattern and merge/service/merge_service_s3.go's read_parquet_mergetree-
// style SQL construction.
package duckdbreader

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2" // load duckdb driver

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/derive"
)

// Reader opens one DuckDB connection and answers core.FileReader.Read by
// issuing a SELECT against read_csv_auto/read_parquet scoped to the
// requested columns. It always reads every row of the file: sorted-column
// bounds in the request are not turned into a WHERE clause.
type Reader struct {
	db *sql.DB
}

func Open() (*Reader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Read(ctx context.Context, req core.ReadRequest) (*core.Table, error) {
	path := filepath.Join(req.Dir, req.Name)
	source, err := tableFunctionFor(path)
	if err != nil {
		return nil, err
	}

	// A derived column (req.DerivedExprs) isn't present in the source file,
	// and its formula may reference source columns the caller never asked
	// for directly, so select every column and compute the derived ones
	// after scanning instead of restricting the SELECT list.
	selectList := "*"
	if len(req.DerivedExprs) == 0 {
		cols := make([]string, len(req.ColumnNames))
		for i, c := range req.ColumnNames {
			cols[i] = quoteIdent(c)
		}
		if len(cols) > 0 {
			selectList = strings.Join(cols, ", ")
		}
	}

	// sortedSpacing >= 0 (strictly sorted or uniformly spaced, spec §4.5)
	// would license a server-side range filter on the sorted column; this
	// reference reader reads the full file and lets the executor's exact
	// row filter (query/rowfilter.go) do the pruning.
	query := fmt.Sprintf("SELECT %s FROM %s", selectList, source)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckdb read %s: %w", path, err)
	}
	defer rows.Close()

	return rowsToTable(rows, req.ColumnNames, req.ColumnTypes, req.DerivedExprs)
}

func tableFunctionFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return fmt.Sprintf("read_csv_auto('%s')", escapeSQL(path)), nil
	case ".parquet":
		return fmt.Sprintf("read_parquet('%s')", escapeSQL(path)), nil
	default:
		return "", fmt.Errorf("duckdbreader: unsupported file extension %q", filepath.Ext(path))
	}
}

func escapeSQL(s string) string { return strings.ReplaceAll(s, "'", "''") }

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// rowsToTable drains rows into an arrow.Record typed per wantTypes,
// reusing coltype's builder/append helpers so the result matches exactly
// what the core engine's own arrow construction produces. wantNames gives
// the output column order; a name present in derivedExprs is computed from
// the scanned source row instead of read directly off it.
func rowsToTable(rows *sql.Rows, wantNames []string, wantTypes []coltype.Kind, derivedExprs map[string]string) (*core.Table, error) {
	srcCols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	programs := make(map[string]*derive.Program, len(derivedExprs))
	for name, source := range derivedExprs {
		prog, err := derive.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("derived column %s: %w", name, err)
		}
		programs[name] = prog
	}

	outNames := wantNames
	if len(outNames) == 0 {
		outNames = srcCols
	}
	kindByName := make(map[string]coltype.Kind, len(outNames))
	for i, n := range outNames {
		if i < len(wantTypes) {
			kindByName[n] = wantTypes[i]
		}
	}

	mem := memory.NewGoAllocator()
	builders := make([]array.Builder, len(outNames))
	kinds := make([]coltype.Kind, len(outNames))
	for i, name := range outNames {
		k, ok := kindByName[name]
		if !ok {
			k = coltype.KindString
		}
		kinds[i] = k
		builders[i] = coltype.NewBuilder(mem, k)
	}

	scanDest := make([]any, len(srcCols))
	scanPtrs := make([]any, len(srcCols))
	for i := range scanDest {
		scanPtrs[i] = &scanDest[i]
	}

	srcIndex := make(map[string]int, len(srcCols))
	for i, name := range srcCols {
		srcIndex[name] = i
	}

	for rows.Next() {
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		var env map[string]any
		if len(programs) > 0 {
			env = make(map[string]any, len(srcCols))
			for name, i := range srcIndex {
				if v, err := toFloat64(scanDest[i]); err == nil {
					env[name] = v
				}
			}
		}

		for i, name := range outNames {
			if prog, ok := programs[name]; ok {
				v, err := prog.Eval(env)
				if err != nil {
					return nil, fmt.Errorf("derived column %s: %w", name, err)
				}
				if err := appendRaw(builders[i], kinds[i], v); err != nil {
					return nil, fmt.Errorf("column %s: %w", name, err)
				}
				continue
			}
			si, ok := srcIndex[name]
			if !ok {
				builders[i].AppendNull()
				continue
			}
			if err := appendRaw(builders[i], kinds[i], scanDest[si]); err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(outNames))
	arrays := make([]arrow.Array, len(outNames))
	for i, name := range outNames {
		fields[i] = arrow.Field{Name: name, Type: kinds[i].ArrowDataType(), Nullable: true}
		arrays[i] = builders[i].NewArray()
	}
	schema := arrow.NewSchema(fields, nil)
	var n int64
	if len(arrays) > 0 {
		n = int64(arrays[0].Len())
	}
	rec := array.NewRecord(schema, arrays, n)

	// csv/parquet carry no packing-attribute metadata; report that
	// explicitly rather than leaving Table.Attrs nil, so a zero-valued
	// lookup never reads as "this file's missing sentinel is 0.0".
	attrs := make(map[string]catalog.ColumnAttributes, len(outNames))
	for _, name := range outNames {
		attrs[name] = catalog.UnspecifiedAttributes()
	}
	return &core.Table{Record: rec, Attrs: attrs}, nil
}

func appendRaw(b array.Builder, k coltype.Kind, raw any) error {
	if raw == nil {
		b.AppendNull()
		return nil
	}
	switch k {
	case coltype.KindInt64:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		return coltype.AppendValue(b, k, coltype.Int64(v), true)
	case coltype.KindUint64:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		return coltype.AppendValue(b, k, coltype.Uint64(uint64(v)), true)
	case coltype.KindFloat64, coltype.KindTimestamp:
		v, err := toFloat64(raw)
		if err != nil {
			return err
		}
		if k == coltype.KindTimestamp {
			return coltype.AppendValue(b, k, coltype.Timestamp(v), true)
		}
		return coltype.AppendValue(b, k, coltype.Float64(v), true)
	default:
		return coltype.AppendValue(b, k, coltype.String(toStr(raw)), true)
	}
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return 0, fmt.Errorf("unexpected byte value for integer column: %q", v)
	default:
		return 0, fmt.Errorf("unexpected type %T for integer column", raw)
	}
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unexpected type %T for numeric column", raw)
	}
}

func toStr(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
