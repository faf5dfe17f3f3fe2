package query

import (
	"context"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/predicate"
)

// emitDistinctIDs implements spec §4.7 step 3: when the sole result column
// is the id column, answer straight from the catalog's per-file id ranges
// without ever invoking the file reader.
func (e *Executor) emitDistinctIDs(ctx context.Context, records []*catalog.FileRecord, preds []predicate.Predicate, sink core.ResultSink) error {
	idCol, _ := e.Config.IDColumn()

	seen := make(map[string]bool)
	var ids []string
	for _, rec := range records {
		if !e.passesAllPredicates(rec, preds) {
			continue
		}
		r, ok := rec.Columns[idCol.SourceName]
		if !ok || !r.Populated {
			continue
		}
		if !seen[r.Min.Str] {
			seen[r.Min.Str] = true
			ids = append(ids, r.Min.Str)
		}
	}

	if len(ids) == 0 {
		return core.ErrNoMatchingData
	}

	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	for _, id := range ids {
		b.Append(id)
	}
	schema := arrow.NewSchema([]arrow.Field{{Name: idCol.SourceName, Type: arrow.BinaryTypes.String}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{b.NewArray()}, int64(len(ids)))

	if err := sink.WriteAllAndFinish(ctx, &core.Table{Record: rec}); err != nil {
		return err
	}
	return nil
}
