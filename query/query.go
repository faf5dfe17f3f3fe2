// Package query implements the query planner/executor of spec §4.7: whole-
// dataset rejection, sorted-range derivation, the id-only and distinct()
// short-circuits, per-file pruning and scanning with retry/quarantine, and
// the "now+4h" in-flight-file fudge.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/ayudhien/erddap/catalog"
	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/predicate"
)

// Query is a parsed query: the columns to return and the conjunctive
// predicates to apply (spec §4.7 Input; spec Non-goals exclude anything
// beyond this).
type Query struct {
	ResultColumns []string
	Predicates    []predicate.Predicate
	Distinct      bool
}

// Executor runs Query values against one dataset's catalog, invoking the
// FileReader capability for surviving files and streaming standardized
// chunks to a ResultSink.
type Executor struct {
	Config   *core.DatasetConfig
	Catalog  *catalog.Catalog
	Dirs     *catalog.DirTable
	BadFiles *catalog.BadFileRegistry
	Reader   core.FileReader

	// Now is overridable for deterministic tests of the "now+4h" fudge
	// (spec §4.7 step 6).
	Now func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Execute runs q, streaming result chunks to sink. It returns
// core.ErrNoMatchingData either immediately, without calling Finish, when
// step 1 rejects the whole dataset, or after calling Finish when the file
// scans wrote no rows at all. Once any rows were written it returns nil.
func (e *Executor) Execute(ctx context.Context, q Query, sink core.ResultSink) error {
	for _, p := range q.Predicates {
		if p.Column == "" {
			return fmt.Errorf("%w: predicate missing column", core.ErrBadRequest)
		}
	}

	records := e.Catalog.Snapshot()
	agg := catalog.Recompute(records)

	// Step 1: whole-dataset rejection.
	for _, p := range q.Predicates {
		r := agg.Columns[p.Column]
		if !predicate.MayMatch(r, p) {
			return core.ErrNoMatchingData
		}
	}

	// Step 2: sorted-range derivation.
	minSorted, maxSorted, hasSortedBounds := deriveSortedRange(q.Predicates, e.Config.SortedColumnSourceName)

	idCol, hasIDCol := e.Config.IDColumn()

	// Step 3: id-only short-circuit.
	if hasIDCol && len(q.ResultColumns) == 1 && q.ResultColumns[0] == idCol.SourceName {
		return e.emitDistinctIDs(ctx, records, q.Predicates, sink)
	}

	rowsWritten := false
	var distinctAcc *DistinctAccumulator
	if q.Distinct {
		distinctAcc = NewDistinctAccumulator(q.ResultColumns)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil // clean cancellation, not an error (spec §5)
		}

		if !e.passesAllPredicates(rec, q.Predicates) {
			continue
		}

		// Step 4: distinct short-circuit.
		if distinctAcc != nil {
			if row, ok := uniformRow(rec, q.ResultColumns, idCol, hasIDCol); ok {
				distinctAcc.Add(row)
				continue
			}
			chunk, err := distinctAcc.Flush()
			if err != nil {
				return err
			}
			if chunk != nil {
				if err := sink.WriteSome(ctx, chunk); err != nil {
					return err
				}
				rowsWritten = true
			}
		}

		// Step 5: per-file scan.
		chunk, err := e.scanFileWithRetry(ctx, rec, q, minSorted, maxSorted, hasSortedBounds, idCol, hasIDCol)
		if err != nil {
			return err
		}
		if distinctAcc != nil && chunk != nil {
			chunk, err = dedupeChunk(chunk, q.ResultColumns, distinctAcc)
			if err != nil {
				return err
			}
		}
		if chunk != nil && chunk.Record.NumRows() > 0 {
			if err := sink.WriteSome(ctx, chunk); err != nil {
				return err
			}
			rowsWritten = true
		}
	}

	if distinctAcc != nil {
		chunk, err := distinctAcc.Flush()
		if err != nil {
			return err
		}
		if chunk != nil {
			if err := sink.WriteSome(ctx, chunk); err != nil {
				return err
			}
			rowsWritten = true
		}
	}

	if err := sink.Finish(); err != nil {
		return err
	}
	if !rowsWritten {
		return core.ErrNoMatchingData
	}
	return nil
}

// passesAllPredicates evaluates every predicate against rec's per-column
// ranges, applying the now+window fudge (step 6) to timestamp columns
// whose max is within the configured window of wall-clock now.
func (e *Executor) passesAllPredicates(rec *catalog.FileRecord, preds []predicate.Predicate) bool {
	for _, p := range preds {
		r, ok := rec.Columns[p.Column]
		if !ok {
			continue // column not present in this file's catalog row; don't exclude on absence
		}
		if r.Kind == coltype.KindTimestamp && r.Populated {
			nowPlus := float64(e.now().Add(e.Config.NowWindowOrDefault()).Unix())
			if r.Max.AsFloat64() >= float64(e.now().Add(-e.Config.NowWindowOrDefault()).Unix()) && r.Max.AsFloat64() < nowPlus {
				r.Max = coltype.Timestamp(nowPlus)
			}
		}
		if !predicate.MayMatch(r, p) {
			return false
		}
	}
	return true
}

// deriveSortedRange folds predicates on the sorted column into a single
// [min,max] interval (spec §4.7 step 2).
func deriveSortedRange(preds []predicate.Predicate, sortedColumn string) (minV, maxV float64, ok bool) {
	if sortedColumn == "" {
		return 0, 0, false
	}
	haveMin, haveMax := false, false
	for _, p := range preds {
		if p.Column != sortedColumn || p.Op == predicate.OpRE {
			continue
		}
		v := p.Value.AsFloat64()
		switch p.Op {
		case predicate.OpLT, predicate.OpLE:
			if !haveMax || v < maxV {
				maxV = v
			}
			haveMax = true
		case predicate.OpGT, predicate.OpGE:
			if !haveMin || v > minV {
				minV = v
			}
			haveMin = true
		case predicate.OpEQ:
			minV, maxV = v, v
			haveMin, haveMax = true, true
		}
	}
	return minV, maxV, haveMin || haveMax
}
