// Package httpapi exposes a Dataset's query executor over HTTP, grounded
// on handler/api_handler.go's Handler type and root/root.go's
// QueryOperation entry point, and route/route.go's mux.Router wiring.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
	"github.com/ayudhien/erddap/predicate"
	"github.com/ayudhien/erddap/query"
	"github.com/ayudhien/erddap/sink/memsink"
)

// EmptyQuery mirrors the teacher's handler/api_handler.go EmptyQuery
// sentinel, returned when the request has no ?columns= query parameter
// naming result columns to select (the request body is not read).
var EmptyQuery = errors.New("no result columns requested")

// Handler answers queries against one dataset, matching the teacher's
// Handler{FlagInformation} shape but keyed to a *core.Dataset instead of
// CommandLineFlags.
type Handler struct {
	Dataset *core.Dataset
}

// Handlers is the single HTTP entry point, named to match the teacher's
// Handler.Handlers method exactly.
func (h *Handler) Handlers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	q, err := h.parseQuery(r)
	if err != nil {
		if errors.Is(err, EmptyQuery) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"no result columns requested"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":` + jsonQuote(err.Error()) + `}`))
		return
	}

	sink := memsink.New()
	err = h.Dataset.Query(r.Context(), q, sink)
	if err != nil {
		if errors.Is(err, core.ErrNoMatchingData) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no matching data"}`))
			return
		}
		if errors.Is(err, core.ErrRetryLater) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"retry later"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":` + jsonQuote(err.Error()) + `}`))
		return
	}

	if err := writeJSONChunks(w, sink.Chunks()); err != nil {
		fmt.Printf("write response error: %v\n", err)
	}
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// parseQuery reads ?columns=a,b,c and a handful of ?col=<op><value>
// predicate parameters, the HTTP-boundary equivalent of spec §4's
// predicate string.
func (h *Handler) parseQuery(r *http.Request) (query.Query, error) {
	columnsParam := r.URL.Query().Get("columns")
	if columnsParam == "" {
		return query.Query{}, EmptyQuery
	}
	columns := strings.Split(columnsParam, ",")
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}

	preds, err := h.parsePredicates(r)
	if err != nil {
		return query.Query{}, err
	}

	return query.Query{
		ResultColumns: columns,
		Predicates:    preds,
		Distinct:      r.URL.Query().Get("distinct") == "true",
	}, nil
}

func (h *Handler) parsePredicates(r *http.Request) ([]predicate.Predicate, error) {
	var preds []predicate.Predicate
	for key, vals := range r.URL.Query() {
		if key == "columns" || key == "distinct" || len(vals) == 0 {
			continue
		}
		p, err := h.parsePredicateParam(key, vals[0])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// parsePredicateParam turns "temperature" / "=12.5" into a compiled
// predicate. The op prefix matches spec §4.1's operator set.
func (h *Handler) parsePredicateParam(column, raw string) (predicate.Predicate, error) {
	for _, op := range []predicate.Op{predicate.OpGE, predicate.OpLE, predicate.OpNE, predicate.OpRE, predicate.OpEQ, predicate.OpLT, predicate.OpGT} {
		if strings.HasPrefix(raw, string(op)) {
			valueStr := strings.TrimPrefix(raw, string(op))
			kind := h.kindOf(column)
			var missing *coltype.Value
			if m, ok := h.missingSentinel(column); ok {
				missing = &m
			}
			if op == predicate.OpRE {
				return predicate.Compile(column, op, coltype.String(valueStr), missing)
			}
			v, err := coltype.ParseValue(kind, valueStr)
			if err != nil {
				return predicate.Predicate{}, fmt.Errorf("%w: column %s: %v", core.ErrBadRequest, column, err)
			}
			p, err := predicate.Compile(column, op, v, missing)
			if err != nil {
				return predicate.Predicate{}, err
			}
			if op == predicate.OpEQ && kind == coltype.KindFloat64 && h.Dataset.Config.SourceNeedsExpandedFPEQ {
				p.ExpandedFPEQ = true
			}
			return p, nil
		}
	}
	return predicate.Predicate{}, fmt.Errorf("%w: unparseable predicate %q for column %q", core.ErrBadRequest, raw, column)
}

func (h *Handler) kindOf(column string) coltype.Kind {
	for _, dv := range h.Dataset.Config.DataVariables {
		if dv.SourceName == column {
			return dv.Kind
		}
	}
	return coltype.KindFloat64
}

func (h *Handler) missingSentinel(column string) (coltype.Value, bool) {
	for _, dv := range h.Dataset.Config.DataVariables {
		if dv.SourceName == column && !math.IsNaN(dv.Missing) {
			return coltype.Float64(dv.Missing), true
		}
	}
	return coltype.Value{}, false
}
