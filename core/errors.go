package core

import "errors"

// Errors surfaced to the caller across the query boundary (spec §6, §7).
// No stack traces cross this boundary; these are flat sentinels checked
// with errors.Is, matching the teacher's own error-identity idiom
// (handler/api_handler.go: errors.Is(err, EmptyQuery)).
var (
	// ErrNoMatchingData signals a query whose predicates are provably
	// unsatisfiable against the aggregate table or every surviving file
	// (spec §4.7 step 1, §7 "Query-time no match").
	ErrNoMatchingData = errors.New("erddap: no matching data")

	// ErrRetryLater signals a transient I/O failure during query execution
	// that has already been retried once (spec §4.7 step 5, §7).
	ErrRetryLater = errors.New("erddap: retry later")

	// ErrBadRequest signals a malformed query (unknown column, unsupported
	// operator) detected before any file is touched.
	ErrBadRequest = errors.New("erddap: bad request")
)
