package catalog

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// ColumnAttributes are the packing attributes captured for one column:
// the additive offset and multiplicative scale, the fill and missing
// sentinels, and the units string (spec §2 Schema sentinel, §9 Attribute
// bags). NaN in Offset/Scale/Fill/Missing means "unspecified".
type ColumnAttributes struct {
	Scale   float64
	Offset  float64
	Fill    float64
	Missing float64
	Units   string
}

// UnspecifiedAttributes returns the all-NaN ColumnAttributes value meaning
// "this file carries no packing-attribute metadata for this column" -- the
// default a FileReader should populate Table.Attrs with for a source format
// (csv, parquet, ndjson) that has no such metadata, so an absent attribute
// is never confused with a legitimate zero (spec §4.3/§9).
func UnspecifiedAttributes() ColumnAttributes {
	return ColumnAttributes{Scale: math.NaN(), Offset: math.NaN(), Fill: math.NaN(), Missing: math.NaN()}
}

// SchemaSentinel captures the expected packing attributes from the first
// successfully-scanned file in an update session and checks every later
// file against them (spec §4.3). A missing attribute on a later file
// (NaN/"") is never a mismatch -- "unspecified, conform" -- matching
// EDDTableFromFiles.java's treatment of attributes a given file lacks.
type SchemaSentinel struct {
	mu       sync.Mutex
	expected map[string]ColumnAttributes
	overrides *AttributeOverrides
}

func NewSchemaSentinel(overrides *AttributeOverrides) *SchemaSentinel {
	return &SchemaSentinel{
		expected:  make(map[string]ColumnAttributes),
		overrides: overrides,
	}
}

// Reset clears captured expectations, called at the start of each update
// session so a long-running server doesn't compare today's files against
// a schema captured weeks ago under different source data.
func (s *SchemaSentinel) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected = make(map[string]ColumnAttributes)
}

// Check captures attrs as the expectation on first sight of column, or
// compares attrs against the captured expectation on subsequent files.
// Returns a descriptive error (suitable for quarantining the file) on
// mismatch.
func (s *SchemaSentinel) Check(column string, attrs ColumnAttributes) error {
	if s.overrides != nil {
		attrs = s.overrides.Apply(column, attrs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, seen := s.expected[column]
	if !seen {
		s.expected[column] = attrs
		return nil
	}

	if err := checkFloatEq("scale_factor", column, exp.Scale, attrs.Scale); err != nil {
		return err
	}
	if err := checkFloatEq("add_offset", column, exp.Offset, attrs.Offset); err != nil {
		return err
	}
	if err := checkFloatEq("_FillValue", column, exp.Fill, attrs.Fill); err != nil {
		return err
	}
	if err := checkFloatEq("missing_value", column, exp.Missing, attrs.Missing); err != nil {
		return err
	}
	if attrs.Units != "" && exp.Units != "" && !UnitsEquivalent(attrs.Units, exp.Units) {
		return fmt.Errorf("sourceAttribute value observed!=expected for column %s: units %q != %q", column, attrs.Units, exp.Units)
	}
	if exp.Units == "" {
		exp.Units = attrs.Units
		s.expected[column] = exp
	}
	return nil
}

// checkFloatEq treats NaN on either side as "unspecified, conform" per
// spec §9's preserved tolerance note.
func checkFloatEq(attrName, column string, expected, observed float64) error {
	if math.IsNaN(expected) || math.IsNaN(observed) {
		return nil
	}
	if expected != observed {
		return fmt.Errorf("sourceAttribute value observed!=expected for column %s: %s %v != %v", column, attrName, observed, expected)
	}
	return nil
}

// unitSynonymGroups groups unit spellings ERDDAP's udunits-equivalence treats as
// identical. Not exhaustive; covers the common cases exercised by the
// tests and leaves anything else to exact-match.
var unitSynonymGroups = [][]string{
	{"degree_c", "degc", "celsius", "deg_c"},
	{"degree_f", "degf", "fahrenheit"},
	{"m", "meter", "metre", "meters", "metres"},
	{"m/s", "meters/second", "meters per second", "m s-1", "m.s-1"},
	{"degrees_east", "degree_east", "degreee", "deg_e"},
	{"degrees_north", "degree_north", "deg_n"},
	{"1", "count", "none", ""},
}

// UnitsEquivalent reports whether a and b name the same physical unit,
// up to case and known synonyms, matching EDUnits.udunitsAreEquivalent's
// role in the original (units are compared via equivalence, not byte
// equality).
func UnitsEquivalent(a, b string) bool {
	na, nb := normalizeUnit(a), normalizeUnit(b)
	if na == nb {
		return true
	}
	for _, group := range unitSynonymGroups {
		inA, inB := false, false
		for _, u := range group {
			if u == na {
				inA = true
			}
			if u == nb {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}

func normalizeUnit(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// AttributeOverrides is a caller-supplied layer of fill/missing/scale/
// offset/units substitutions applied before the schema sentinel's check,
// supporting datasets where the true sentinel differs from source
// metadata (spec §4.3). The literal string "null" for Units deletes the
// units attribute from the combined result, per spec §9's Attribute bags
// note.
type AttributeOverrides struct {
	mu      sync.RWMutex
	byCol   map[string]ColumnAttributes
	deleted map[string]map[string]bool
}

func NewAttributeOverrides() *AttributeOverrides {
	return &AttributeOverrides{
		byCol:   make(map[string]ColumnAttributes),
		deleted: make(map[string]map[string]bool),
	}
}

// Set records override values for column; pass math.NaN() for a numeric
// field to leave the base value in place rather than override it to zero.
// The literal string "null" for Units deletes the units attribute: Apply
// then reports Units as "" whatever the base value was.
func (o *AttributeOverrides) Set(column string, attrs ColumnAttributes) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if attrs.Units == "null" {
		if o.deleted[column] == nil {
			o.deleted[column] = make(map[string]bool)
		}
		o.deleted[column]["units"] = true
		attrs.Units = ""
	}
	o.byCol[column] = attrs
}

// Apply merges base with any recorded override for column, override wins.
func (o *AttributeOverrides) Apply(column string, base ColumnAttributes) ColumnAttributes {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ov, ok := o.byCol[column]
	if !ok {
		return base
	}
	out := base
	if !math.IsNaN(ov.Scale) {
		out.Scale = ov.Scale
	}
	if !math.IsNaN(ov.Offset) {
		out.Offset = ov.Offset
	}
	if !math.IsNaN(ov.Fill) {
		out.Fill = ov.Fill
	}
	if !math.IsNaN(ov.Missing) {
		out.Missing = ov.Missing
	}
	if ov.Units != "" {
		out.Units = ov.Units
	}
	if o.deleted[column] != nil && o.deleted[column]["units"] {
		out.Units = ""
	}
	return out
}
