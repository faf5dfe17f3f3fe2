// Package derive compiles and evaluates the optional per-column derived-
// value expressions of spec-supplement §3 (a column computed from other
// source columns rather than read directly, e.g. unit conversion formulas
// ERDDAP's original dataVariable sourceName="=fahrenheit*5/9-32" syntax
// expresses as a literal formula). Grounded on the teacher's
// hive_merge_tree_service.go use of a small expression evaluator for
// partition-key derivation, using github.com/expr-lang/expr instead of a
// hand-rolled parser.
package derive

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Program is a compiled derived-column expression, evaluated once per row
// against that row's other column values.
type Program struct {
	source string
	prog   *vm.Program
}

// Compile parses source as an expr-lang expression over float64-valued
// row variables, erroring at config-validation time (spec §7: config
// errors are fatal at construction) rather than at scan time.
func Compile(source string) (*Program, error) {
	prog, err := expr.Compile(source, expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("derive: compile %q: %w", source, err)
	}
	return &Program{source: source, prog: prog}, nil
}

// Eval runs the compiled expression against env (column name -> numeric
// value for the current row) and returns the derived float64.
func (p *Program) Eval(env map[string]any) (float64, error) {
	out, err := expr.Run(p.prog, env)
	if err != nil {
		return 0, fmt.Errorf("derive: eval %q: %w", p.source, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("derive: expression %q did not produce a number", p.source)
	}
	return v, nil
}

func (p *Program) String() string { return p.source }
