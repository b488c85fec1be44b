// Package filter defines the predicate model used to select structure records
// and the local (non-remote) predicates: polymer chain type, experimental
// method and the logical combinators.
//
// A Filter is constructed once and then evaluated once per (id, record) pair,
// possibly from many goroutines at the same time.  Every Filter in this
// package is read-only after construction.
package filter

import (
	"fmt"
	"strings"

	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Filter decides whether a structure record is retained.  A false result is
// the normal negative outcome; errors are reserved for malformed records.
type Filter interface {
	Evaluate(id string, rec structure.Record) (bool, error)
}

// Func adapts an ordinary function to the Filter interface.
type Func func(id string, rec structure.Record) (bool, error)

// Evaluate calls f(id, rec).
func (f Func) Evaluate(id string, rec structure.Record) (bool, error) {
	return f(id, rec)
}

func (f Func) String() string { return "Func" }

// describe renders f for logs and CLI output.
func describe(f Filter) string {
	if s, ok := f.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", f)
}

// Describe renders a filter tree in a compact prefix form, e.g.
// NOT(AND(ExperimentalMethods[X-RAY DIFFRACTION], DProteinChain)).
func Describe(f Filter) string {
	if f == nil {
		return "<nil>"
	}
	return describe(f)
}

// ─────────────────────────────────────────────────────────────────────────────
// Combinators
// ─────────────────────────────────────────────────────────────────────────────

// NotFilter negates the wrapped filter.  Errors from the wrapped filter are
// returned unchanged.
type NotFilter struct {
	inner Filter
}

// Not wraps f so that its result is negated.
func Not(f Filter) *NotFilter {
	return &NotFilter{inner: f}
}

func (n *NotFilter) Evaluate(id string, rec structure.Record) (bool, error) {
	ok, err := n.inner.Evaluate(id, rec)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *NotFilter) String() string { return "NOT(" + describe(n.inner) + ")" }

// AndFilter retains a record when every operand retains it.  Operands are
// evaluated in order and evaluation stops at the first false or error.  An
// empty AndFilter retains everything.
type AndFilter struct {
	operands []Filter
}

// And combines filters with logical conjunction.
func And(filters ...Filter) *AndFilter {
	return &AndFilter{operands: append([]Filter(nil), filters...)}
}

func (a *AndFilter) Evaluate(id string, rec structure.Record) (bool, error) {
	for _, f := range a.operands {
		ok, err := f.Evaluate(id, rec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *AndFilter) String() string { return joinDescribed("AND", a.operands) }

// OrFilter retains a record when any operand retains it.  Operands are
// evaluated in order and evaluation stops at the first true or error.  An
// empty OrFilter retains nothing.
type OrFilter struct {
	operands []Filter
}

// Or combines filters with logical disjunction.
func Or(filters ...Filter) *OrFilter {
	return &OrFilter{operands: append([]Filter(nil), filters...)}
}

func (o *OrFilter) Evaluate(id string, rec structure.Record) (bool, error) {
	for _, f := range o.operands {
		ok, err := f.Evaluate(id, rec)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (o *OrFilter) String() string { return joinDescribed("OR", o.operands) }

func joinDescribed(op string, filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = describe(f)
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}
