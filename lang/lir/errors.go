package lir

import (
	"fmt"

	"github.com/mna/sage/lang/types"
)

// SymbolNotDefined is raised when a const/proc/var lookup in Env misses
// (spec.md §4.8). Type-name lookups raise types.SymbolNotDefined instead;
// this is the LIR-level counterpart for everything Env.Get{Const,Proc,Var}
// can fail to find.
type SymbolNotDefined struct {
	Name string
}

func (e *SymbolNotDefined) Error() string    { return fmt.Sprintf("symbol not defined: %s", e.Name) }
func (e *SymbolNotDefined) Category() string { return "lir" }

// InvalidBinaryOp is raised when a binary operator has no rule for the
// given operator at all (not merely a type mismatch between operands).
type InvalidBinaryOp struct {
	Op       string
	Lhs, Rhs types.Type
}

func (e *InvalidBinaryOp) Error() string {
	return fmt.Sprintf("invalid binary operation %s(%s, %s)", e.Op, e.Lhs, e.Rhs)
}
func (e *InvalidBinaryOp) Category() string { return "lir" }

// InvalidBinaryOpTypes is raised when the operator is recognized but the
// specific operand type combination has no typing rule (spec.md §4.5's
// arithmetic table).
type InvalidBinaryOpTypes struct {
	Op       string
	Lhs, Rhs types.Type
}

func (e *InvalidBinaryOpTypes) Error() string {
	return fmt.Sprintf("%s is not defined between %s and %s", e.Op, e.Lhs, e.Rhs)
}
func (e *InvalidBinaryOpTypes) Category() string { return "lir" }

// InvalidPattern is raised when Match compiles a pattern incompatible with
// the scrutinee's type (spec.md §4.6 step 1).
type InvalidPattern struct {
	Pattern Pattern
	Type    types.Type
}

func (e *InvalidPattern) Error() string {
	return fmt.Sprintf("pattern %s is not valid for type %s", e.Pattern, e.Type)
}
func (e *InvalidPattern) Category() string { return "lir" }

// NonExhaustiveMatch is raised when a Match's arms don't cover every value
// of the scrutinee's type and no wildcard arm is present.
type NonExhaustiveMatch struct{}

func (e *NonExhaustiveMatch) Error() string    { return "match is not exhaustive" }
func (e *NonExhaustiveMatch) Category() string { return "lir" }

// ImmutableAssign is raised when an Assign's LHS place is not Mutable
// through every pointer hop leading to it.
type ImmutableAssign struct {
	Place string
}

func (e *ImmutableAssign) Error() string {
	return fmt.Sprintf("cannot assign through immutable place: %s", e.Place)
}
func (e *ImmutableAssign) Category() string { return "lir" }

// Annotated wraps another error with the source location of the
// expression that raised it (spec.md §7: "Type/LIR errors may be wrapped
// by Annotated(inner, source_location) so that a single display path
// produces filename:line:col: kind: detail").
type Annotated struct {
	Err      error
	Location string
}

func (e *Annotated) Error() string    { return fmt.Sprintf("%s: %s", e.Location, e.Err) }
func (e *Annotated) Unwrap() error    { return e.Err }
func (e *Annotated) Category() string { return "lir" }

// InvalidUnaryOp is raised when a unary operator has no rule for the given
// operand type.
type InvalidUnaryOp struct {
	Op      string
	Operand types.Type
}

func (e *InvalidUnaryOp) Error() string {
	return fmt.Sprintf("invalid unary operation %s(%s)", e.Op, e.Operand)
}
func (e *InvalidUnaryOp) Category() string { return "lir" }

// ArityMismatch is raised when App supplies a different number of
// arguments than the target procedure declares parameters for.
type ArityMismatch struct {
	Expected, Got int
}

func (e *ArityMismatch) Error() string {
	return fmt.Sprintf("arity mismatch: expected %d argument(s), got %d", e.Expected, e.Got)
}
func (e *ArityMismatch) Category() string { return "lir" }
