package types

import "fmt"

// Mismatch is raised when two types that were expected to be equal are not
// (spec.md §4.8's type checker failure model). At is left to the caller:
// type/LIR errors are wrapped in a lang/errors.Annotated once the compiler
// knows the source span responsible.
type Mismatch struct {
	Expected, Got Type
}

func (e *Mismatch) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *Mismatch) Category() string { return "type" }

// SymbolNotDefined is raised when Simplify's Symbol case has no matching
// entry in Env.
type SymbolNotDefined struct {
	Name string
}

func (e *SymbolNotDefined) Error() string { return fmt.Sprintf("symbol not defined: %s", e.Name) }
func (e *SymbolNotDefined) Category() string { return "type" }

// ArityMismatch is raised when Apply supplies a different number of type
// arguments than the Poly it targets declares params for.
type ArityMismatch struct {
	Expected, Got int
}

func (e *ArityMismatch) Error() string {
	return fmt.Sprintf("arity mismatch: expected %d type argument(s), got %d", e.Expected, e.Got)
}

func (e *ArityMismatch) Category() string { return "type" }

// InvalidMonomorphize is raised when Apply's callee does not simplify to a
// Poly at all, so there is nothing to instantiate.
type InvalidMonomorphize struct {
	Callee Type
}

func (e *InvalidMonomorphize) Error() string {
	return fmt.Sprintf("cannot monomorphize non-polymorphic type %s", e.Callee)
}

func (e *InvalidMonomorphize) Category() string { return "type" }

// NoSuchMember is raised by GetMemberOffset when member does not name a
// field, index or variant of the (simplified) whole type.
type NoSuchMember struct {
	Member string
	Whole  Type
}

func (e *NoSuchMember) Error() string {
	return fmt.Sprintf("type %s has no member %q", e.Whole, e.Member)
}

func (e *NoSuchMember) Category() string { return "type" }
