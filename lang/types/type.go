// Package types implements Sage's compile-time Type system (spec.md §4.4): a
// closed sum of type variants plus the four operations an implementing
// engineer must provide over it (Simplify, Equals, GetSize,
// GetMemberOffset).
//
// Type is a plain closed interface rather than a tagged union struct,
// following the reference architecture's own Value sum in lang/types
// (Int/Float/Bool/String/Array/...): one Go type per variant, a marker
// method restricting implementers to this package, and free functions doing
// the recursive work instead of a method per variant, since cycle
// protection (Equals) and substitution (Simplify, Monomorphize) need state
// that is awkward to thread through a method set.
package types

import (
	"fmt"
	"strings"
)

// Type is any of the closed set of variants spec.md §4.4 names. The
// unexported marker method keeps the sum closed to this package, mirroring
// the reference architecture's own Value interface.
type Type interface {
	String() string
	sageType()
}

// Mutability qualifies a Pointer (spec.md §4.5: "refer(mut) produces
// Pointer(mut, T)").
type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

func (m Mutability) String() string {
	if m == Mutable {
		return "mut"
	}
	return "const"
}

// Primitive is one of the seven built-in scalar kinds (spec.md §4.4).
type Primitive int

const (
	Int Primitive = iota
	Float
	Bool
	Char
	Cell
	None
	Never
)

var primitiveNames = [...]string{"int", "float", "bool", "char", "cell", "none", "never"}

func (p Primitive) String() string {
	if p < 0 || int(p) >= len(primitiveNames) {
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
	return primitiveNames[p]
}
func (Primitive) sageType() {}

// Pointer is Pointer(mutability, T).
type Pointer struct {
	Mut  Mutability
	Elem Type
}

func (p *Pointer) String() string { return fmt.Sprintf("*%s %s", p.Mut, p.Elem) }
func (*Pointer) sageType()        {}

// Array is Array(T, const_len): a fixed-length homogeneous sequence whose
// length is a compile-time constant, not a runtime value.
type Array struct {
	Elem Type
	Len  int64
}

func (a *Array) String() string { return fmt.Sprintf("[%d]%s", a.Len, a.Elem) }
func (*Array) sageType()        {}

// Tuple is Tuple(T...): an ordered, unnamed product type.
type Tuple struct {
	Elems []Type
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (*Tuple) sageType() {}

// StructField is one ordered, named member of a Struct.
type StructField struct {
	Name string
	Type Type
}

// Struct is Struct(ordered fields name->T).
type Struct struct {
	Fields []StructField
}

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (*Struct) sageType() {}

// FieldIndex returns the index of member in s.Fields, or -1.
func (s *Struct) FieldIndex(member string) int {
	for i, f := range s.Fields {
		if f.Name == member {
			return i
		}
	}
	return -1
}

// Enum is Enum(variant names): a plain tag-only enumeration, no payloads.
type Enum struct {
	Variants []string
}

func (e *Enum) String() string { return "enum{" + strings.Join(e.Variants, ", ") + "}" }
func (*Enum) sageType()        {}

// TagOf returns the tag id of name, assigned by lexicographic order of
// variant names (spec.md §4.6, needed for deterministic Variant pattern
// compilation), or -1 if name is not a variant of e.
func (e *Enum) TagOf(name string) int64 {
	return tagOf(append([]string(nil), e.Variants...), name)
}

// EnumUnionVariant is one name->payload-type pair of an EnumUnion.
type EnumUnionVariant struct {
	Name    string
	Payload Type
}

// EnumUnion is EnumUnion(variant name -> T): a tagged union, one payload
// type per variant.
type EnumUnion struct {
	Variants []EnumUnionVariant
}

func (u *EnumUnion) String() string {
	parts := make([]string, len(u.Variants))
	for i, v := range u.Variants {
		parts[i] = v.Name + "(" + v.Payload.String() + ")"
	}
	return "union{" + strings.Join(parts, ", ") + "}"
}
func (*EnumUnion) sageType() {}

// TagOf returns the tag id of name (lexicographic order of variant names,
// same rule as Enum.TagOf), or -1 if name is not a variant of u.
func (u *EnumUnion) TagOf(name string) int64 {
	names := make([]string, len(u.Variants))
	for i, v := range u.Variants {
		names[i] = v.Name
	}
	return tagOf(names, name)
}

// VariantNamed returns the variant named name, or nil if none matches.
func (u *EnumUnion) VariantNamed(name string) *EnumUnionVariant {
	for i := range u.Variants {
		if u.Variants[i].Name == name {
			return &u.Variants[i]
		}
	}
	return nil
}

func tagOf(names []string, name string) int64 {
	sorted := append([]string(nil), names...)
	sortStrings(sorted)
	for i, n := range sorted {
		if n == name {
			return int64(i)
		}
	}
	return -1
}

// sortStrings is a tiny insertion sort: variant lists are short (handfuls of
// names), so pulling in sort.Strings for one call site isn't worth it, and
// this keeps tag assignment visibly stable and allocation-free.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Proc is Proc(args..., ret): a procedure signature. Its size is always 1
// cell (a label), regardless of arity.
type Proc struct {
	Args []Type
	Ret  Type
}

func (p *Proc) String() string {
	parts := make([]string, len(p.Args))
	for i, a := range p.Args {
		parts[i] = a.String()
	}
	return "proc(" + strings.Join(parts, ", ") + ") " + p.Ret.String()
}
func (*Proc) sageType() {}

// Symbol is a named-type reference (Symbol(name)): resolved against an Env
// by Simplify, never sized or compared directly.
type Symbol struct {
	Name string
}

func (s Symbol) String() string { return s.Name }
func (Symbol) sageType()        {}

// Unit is Unit(name, T): a nominal newtype. Two Units are equal only if
// their names match and their underlying types are equal; their size is
// just the underlying type's size.
type Unit struct {
	Name string
	Elem Type
}

func (u *Unit) String() string { return u.Name + "(" + u.Elem.String() + ")" }
func (*Unit) sageType()        {}

// Poly is Poly(type-param names, body): a type scheme awaiting
// monomorphization via Apply.
type Poly struct {
	Params []string
	Body   Type
}

func (p *Poly) String() string {
	return "poly[" + strings.Join(p.Params, ", ") + "] " + p.Body.String()
}
func (*Poly) sageType() {}

// Apply is Apply(T, T-args): instantiation of a Poly (or, if T does not
// simplify to a Poly, a type error caught by Simplify/Monomorphize).
type Apply struct {
	Callee Type
	Args   []Type
}

func (a *Apply) String() string {
	parts := make([]string, len(a.Args))
	for i, t := range a.Args {
		parts[i] = t.String()
	}
	return a.Callee.String() + "[" + strings.Join(parts, ", ") + "]"
}
func (*Apply) sageType() {}

// Let is Let(name, T_bind, T_body): a local type-level binding, scoped to
// T_body only, resolved one level at a time by Simplify.
type Let struct {
	Name string
	Bind Type
	Body Type
}

func (l *Let) String() string {
	return "let " + l.Name + " = " + l.Bind.String() + " in " + l.Body.String()
}
func (*Let) sageType() {}
