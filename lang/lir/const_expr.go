package lir

import (
	"fmt"
	"strings"

	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/types"
)

// ConstExpr is a compile-time-evaluable value (spec.md §4.5), carried into
// runtime code by the CE expression. Unlike Type, the
// closed set here mixes plain literals with a few forms
// (SizeOfExpr, Monomorphize) that still carry an unevaluated Expr/ConstExpr
// inside them, since sizing and monomorphization are themselves deferred
// until the type they depend on is known.
type ConstExpr interface {
	fmt.Stringer
	// GetType returns the static type this constant compiles to.
	GetType(env *Env) (types.Type, error)
	// Compile emits code whose postcondition is "this constant's value
	// occupies the top GetType(env).GetSize(env) cells of the stack".
	Compile(env *Env, out *asm.Builder) error
	constExpr()
}

type CInt int64

func (c CInt) String() string                        { return fmt.Sprintf("%d", int64(c)) }
func (CInt) constExpr()                               {}
func (c CInt) GetType(*Env) (types.Type, error)        { return types.Int, nil }
func (c CInt) Compile(_ *Env, out *asm.Builder) error { return pushConst(out, int64(c)) }

type CFloat float64

func (c CFloat) String() string                  { return fmt.Sprintf("%g", float64(c)) }
func (CFloat) constExpr()                        {}
func (c CFloat) GetType(*Env) (types.Type, error) { return types.Float, nil }
func (c CFloat) Compile(_ *Env, out *asm.Builder) error {
	return pushFloatConst(out, float64(c))
}

type CChar rune

func (c CChar) String() string                  { return fmt.Sprintf("%q", rune(c)) }
func (CChar) constExpr()                        {}
func (c CChar) GetType(*Env) (types.Type, error) { return types.Char, nil }
func (c CChar) Compile(_ *Env, out *asm.Builder) error { return pushConst(out, int64(c)) }

type CBool bool

func (c CBool) String() string {
	if c {
		return "true"
	}
	return "false"
}
func (CBool) constExpr()                        {}
func (c CBool) GetType(*Env) (types.Type, error) { return types.Bool, nil }
func (c CBool) Compile(_ *Env, out *asm.Builder) error {
	n := int64(0)
	if c {
		n = 1
	}
	return pushConst(out, n)
}

type CNone struct{}

func (CNone) String() string                     { return "none" }
func (CNone) constExpr()                         {}
func (CNone) GetType(*Env) (types.Type, error)   { return types.None, nil }
func (CNone) Compile(_ *Env, out *asm.Builder) error { return pushConst(out, 0) }

type CNull struct{ Elem types.Type }

func (c CNull) String() string                     { return "null" }
func (CNull) constExpr()                           {}
func (c CNull) GetType(*Env) (types.Type, error)   { return &types.Pointer{Elem: c.Elem}, nil }
func (c CNull) Compile(_ *Env, out *asm.Builder) error {
	return pushConst(out, -128)
}

// CSymbol is a reference to a named compile-time constant, resolved
// through Env.GetConst.
type CSymbol struct{ Name string }

func (c CSymbol) String() string { return c.Name }
func (CSymbol) constExpr()       {}

func (c CSymbol) resolve(env *Env) (ConstExpr, error) {
	v, ok := env.GetConst(c.Name)
	if !ok {
		return nil, &SymbolNotDefined{Name: c.Name}
	}
	return v, nil
}

func (c CSymbol) GetType(env *Env) (types.Type, error) {
	v, err := c.resolve(env)
	if err != nil {
		return nil, err
	}
	return v.GetType(env)
}

func (c CSymbol) Compile(env *Env, out *asm.Builder) error {
	v, err := c.resolve(env)
	if err != nil {
		return err
	}
	return v.Compile(env, out)
}

// CArray is a fixed-length array literal.
type CArray struct{ Elems []ConstExpr }

func (c CArray) String() string {
	parts := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (CArray) constExpr() {}

func (c CArray) GetType(env *Env) (types.Type, error) {
	if len(c.Elems) == 0 {
		return &types.Array{Elem: types.Primitive(types.Never), Len: 0}, nil
	}
	elemType, err := c.Elems[0].GetType(env)
	if err != nil {
		return nil, err
	}
	return &types.Array{Elem: elemType, Len: int64(len(c.Elems))}, nil
}

func (c CArray) Compile(env *Env, out *asm.Builder) error {
	for _, e := range c.Elems {
		if err := e.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// CTuple is an ordered tuple literal.
type CTuple struct{ Elems []ConstExpr }

func (c CTuple) String() string {
	parts := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (CTuple) constExpr() {}

func (c CTuple) GetType(env *Env) (types.Type, error) {
	elems := make([]types.Type, len(c.Elems))
	for i, e := range c.Elems {
		t, err := e.GetType(env)
		if err != nil {
			return nil, err
		}
		elems[i] = t
	}
	return &types.Tuple{Elems: elems}, nil
}

func (c CTuple) Compile(env *Env, out *asm.Builder) error {
	for _, e := range c.Elems {
		if err := e.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// CStructField is one ordered, named member of a CStruct literal.
type CStructField struct {
	Name  string
	Value ConstExpr
}

// CStruct is a struct literal, fields in declaration order.
type CStruct struct{ Fields []CStructField }

func (c CStruct) String() string {
	parts := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		parts[i] = f.Name + ": " + f.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (CStruct) constExpr() {}

func (c CStruct) GetType(env *Env) (types.Type, error) {
	fields := make([]types.StructField, len(c.Fields))
	for i, f := range c.Fields {
		t, err := f.Value.GetType(env)
		if err != nil {
			return nil, err
		}
		fields[i] = types.StructField{Name: f.Name, Type: t}
	}
	return &types.Struct{Fields: fields}, nil
}

func (c CStruct) Compile(env *Env, out *asm.Builder) error {
	for _, f := range c.Fields {
		if err := f.Value.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// COf is a payload-less Enum variant constant: Of(T, variant).
type COf struct {
	Type    *types.Enum
	Variant string
}

func (c COf) String() string { return c.Type.String() + "::" + c.Variant }
func (COf) constExpr()       {}

func (c COf) GetType(*Env) (types.Type, error) { return c.Type, nil }

func (c COf) Compile(_ *Env, out *asm.Builder) error {
	return pushConst(out, c.Type.TagOf(c.Variant))
}

// CEnumUnion is a tagged-union constant: EnumUnion(T, variant, value).
type CEnumUnion struct {
	Type    *types.EnumUnion
	Variant string
	Value   ConstExpr
}

func (c CEnumUnion) String() string {
	return c.Type.String() + "::" + c.Variant + "(" + c.Value.String() + ")"
}
func (CEnumUnion) constExpr() {}

func (c CEnumUnion) GetType(*Env) (types.Type, error) { return c.Type, nil }

func (c CEnumUnion) Compile(env *Env, out *asm.Builder) error {
	if err := pushConst(out, c.Type.TagOf(c.Variant)); err != nil {
		return err
	}
	return c.Value.Compile(env, out)
}

// CSizeOfType is SizeOfType(T): a compile-time size query, folded to a
// CInt once T's size is known.
type CSizeOfType struct{ Type types.Type }

func (c CSizeOfType) String() string                   { return fmt.Sprintf("size_of(%s)", c.Type) }
func (CSizeOfType) constExpr()                         {}
func (c CSizeOfType) GetType(*Env) (types.Type, error) { return types.Int, nil }

func (c CSizeOfType) Compile(env *Env, out *asm.Builder) error {
	sz, err := types.GetSize(c.Type, env)
	if err != nil {
		return err
	}
	return pushConst(out, sz)
}

// CSizeOfExpr is SizeOfExpr(E): the compile-time size of E's static type
// (never E's runtime value).
type CSizeOfExpr struct{ Expr Expr }

func (c CSizeOfExpr) String() string                   { return fmt.Sprintf("size_of(%s)", c.Expr) }
func (CSizeOfExpr) constExpr()                         {}
func (c CSizeOfExpr) GetType(*Env) (types.Type, error) { return types.Int, nil }

func (c CSizeOfExpr) Compile(env *Env, out *asm.Builder) error {
	t, err := c.Expr.GetType(env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	return pushConst(out, sz)
}

// CMonomorphize is Monomorphize(C, T-args): instantiation of a polymorphic
// constant (most often a CPolyProc) with concrete type arguments.
type CMonomorphize struct {
	Callee ConstExpr
	Args   []types.Type
}

func (c CMonomorphize) String() string {
	parts := make([]string, len(c.Args))
	for i, t := range c.Args {
		parts[i] = t.String()
	}
	return c.Callee.String() + "[" + strings.Join(parts, ", ") + "]"
}
func (CMonomorphize) constExpr() {}

func (c CMonomorphize) GetType(env *Env) (types.Type, error) {
	if pp, ok := c.Callee.(CPolyProc); ok {
		proc, err := pp.Poly.Instantiate(c.Args)
		if err != nil {
			return nil, err
		}
		return proc.Type(), nil
	}
	t, err := c.Callee.GetType(env)
	if err != nil {
		return nil, err
	}
	poly, ok := t.(*types.Poly)
	if !ok {
		return nil, &types.InvalidMonomorphize{Callee: t}
	}
	return types.Monomorphize(poly, c.Args)
}

func (c CMonomorphize) Compile(env *Env, out *asm.Builder) error {
	if pp, ok := c.Callee.(CPolyProc); ok {
		proc, err := pp.Poly.Instantiate(c.Args)
		if err != nil {
			return err
		}
		return CProc{Proc: proc}.Compile(env, out)
	}
	return c.Callee.Compile(env, out)
}

// CProc wraps a concrete, non-generic Procedure as a constant. Compiling it
// emits a call to the procedure through Env.PushProc; EApp relies on this
// after pushing the arguments.
type CProc struct{ Proc *Procedure }

func (c CProc) String() string                   { return "proc " + c.Proc.Name }
func (CProc) constExpr()                         {}
func (c CProc) GetType(*Env) (types.Type, error) { return c.Proc.Type(), nil }

func (c CProc) Compile(env *Env, out *asm.Builder) error {
	return env.PushProc(c.Proc.Name, out)
}

// CPolyProc wraps a PolyProcedure. Its type is a Poly over the template's
// Proc type; it cannot be compiled as a value until CMonomorphize
// instantiates it.
type CPolyProc struct{ Poly *PolyProcedure }

func (c CPolyProc) String() string { return "poly proc " + c.Poly.Name }
func (CPolyProc) constExpr()       {}

func (c CPolyProc) GetType(*Env) (types.Type, error) {
	return &types.Poly{Params: c.Poly.Params, Body: c.Poly.Template.Type()}, nil
}

func (c CPolyProc) Compile(*Env, *asm.Builder) error {
	return fmt.Errorf("cannot compile a polymorphic procedure without monomorphizing it first")
}

// CFFIProcedure is an external procedure compiled to a single CallExtern
// standard op rather than a Sage-defined body.
type CFFIProcedure struct {
	Name string
	Args []types.Type
	Ret  types.Type
}

func (c CFFIProcedure) String() string { return "extern " + c.Name }
func (CFFIProcedure) constExpr()       {}

func (c CFFIProcedure) GetType(*Env) (types.Type, error) {
	return &types.Proc{Args: c.Args, Ret: c.Ret}, nil
}

func (c CFFIProcedure) Compile(_ *Env, out *asm.Builder) error {
	return out.CallExtern(c.Name, len(c.Args))
}

// CType reifies a Type itself as a compile-time constant (used by
// SizeOfType/AsType and generic procedures that take a type as an
// argument).
type CType struct{ Type types.Type }

func (c CType) String() string                   { return c.Type.String() }
func (CType) constExpr()                         {}
func (c CType) GetType(*Env) (types.Type, error) { return nil, fmt.Errorf("a type has no runtime type") }
func (c CType) Compile(*Env, *asm.Builder) error {
	return fmt.Errorf("a type constant is compile-time only and cannot be pushed onto the stack")
}

// pushConst emits an integer literal through a scratch global and onto the
// stack in one step, the Compile-time counterpart of location.go's
// SetConst + Push pair.
func pushConst(out *asm.Builder, n int64) error {
	loc := asm.Global("$const")
	if err := out.SetConst(n, loc); err != nil {
		return err
	}
	return out.Push(loc, 1)
}

func pushFloatConst(out *asm.Builder, f float64) error {
	loc := asm.Global("$constf")
	if err := out.SetFloatConst(f, loc); err != nil {
		return err
	}
	return out.Push(loc, 1)
}
