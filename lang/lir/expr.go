package lir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/types"
	"github.com/mna/sage/lang/vm"
)

// Expr is a runtime Sage expression (spec.md §4.5): GetType type-checks
// without emitting code, Compile emits code whose postcondition is "this
// expression's value occupies the top GetType(env).GetSize(env) cells of
// the stack", mirroring ConstExpr's own get_type/compile_expr split.
type Expr interface {
	fmt.Stringer
	GetType(env *Env) (types.Type, error)
	Compile(env *Env, out *asm.Builder) error
}

// scratchCounter hands out a fresh suffix per call, so every scratch global
// requested anywhere in this package (across sibling/nested expressions
// compiled in the same Builder) gets its own cell rather than aliasing one
// another's intermediate values.
var scratchCounter int64

func nextScratchName(prefix string) string {
	scratchCounter++
	return fmt.Sprintf("%s_%d", prefix, scratchCounter)
}

// dropSP retreats the stack pointer by n cells, discarding whatever
// currently occupies them without reading it back.
func dropSP(out *asm.Builder, n int64) error {
	if n == 0 {
		return nil
	}
	if err := out.LoadToRegister(asm.SP()); err != nil {
		return err
	}
	out.AddConst(-n)
	return out.StoreFromRegister(asm.SP())
}

// stashAndDrop pops a size-cell value off the top of the stack into scratch
// cells, drops dropBy more cells beneath it (releasing locals that lived
// under the value), then pushes the value back. Each scratch cell gets its
// own distinct global name rather than one buffer addressed by Offset,
// since globalAddr reserves exactly one tape cell per distinct name (see
// asm.Builder.CallExtern's doc comment for the bug this avoids).
func stashAndDrop(out *asm.Builder, size, dropBy int64) error {
	if size == 0 {
		return dropSP(out, dropBy)
	}
	prefix := nextScratchName("$stash")
	cells := make([]asm.Location, size)
	for i := int64(0); i < size; i++ {
		cells[i] = asm.Global(fmt.Sprintf("%s_%d", prefix, i))
	}
	for i := size - 1; i >= 0; i-- {
		if err := out.Pop(cells[i], 1); err != nil {
			return err
		}
	}
	if err := dropSP(out, dropBy); err != nil {
		return err
	}
	for i := int64(0); i < size; i++ {
		if err := out.Push(cells[i], 1); err != nil {
			return err
		}
	}
	return nil
}

func isPrimitive(t types.Type, p types.Primitive) bool {
	pt, ok := t.(types.Primitive)
	return ok && pt == p
}

func isIntType(t types.Type) bool   { return isPrimitive(t, types.Int) }
func isFloatType(t types.Type) bool { return isPrimitive(t, types.Float) }
func isCellType(t types.Type) bool  { return isPrimitive(t, types.Cell) }
func isBoolType(t types.Type) bool  { return isPrimitive(t, types.Bool) }

// constIntValue tries to fold e to a compile-time integer, following
// CSymbol indirection, for the few spots (array repeat, array index) that
// need a constant rather than a runtime value.
func constIntValue(e Expr, env *Env) (int64, bool) {
	ce, ok := e.(CE)
	if !ok {
		return 0, false
	}
	c := ce.Const
	for {
		switch v := c.(type) {
		case CInt:
			return int64(v), true
		case CSymbol:
			resolved, err := v.resolve(env)
			if err != nil {
				return 0, false
			}
			c = resolved
		default:
			return 0, false
		}
	}
}

func resolveConstBool(c ConstExpr, env *Env) (bool, error) {
	for {
		switch v := c.(type) {
		case CBool:
			return bool(v), nil
		case CSymbol:
			resolved, err := v.resolve(env)
			if err != nil {
				return false, err
			}
			c = resolved
		default:
			return false, fmt.Errorf("when condition must fold to a compile-time bool, got %s", c)
		}
	}
}

// placeOf resolves e to its storage location, static type and mutability,
// for the handful of Expr variants that are addressable (spec.md §4.5's
// "place" expressions: variables, field/index access, and dereferences).
// Field/index access and Deref require their base to itself be a place;
// accessing a field of an arbitrary rvalue (e.g. a freshly returned struct)
// is not supported, a deliberate simplification recorded in DESIGN.md.
func placeOf(e Expr, env *Env) (asm.Location, types.Type, types.Mutability, error) {
	switch v := e.(type) {
	case EVar:
		t, offset, ok := env.GetVar(v.Name)
		if !ok {
			return asm.Location{}, nil, 0, &SymbolNotDefined{Name: v.Name}
		}
		return asm.FP().Offset(offset), t, types.Mutable, nil

	case EField:
		wLoc, wt, wMut, err := placeOf(v.Whole, env)
		if err != nil {
			return asm.Location{}, nil, 0, err
		}
		off, ft, err := types.GetMemberOffset(v.Member, wt, env)
		if err != nil {
			return asm.Location{}, nil, 0, err
		}
		return wLoc.Offset(off), ft, wMut, nil

	case EIndex:
		wLoc, wt, wMut, err := placeOf(v.Whole, env)
		if err != nil {
			return asm.Location{}, nil, 0, err
		}
		if _, ok := wt.(*types.Array); !ok {
			return asm.Location{}, nil, 0, &types.Mismatch{Expected: &types.Array{}, Got: wt}
		}
		k, ok := constIntValue(v.Index, env)
		if !ok {
			return asm.Location{}, nil, 0, fmt.Errorf("array index must be a compile-time constant")
		}
		off, elemType, err := types.GetMemberOffset(strconv.FormatInt(k, 10), wt, env)
		if err != nil {
			return asm.Location{}, nil, 0, err
		}
		return wLoc.Offset(off), elemType, wMut, nil

	case EDeref:
		ptrLoc, ptrType, _, err := placeOf(v.Ptr, env)
		if err != nil {
			return asm.Location{}, nil, 0, err
		}
		pt, ok := ptrType.(*types.Pointer)
		if !ok {
			return asm.Location{}, nil, 0, &types.Mismatch{Expected: &types.Pointer{}, Got: ptrType}
		}
		return ptrLoc.Deref(), pt.Elem, pt.Mut, nil

	default:
		return asm.Location{}, nil, 0, fmt.Errorf("%s is not an addressable place", e)
	}
}

// CE wraps a ConstExpr as an Expr, for the common case of a literal or
// symbol appearing in a runtime expression position.
type CE struct{ Const ConstExpr }

func (e CE) String() string                          { return e.Const.String() }
func (e CE) GetType(env *Env) (types.Type, error)     { return e.Const.GetType(env) }
func (e CE) Compile(env *Env, out *asm.Builder) error { return e.Const.Compile(env, out) }

// EAnnotated wraps Expr with the source location it came from, so a
// failure anywhere underneath surfaces through one Annotated error
// (spec.md §7).
type EAnnotated struct {
	Expr     Expr
	Location string
}

func (e EAnnotated) String() string { return e.Expr.String() }

func (e EAnnotated) GetType(env *Env) (types.Type, error) {
	t, err := e.Expr.GetType(env)
	if err != nil {
		return nil, &Annotated{Err: err, Location: e.Location}
	}
	return t, nil
}

func (e EAnnotated) Compile(env *Env, out *asm.Builder) error {
	if err := e.Expr.Compile(env, out); err != nil {
		return &Annotated{Err: err, Location: e.Location}
	}
	return nil
}

// EMany compiles each sub-expression in order for its side effects,
// discarding every value but the last (spec.md §4.5). An empty Many has
// type None and compiles to a None literal.
type EMany struct{ Exprs []Expr }

func (e EMany) String() string {
	parts := make([]string, len(e.Exprs))
	for i, x := range e.Exprs {
		parts[i] = x.String()
	}
	return strings.Join(parts, "; ")
}

func (e EMany) GetType(env *Env) (types.Type, error) {
	if len(e.Exprs) == 0 {
		return types.None, nil
	}
	for _, x := range e.Exprs[:len(e.Exprs)-1] {
		if _, err := x.GetType(env); err != nil {
			return nil, err
		}
	}
	return e.Exprs[len(e.Exprs)-1].GetType(env)
}

func (e EMany) Compile(env *Env, out *asm.Builder) error {
	if len(e.Exprs) == 0 {
		return pushConst(out, 0)
	}
	for _, x := range e.Exprs[:len(e.Exprs)-1] {
		if err := x.Compile(env, out); err != nil {
			return err
		}
		t, err := x.GetType(env)
		if err != nil {
			return err
		}
		sz, err := types.GetSize(t, env)
		if err != nil {
			return err
		}
		if err := dropSP(out, sz); err != nil {
			return err
		}
	}
	return e.Exprs[len(e.Exprs)-1].Compile(env, out)
}

// EIf is a runtime conditional: Cond is evaluated every time, and Then/Else
// must agree on their static type (spec.md §4.5).
type EIf struct{ Cond, Then, Else Expr }

func (e EIf) String() string { return fmt.Sprintf("if %s then %s else %s", e.Cond, e.Then, e.Else) }

func (e EIf) GetType(env *Env) (types.Type, error) {
	ct, err := e.Cond.GetType(env)
	if err != nil {
		return nil, err
	}
	if !isBoolType(ct) {
		return nil, &types.Mismatch{Expected: types.Bool, Got: ct}
	}
	tt, err := e.Then.GetType(env)
	if err != nil {
		return nil, err
	}
	et, err := e.Else.GetType(env)
	if err != nil {
		return nil, err
	}
	eq, err := types.Equals(tt, et, env)
	if err != nil {
		return nil, err
	}
	if !eq {
		return nil, &types.Mismatch{Expected: tt, Got: et}
	}
	return tt, nil
}

func (e EIf) Compile(env *Env, out *asm.Builder) error {
	if err := e.Cond.Compile(env, out); err != nil {
		return err
	}
	condLoc := asm.Global(nextScratchName("$if_cond"))
	if err := out.Pop(condLoc, 1); err != nil {
		return err
	}
	if err := out.LoadToRegister(condLoc); err != nil {
		return err
	}
	out.If()
	if err := e.Then.Compile(env, out); err != nil {
		return err
	}
	if err := out.Else(); err != nil {
		return err
	}
	if err := e.Else.Compile(env, out); err != nil {
		return err
	}
	return out.End()
}

// EWhen is a compile-time conditional: Cond must fold to a constant bool,
// and only the chosen branch is ever type-checked or compiled (spec.md
// §4.5), unlike EIf which evaluates Cond at runtime.
type EWhen struct {
	Cond       ConstExpr
	Then, Else Expr
}

func (e EWhen) String() string {
	return fmt.Sprintf("when %s then %s else %s", e.Cond, e.Then, e.Else)
}

func (e EWhen) branch(env *Env) (Expr, error) {
	ct, err := e.Cond.GetType(env)
	if err != nil {
		return nil, err
	}
	if !isBoolType(ct) {
		return nil, &types.Mismatch{Expected: types.Bool, Got: ct}
	}
	v, err := resolveConstBool(e.Cond, env)
	if err != nil {
		return nil, err
	}
	if v {
		return e.Then, nil
	}
	return e.Else, nil
}

func (e EWhen) GetType(env *Env) (types.Type, error) {
	b, err := e.branch(env)
	if err != nil {
		return nil, err
	}
	return b.GetType(env)
}

func (e EWhen) Compile(env *Env, out *asm.Builder) error {
	b, err := e.branch(env)
	if err != nil {
		return err
	}
	return b.Compile(env, out)
}

// EWhile loops while Cond holds, discarding Body's value every iteration
// (its own type is always None). The VM's While opcode only tests whatever
// the register currently holds, so Cond's code is emitted twice: once
// before the loop to seed the first test, once at the end of Body to
// refresh it for the next one.
type EWhile struct{ Cond, Body Expr }

func (e EWhile) String() string { return fmt.Sprintf("while %s do %s", e.Cond, e.Body) }

func (e EWhile) GetType(env *Env) (types.Type, error) {
	ct, err := e.Cond.GetType(env)
	if err != nil {
		return nil, err
	}
	if !isBoolType(ct) {
		return nil, &types.Mismatch{Expected: types.Bool, Got: ct}
	}
	if _, err := e.Body.GetType(env); err != nil {
		return nil, err
	}
	return types.None, nil
}

func (e EWhile) Compile(env *Env, out *asm.Builder) error {
	compileCond := func() error {
		if err := e.Cond.Compile(env, out); err != nil {
			return err
		}
		condLoc := asm.Global(nextScratchName("$while_cond"))
		if err := out.Pop(condLoc, 1); err != nil {
			return err
		}
		return out.LoadToRegister(condLoc)
	}
	if err := compileCond(); err != nil {
		return err
	}
	out.While()
	if err := e.Body.Compile(env, out); err != nil {
		return err
	}
	bodyType, err := e.Body.GetType(env)
	if err != nil {
		return err
	}
	bodySize, err := types.GetSize(bodyType, env)
	if err != nil {
		return err
	}
	if err := dropSP(out, bodySize); err != nil {
		return err
	}
	if err := compileCond(); err != nil {
		return err
	}
	if err := out.End(); err != nil {
		return err
	}
	return pushConst(out, 0)
}

// Decl is one binding introduced by an EDeclare block: bind registers the
// name (type-checking only, no codegen), compile emits whatever code the
// binding needs (only DeclVar does anything).
type Decl interface {
	fmt.Stringer
	bind(env *Env) error
	compile(env *Env, out *asm.Builder) error
}

// DeclType introduces a named type alias visible for the rest of the block.
type DeclType struct {
	Name string
	Type types.Type
}

func (d DeclType) String() string             { return "type " + d.Name }
func (d DeclType) bind(env *Env) error         { env.DefineType(d.Name, d.Type); return nil }
func (DeclType) compile(*Env, *asm.Builder) error { return nil }

// DeclConst introduces a named compile-time constant.
type DeclConst struct {
	Name  string
	Value ConstExpr
}

func (d DeclConst) String() string             { return "const " + d.Name }
func (d DeclConst) bind(env *Env) error         { env.DefineConst(d.Name, d.Value); return nil }
func (DeclConst) compile(*Env, *asm.Builder) error { return nil }

// DeclProc introduces a named procedure, compiled lazily on first call via
// Env.PushProc.
type DeclProc struct {
	Name string
	Proc *Procedure
}

func (d DeclProc) String() string             { return "proc " + d.Name }
func (d DeclProc) bind(env *Env) error         { env.DefineProc(d.Name, d.Proc); return nil }
func (DeclProc) compile(*Env, *asm.Builder) error { return nil }

// DeclVar introduces a local variable initialized from Init. bind allocates
// its frame slot (type-checking Init and recording the slot's offset);
// compile emits Init's code, which lands exactly in that slot because
// stack growth order always matches the order frame slots are allocated in.
type DeclVar struct {
	Name string
	Init Expr
}

func (d DeclVar) String() string { return "var " + d.Name }

func (d DeclVar) bind(env *Env) error {
	t, err := d.Init.GetType(env)
	if err != nil {
		return err
	}
	_, err = env.DefineVar(d.Name, t)
	return err
}

func (d DeclVar) compile(env *Env, out *asm.Builder) error {
	return d.Init.Compile(env, out)
}

// EDeclare opens a nested block scope, binds Decls in order, then
// evaluates Body in it. If the block introduced any locals, Body's result
// is stashed, the locals are dropped, and the result is pushed back
// (spec.md §4.5, §4.7's "new_scope for a block keeps vars visible").
type EDeclare struct {
	Decls []Decl
	Body  Expr
}

func (e EDeclare) String() string {
	parts := make([]string, len(e.Decls))
	for i, d := range e.Decls {
		parts[i] = d.String()
	}
	return "declare " + strings.Join(parts, ", ") + " in " + e.Body.String()
}

func (e EDeclare) GetType(env *Env) (types.Type, error) {
	scope := env.NewBlockScope()
	for _, d := range e.Decls {
		if err := d.bind(scope); err != nil {
			return nil, err
		}
	}
	return e.Body.GetType(scope)
}

func (e EDeclare) Compile(env *Env, out *asm.Builder) error {
	scope := env.NewBlockScope()
	startOffset := scope.fpOffset
	for _, d := range e.Decls {
		if err := d.bind(scope); err != nil {
			return err
		}
		if err := d.compile(scope, out); err != nil {
			return err
		}
	}
	varSize := scope.fpOffset - startOffset

	bodyType, err := e.Body.GetType(scope)
	if err != nil {
		return err
	}
	if err := e.Body.Compile(scope, out); err != nil {
		return err
	}
	if varSize == 0 {
		return nil
	}
	bodySize, err := types.GetSize(bodyType, scope)
	if err != nil {
		return err
	}
	return stashAndDrop(out, bodySize, varSize)
}

// EVar reads a bound variable's current value.
type EVar struct{ Name string }

func (e EVar) String() string { return e.Name }

func (e EVar) GetType(env *Env) (types.Type, error) {
	_, t, _, err := placeOf(e, env)
	return t, err
}

func (e EVar) Compile(env *Env, out *asm.Builder) error {
	loc, t, _, err := placeOf(e, env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	return out.Push(loc, sz)
}

// EField reads a named member of a Struct- or EnumUnion-typed place.
type EField struct {
	Whole  Expr
	Member string
}

func (e EField) String() string { return e.Whole.String() + "." + e.Member }

func (e EField) GetType(env *Env) (types.Type, error) {
	_, t, _, err := placeOf(e, env)
	return t, err
}

func (e EField) Compile(env *Env, out *asm.Builder) error {
	loc, t, _, err := placeOf(e, env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	return out.Push(loc, sz)
}

// EIndex reads element Index of an Array-typed place. Index must fold to a
// compile-time constant: the Location algebra has no dynamic-offset kind,
// so a runtime-computed index is not supported, a limitation recorded in
// DESIGN.md.
type EIndex struct {
	Whole Expr
	Index Expr
}

func (e EIndex) String() string { return fmt.Sprintf("%s[%s]", e.Whole, e.Index) }

func (e EIndex) GetType(env *Env) (types.Type, error) {
	_, t, _, err := placeOf(e, env)
	return t, err
}

func (e EIndex) Compile(env *Env, out *asm.Builder) error {
	loc, t, _, err := placeOf(e, env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	return out.Push(loc, sz)
}

// ERefer produces a pointer to Place (spec.md §4.5's refer(mut)). Taking a
// Mutable reference through an Immutable place is a type error.
type ERefer struct {
	Mut   types.Mutability
	Place Expr
}

func (e ERefer) String() string {
	if e.Mut == types.Mutable {
		return "refer_mut " + e.Place.String()
	}
	return "refer " + e.Place.String()
}

func (e ERefer) GetType(env *Env) (types.Type, error) {
	_, t, mut, err := placeOf(e.Place, env)
	if err != nil {
		return nil, err
	}
	if e.Mut == types.Mutable && mut != types.Mutable {
		return nil, &ImmutableAssign{Place: e.Place.String()}
	}
	return &types.Pointer{Mut: e.Mut, Elem: t}, nil
}

func (e ERefer) Compile(env *Env, out *asm.Builder) error {
	loc, _, _, err := placeOf(e.Place, env)
	if err != nil {
		return err
	}
	tmp := asm.Global(nextScratchName("$refer_addr"))
	if err := out.CopyAddressTo(loc, tmp); err != nil {
		return err
	}
	return out.Push(tmp, 1)
}

// EDeref reads through a pointer (spec.md §4.5). Ptr must itself be a
// place: dereferencing the pointer returned by an arbitrary rvalue
// expression is not supported, the same limitation as EField/EIndex.
type EDeref struct{ Ptr Expr }

func (e EDeref) String() string { return "*" + e.Ptr.String() }

func (e EDeref) GetType(env *Env) (types.Type, error) {
	_, t, _, err := placeOf(e, env)
	return t, err
}

func (e EDeref) Compile(env *Env, out *asm.Builder) error {
	loc, t, _, err := placeOf(e, env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	return out.Push(loc, sz)
}

// EAssign writes Rhs into Place, or (with Op set) combines Place's current
// value with Rhs first (spec.md §4.5: "+=" and friends). Place must be
// Mutable; its value is always None.
type EAssign struct {
	Place Expr
	Op    string
	Rhs   Expr
}

func (e EAssign) String() string {
	if e.Op == "" {
		return fmt.Sprintf("%s = %s", e.Place, e.Rhs)
	}
	return fmt.Sprintf("%s %s= %s", e.Place, e.Op, e.Rhs)
}

func (e EAssign) GetType(env *Env) (types.Type, error) {
	_, t, mut, err := placeOf(e.Place, env)
	if err != nil {
		return nil, err
	}
	if mut != types.Mutable {
		return nil, &ImmutableAssign{Place: e.Place.String()}
	}
	rt, err := e.Rhs.GetType(env)
	if err != nil {
		return nil, err
	}
	if e.Op != "" {
		if _, err := binOpResultType(e.Op, t, rt, env); err != nil {
			return nil, err
		}
	} else {
		eq, err := types.Equals(t, rt, env)
		if err != nil {
			return nil, err
		}
		if !eq {
			return nil, &types.Mismatch{Expected: t, Got: rt}
		}
	}
	return types.None, nil
}

func (e EAssign) Compile(env *Env, out *asm.Builder) error {
	loc, t, _, err := placeOf(e.Place, env)
	if err != nil {
		return err
	}
	if e.Op != "" {
		rt, err := e.Rhs.GetType(env)
		if err != nil {
			return err
		}
		rhsLoc := asm.Global(nextScratchName("$assign_rhs"))
		if err := e.Rhs.Compile(env, out); err != nil {
			return err
		}
		if err := out.Pop(rhsLoc, 1); err != nil {
			return err
		}
		useFloat := isFloatType(t) || isFloatType(rt)
		if err := compileBinOp(out, e.Op, loc, rhsLoc, loc, useFloat); err != nil {
			return err
		}
	} else {
		sz, err := types.GetSize(t, env)
		if err != nil {
			return err
		}
		if err := e.Rhs.Compile(env, out); err != nil {
			return err
		}
		if err := out.Pop(loc, sz); err != nil {
			return err
		}
	}
	return pushConst(out, 0)
}

// EReturn exits the enclosing procedure immediately with Value. Since the
// VM's Return opcode unwinds the current call frame without touching the
// stack itself, Return must first collapse every local cell allocated by
// enclosing Declare blocks since procedure entry (env.fpOffset - 1 of
// them): ordinary fall-through already does this block by block as each
// EDeclare.Compile unwinds, but a Return jumps out from arbitrarily deep
// nesting in one step and has to do the equivalent collapse itself.
type EReturn struct{ Value Expr }

func (e EReturn) String() string { return "return " + e.Value.String() }

func (e EReturn) GetType(*Env) (types.Type, error) { return types.Never, nil }

func (e EReturn) Compile(env *Env, out *asm.Builder) error {
	if err := e.Value.Compile(env, out); err != nil {
		return err
	}
	t, err := e.Value.GetType(env)
	if err != nil {
		return err
	}
	sz, err := types.GetSize(t, env)
	if err != nil {
		return err
	}
	localSize := env.fpOffset - 1
	if err := stashAndDrop(out, sz, localSize); err != nil {
		return err
	}
	out.Emit(vm.Instr{Op: vm.Return})
	return nil
}

// ETuple constructs an ordered tuple value from its elements.
type ETuple struct{ Elems []Expr }

func (e ETuple) String() string {
	parts := make([]string, len(e.Elems))
	for i, x := range e.Elems {
		parts[i] = x.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (e ETuple) GetType(env *Env) (types.Type, error) {
	elems := make([]types.Type, len(e.Elems))
	for i, x := range e.Elems {
		t, err := x.GetType(env)
		if err != nil {
			return nil, err
		}
		elems[i] = t
	}
	return &types.Tuple{Elems: elems}, nil
}

func (e ETuple) Compile(env *Env, out *asm.Builder) error {
	for _, x := range e.Elems {
		if err := x.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// EArray constructs a fixed-length array value from its elements, all of
// which must share the first element's type.
type EArray struct{ Elems []Expr }

func (e EArray) String() string {
	parts := make([]string, len(e.Elems))
	for i, x := range e.Elems {
		parts[i] = x.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (e EArray) GetType(env *Env) (types.Type, error) {
	if len(e.Elems) == 0 {
		return &types.Array{Elem: types.Never, Len: 0}, nil
	}
	elemType, err := e.Elems[0].GetType(env)
	if err != nil {
		return nil, err
	}
	for _, x := range e.Elems[1:] {
		t, err := x.GetType(env)
		if err != nil {
			return nil, err
		}
		eq, err := types.Equals(elemType, t, env)
		if err != nil {
			return nil, err
		}
		if !eq {
			return nil, &types.Mismatch{Expected: elemType, Got: t}
		}
	}
	return &types.Array{Elem: elemType, Len: int64(len(e.Elems))}, nil
}

func (e EArray) Compile(env *Env, out *asm.Builder) error {
	for _, x := range e.Elems {
		if err := x.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// ExprStructField is one ordered, named member of an EStruct literal.
type ExprStructField struct {
	Name  string
	Value Expr
}

// EStruct constructs a struct value, fields in declaration order.
type EStruct struct{ Fields []ExprStructField }

func (e EStruct) String() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Name + ": " + f.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (e EStruct) GetType(env *Env) (types.Type, error) {
	fields := make([]types.StructField, len(e.Fields))
	for i, f := range e.Fields {
		t, err := f.Value.GetType(env)
		if err != nil {
			return nil, err
		}
		fields[i] = types.StructField{Name: f.Name, Type: t}
	}
	return &types.Struct{Fields: fields}, nil
}

func (e EStruct) Compile(env *Env, out *asm.Builder) error {
	for _, f := range e.Fields {
		if err := f.Value.Compile(env, out); err != nil {
			return err
		}
	}
	return nil
}

// EEnumUnion constructs one variant of an EnumUnion, tag followed by
// payload value (the same layout CEnumUnion compiles to).
type EEnumUnion struct {
	Type    *types.EnumUnion
	Variant string
	Value   Expr
}

func (e EEnumUnion) String() string {
	return e.Type.String() + "::" + e.Variant + "(" + e.Value.String() + ")"
}

func (e EEnumUnion) GetType(*Env) (types.Type, error) { return e.Type, nil }

func (e EEnumUnion) Compile(env *Env, out *asm.Builder) error {
	if err := pushConst(out, e.Type.TagOf(e.Variant)); err != nil {
		return err
	}
	return e.Value.Compile(env, out)
}

// EAsType reinterprets Expr's static type as Type without changing its
// runtime representation (spec.md §4.5's as_type); callers are responsible
// for only using it between types of identical size and layout.
type EAsType struct {
	Expr Expr
	Type types.Type
}

func (e EAsType) String() string { return fmt.Sprintf("%s as %s", e.Expr, e.Type) }

func (e EAsType) GetType(*Env) (types.Type, error) { return e.Type, nil }

func (e EAsType) Compile(env *Env, out *asm.Builder) error { return e.Expr.Compile(env, out) }

// EApp applies Callee to Args, pushing arguments in order (the last
// argument ends up closest to FP, matching Env.DefineArgs's layout) and
// collapsing the callee's argument cells down to just its result once the
// call returns.
type EApp struct {
	Callee ConstExpr
	Args   []Expr
}

func (e EApp) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (e EApp) GetType(env *Env) (types.Type, error) {
	ct, err := e.Callee.GetType(env)
	if err != nil {
		return nil, err
	}
	pt, ok := ct.(*types.Proc)
	if !ok {
		return nil, &types.Mismatch{Expected: &types.Proc{}, Got: ct}
	}
	if len(pt.Args) != len(e.Args) {
		return nil, &ArityMismatch{Expected: len(pt.Args), Got: len(e.Args)}
	}
	for i, a := range e.Args {
		at, err := a.GetType(env)
		if err != nil {
			return nil, err
		}
		eq, err := types.Equals(pt.Args[i], at, env)
		if err != nil {
			return nil, err
		}
		if !eq {
			return nil, &types.Mismatch{Expected: pt.Args[i], Got: at}
		}
	}
	return pt.Ret, nil
}

func (e EApp) Compile(env *Env, out *asm.Builder) error {
	ct, err := e.Callee.GetType(env)
	if err != nil {
		return err
	}
	pt, ok := ct.(*types.Proc)
	if !ok {
		return &types.Mismatch{Expected: &types.Proc{}, Got: ct}
	}
	argsSize := int64(0)
	for _, at := range pt.Args {
		sz, err := types.GetSize(at, env)
		if err != nil {
			return err
		}
		argsSize += sz
	}
	for _, a := range e.Args {
		if err := a.Compile(env, out); err != nil {
			return err
		}
	}
	if err := e.Callee.Compile(env, out); err != nil {
		return err
	}
	retSize, err := types.GetSize(pt.Ret, env)
	if err != nil {
		return err
	}
	return stashAndDrop(out, retSize, argsSize)
}

// MatchArm is one arm of an EMatch.
type MatchArm struct {
	Pattern Pattern
	Body    Expr
}

// EMatch tests Scrutinee against each arm's Pattern in order, evaluating
// the first one that matches (spec.md §4.6). Arms must be exhaustive. The
// scrutinee is first copied into a hidden local so every pattern's bind/
// compileTest operates on a stable FP-relative location rather than an
// arbitrary sub-location of an rvalue.
type EMatch struct {
	Scrutinee Expr
	Arms      []MatchArm
}

func (e EMatch) String() string {
	parts := make([]string, len(e.Arms))
	for i, a := range e.Arms {
		parts[i] = a.Pattern.String() + " => " + a.Body.String()
	}
	return fmt.Sprintf("match %s { %s }", e.Scrutinee, strings.Join(parts, ", "))
}

func (e EMatch) patterns() []Pattern {
	pats := make([]Pattern, len(e.Arms))
	for i, a := range e.Arms {
		pats[i] = a.Pattern
	}
	return pats
}

func (e EMatch) GetType(env *Env) (types.Type, error) {
	st, err := e.Scrutinee.GetType(env)
	if err != nil {
		return nil, err
	}
	if !isExhaustive(e.patterns(), st) {
		return nil, &NonExhaustiveMatch{}
	}

	var resultType types.Type
	for _, arm := range e.Arms {
		ok, err := arm.Pattern.compatible(st, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &InvalidPattern{Pattern: arm.Pattern, Type: st}
		}

		scope := env.NewBlockScope()
		bindings, err := arm.Pattern.bind(asm.FP().Offset(scope.fpOffset), st, scope)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			if _, err := scope.DefineVar(b.Name, b.Type); err != nil {
				return nil, err
			}
		}
		bt, err := arm.Body.GetType(scope)
		if err != nil {
			return nil, err
		}
		if resultType == nil {
			resultType = bt
			continue
		}
		eq, err := types.Equals(resultType, bt, env)
		if err != nil {
			return nil, err
		}
		if !eq {
			return nil, &types.Mismatch{Expected: resultType, Got: bt}
		}
	}
	if resultType == nil {
		return types.None, nil
	}
	return resultType, nil
}

func (e EMatch) Compile(env *Env, out *asm.Builder) error {
	st, err := e.Scrutinee.GetType(env)
	if err != nil {
		return err
	}
	scope := env.NewBlockScope()
	scrutineeName := nextScratchName("$match_scrutinee")
	offset, err := scope.DefineVar(scrutineeName, st)
	if err != nil {
		return err
	}
	// Scrutinee.Compile pushes its value starting exactly at FP+offset (the
	// same invariant DeclVar.compile relies on), so no Pop is needed to move
	// it into place.
	if err := e.Scrutinee.Compile(env, out); err != nil {
		return err
	}
	scrutineeLoc := asm.FP().Offset(offset)

	resultType, err := e.GetType(env)
	if err != nil {
		return err
	}
	resultSize, err := types.GetSize(resultType, env)
	if err != nil {
		return err
	}

	return e.compileArms(scope, out, scrutineeLoc, st, 0, resultSize)
}

// copyCells copies size consecutive cells from src to dst, one CopyTo per
// cell (CopyTo itself only ever moves a single cell through the register).
func copyCells(out *asm.Builder, src, dst asm.Location, size int64) error {
	for i := int64(0); i < size; i++ {
		if err := out.CopyTo(src.Offset(i), dst.Offset(i)); err != nil {
			return err
		}
	}
	return nil
}

// growSP advances the stack pointer by n cells, the inverse of dropSP, used
// when cells are written directly to their frame slot (via CopyTo) rather
// than arriving there through a Push.
func growSP(out *asm.Builder, n int64) error {
	if n == 0 {
		return nil
	}
	if err := out.LoadToRegister(asm.SP()); err != nil {
		return err
	}
	out.AddConst(n)
	return out.StoreFromRegister(asm.SP())
}

// bindArmVars materializes a matched arm's bindings into fresh local slots:
// Env only ever addresses a variable by its own frame-pointer offset (see
// varSlot), not by an arbitrary sub-location, so each binding's value is
// copied out of the scrutinee into a new DefineVar'd slot. Since CopyTo
// writes directly to the slot rather than Push-ing onto it, the stack
// pointer is advanced separately afterward so later pushes in the arm's
// body don't land on top of these slots.
func bindArmVars(env *Env, out *asm.Builder, bindings []patternBinding) (*Env, error) {
	scope := env.NewBlockScope()
	var total int64
	for _, b := range bindings {
		sz, err := types.GetSize(b.Type, scope)
		if err != nil {
			return nil, err
		}
		offset, err := scope.DefineVar(b.Name, b.Type)
		if err != nil {
			return nil, err
		}
		if err := copyCells(out, b.Loc, asm.FP().Offset(offset), sz); err != nil {
			return nil, err
		}
		total += sz
	}
	if err := growSP(out, total); err != nil {
		return nil, err
	}
	return scope, nil
}

// compileArms lowers arms[i:] to a cascade of If/Else blocks (spec.md
// §4.6's "decision cascade"): test arm i's pattern, compile its body in the
// taken branch, and recurse into the remaining arms under the Else.
func (e EMatch) compileArms(env *Env, out *asm.Builder, loc asm.Location, t types.Type, i int, resultSize int64) error {
	if i >= len(e.Arms) {
		return fmt.Errorf("match fell through every arm")
	}
	arm := e.Arms[i]

	bindings, err := arm.Pattern.bind(loc, t, env)
	if err != nil {
		return err
	}

	if _, ok := arm.Pattern.(PWildcard); ok {
		armScope, err := bindArmVars(env, out, bindings)
		if err != nil {
			return err
		}
		return arm.Body.Compile(armScope, out)
	}
	if _, ok := arm.Pattern.(PSymbol); ok {
		armScope, err := bindArmVars(env, out, bindings)
		if err != nil {
			return err
		}
		return arm.Body.Compile(armScope, out)
	}

	testLoc := asm.Global(nextScratchName("$match_test"))
	if err := arm.Pattern.compileTest(loc, t, testLoc, env, out); err != nil {
		return err
	}
	if err := out.LoadToRegister(testLoc); err != nil {
		return err
	}
	out.If()
	armScope, err := bindArmVars(env, out, bindings)
	if err != nil {
		return err
	}
	if err := arm.Body.Compile(armScope, out); err != nil {
		return err
	}
	if err := out.Else(); err != nil {
		return err
	}
	if err := e.compileArms(env, out, loc, t, i+1, resultSize); err != nil {
		return err
	}
	return out.End()
}

// binOpResultType implements spec.md §4.5's arithmetic/comparison typing
// table: Int (op) Int = Int; Float promotes with Int; Cell is a don't-care
// that joins with Int or Float to Cell; identically-named Units propagate
// through their underlying type. Array(T,n) * Int(k) is handled by the
// caller (EBinOp.GetType), since it needs k's actual value, not just Int's
// type.
func binOpResultType(op string, lt, rt types.Type, env *Env) (types.Type, error) {
	switch op {
	case "+", "-", "*", "/", "%":
		return arithResultType(op, lt, rt, env)
	case ">", "<", ">=", "<=", "==", "!=":
		eq, err := types.Equals(lt, rt, env)
		if err != nil {
			return nil, err
		}
		if !eq {
			return nil, &types.Mismatch{Expected: lt, Got: rt}
		}
		return types.Bool, nil
	case "&&", "||":
		if !isBoolType(lt) || !isBoolType(rt) {
			return nil, &InvalidBinaryOpTypes{Op: op, Lhs: lt, Rhs: rt}
		}
		return types.Bool, nil
	default:
		return nil, &InvalidBinaryOp{Op: op, Lhs: lt, Rhs: rt}
	}
}

func arithResultType(op string, lt, rt types.Type, env *Env) (types.Type, error) {
	if lu, ok := lt.(*types.Unit); ok {
		if ru, ok := rt.(*types.Unit); ok && lu.Name == ru.Name {
			inner, err := arithResultType(op, lu.Elem, ru.Elem, env)
			if err != nil {
				return nil, err
			}
			return &types.Unit{Name: lu.Name, Elem: inner}, nil
		}
	}

	lc, rc := isCellType(lt), isCellType(rt)
	if lc || rc {
		scalar := func(t types.Type) bool {
			return isCellType(t) || isIntType(t) || isFloatType(t)
		}
		if scalar(lt) && scalar(rt) {
			return types.Cell, nil
		}
		return nil, &InvalidBinaryOpTypes{Op: op, Lhs: lt, Rhs: rt}
	}

	li, ri := isIntType(lt), isIntType(rt)
	lf, rf := isFloatType(lt), isFloatType(rt)
	switch {
	case li && ri:
		return types.Int, nil
	case (li && rf) || (lf && ri) || (lf && rf):
		return types.Float, nil
	default:
		return nil, &InvalidBinaryOpTypes{Op: op, Lhs: lt, Rhs: rt}
	}
}

func negateBool(out *asm.Builder, loc asm.Location) error {
	one := asm.Global(nextScratchName("$not_one"))
	if err := out.SetConst(1, one); err != nil {
		return err
	}
	return out.Sub(one, loc, loc)
}

func orBool(out *asm.Builder, lhs, rhs, dst asm.Location) error {
	one := asm.Global(nextScratchName("$or_one"))
	nl := asm.Global(nextScratchName("$or_nl"))
	nr := asm.Global(nextScratchName("$or_nr"))
	if err := out.SetConst(1, one); err != nil {
		return err
	}
	if err := out.Sub(one, lhs, nl); err != nil {
		return err
	}
	if err := out.Sub(one, rhs, nr); err != nil {
		return err
	}
	if err := out.Mul(nl, nr, dst); err != nil {
		return err
	}
	return out.Sub(one, dst, dst)
}

// compileBinOp emits the code for a single binary operator given already-
// resolved operand locations, selecting the float-opcode variant when
// either operand promotes to Float. Equality/logical operators have no
// float-specific opcode, so they operate on the raw cell value in both
// cases (an accepted simplification: IEEE float equality is not bit-exact
// equality, but no opcode in the standard set computes the former).
func compileBinOp(out *asm.Builder, op string, lhs, rhs, dst asm.Location, useFloat bool) error {
	switch op {
	case "+":
		if useFloat {
			return out.FAdd(lhs, rhs, dst)
		}
		return out.Add(lhs, rhs, dst)
	case "-":
		if useFloat {
			return out.FSub(lhs, rhs, dst)
		}
		return out.Sub(lhs, rhs, dst)
	case "*":
		if useFloat {
			return out.FMul(lhs, rhs, dst)
		}
		return out.Mul(lhs, rhs, dst)
	case "/":
		if useFloat {
			return out.FDiv(lhs, rhs, dst)
		}
		return out.Div(lhs, rhs, dst)
	case "%":
		if useFloat {
			return out.FRem(lhs, rhs, dst)
		}
		return out.Rem(lhs, rhs, dst)
	case ">":
		if useFloat {
			return out.IsGreaterFloat(lhs, rhs, dst)
		}
		return out.IsGreater(lhs, rhs, dst)
	case "<":
		if useFloat {
			return out.IsLessFloat(lhs, rhs, dst)
		}
		return out.IsLess(lhs, rhs, dst)
	case ">=":
		if useFloat {
			if err := out.IsLessFloat(lhs, rhs, dst); err != nil {
				return err
			}
		} else if err := out.IsLess(lhs, rhs, dst); err != nil {
			return err
		}
		return negateBool(out, dst)
	case "<=":
		if useFloat {
			if err := out.IsGreaterFloat(lhs, rhs, dst); err != nil {
				return err
			}
		} else if err := out.IsGreater(lhs, rhs, dst); err != nil {
			return err
		}
		return negateBool(out, dst)
	case "==":
		return out.IsEqual(lhs, rhs, dst)
	case "!=":
		if err := out.IsEqual(lhs, rhs, dst); err != nil {
			return err
		}
		return negateBool(out, dst)
	case "&&":
		return out.Mul(lhs, rhs, dst)
	case "||":
		return orBool(out, lhs, rhs, dst)
	default:
		return &InvalidBinaryOp{Op: op}
	}
}

// EBinOp is a binary operator application (spec.md §4.5). Array(T,n) * k
// for a compile-time-constant Int k is a special case: it repeats the
// array's elements k times rather than going through compileBinOp.
type EBinOp struct {
	Op       string
	Lhs, Rhs Expr
}

func (e EBinOp) String() string { return fmt.Sprintf("(%s %s %s)", e.Lhs, e.Op, e.Rhs) }

func (e EBinOp) GetType(env *Env) (types.Type, error) {
	lt, err := e.Lhs.GetType(env)
	if err != nil {
		return nil, err
	}
	rt, err := e.Rhs.GetType(env)
	if err != nil {
		return nil, err
	}
	if e.Op == "*" {
		if at, ok := lt.(*types.Array); ok && isIntType(rt) {
			if k, ok := constIntValue(e.Rhs, env); ok && k > 0 {
				return &types.Array{Elem: at.Elem, Len: at.Len * k}, nil
			}
		}
	}
	return binOpResultType(e.Op, lt, rt, env)
}

func (e EBinOp) Compile(env *Env, out *asm.Builder) error {
	lt, err := e.Lhs.GetType(env)
	if err != nil {
		return err
	}
	rt, err := e.Rhs.GetType(env)
	if err != nil {
		return err
	}
	if e.Op == "*" {
		if at, ok := lt.(*types.Array); ok && isIntType(rt) {
			if k, ok := constIntValue(e.Rhs, env); ok && k > 0 {
				return e.compileArrayRepeat(env, out, at, k)
			}
		}
	}

	lhsLoc := asm.Global(nextScratchName("$bin_lhs"))
	rhsLoc := asm.Global(nextScratchName("$bin_rhs"))
	if err := e.Lhs.Compile(env, out); err != nil {
		return err
	}
	if err := out.Pop(lhsLoc, 1); err != nil {
		return err
	}
	if err := e.Rhs.Compile(env, out); err != nil {
		return err
	}
	if err := out.Pop(rhsLoc, 1); err != nil {
		return err
	}
	dst := asm.Global(nextScratchName("$bin_dst"))
	useFloat := isFloatType(lt) || isFloatType(rt)
	if err := compileBinOp(out, e.Op, lhsLoc, rhsLoc, dst, useFloat); err != nil {
		return err
	}
	return out.Push(dst, 1)
}

// compileArrayRepeat pushes Lhs once, then appends k-1 more copies of the
// same total-cells block by reading it back through the address Lhs was
// pushed at, the same per-cell Push loop asm.Builder.Push itself uses.
func (e EBinOp) compileArrayRepeat(env *Env, out *asm.Builder, at *types.Array, k int64) error {
	base := asm.Global(nextScratchName("$arr_base"))
	if err := out.LoadToRegister(asm.SP()); err != nil {
		return err
	}
	if err := out.StoreFromRegister(base); err != nil {
		return err
	}
	if err := e.Lhs.Compile(env, out); err != nil {
		return err
	}
	elemSize, err := types.GetSize(at.Elem, env)
	if err != nil {
		return err
	}
	total := at.Len * elemSize
	for i := int64(1); i < k; i++ {
		if err := out.Push(base.Deref(), total); err != nil {
			return err
		}
	}
	return nil
}

// EUnOp is a unary operator application: arithmetic negation, logical
// not, the float transcendental functions, and the two numeric
// conversions (spec.md §4.5).
type EUnOp struct {
	Op      string
	Operand Expr
}

func (e EUnOp) String() string { return fmt.Sprintf("%s(%s)", e.Op, e.Operand) }

func (e EUnOp) GetType(env *Env) (types.Type, error) {
	t, err := e.Operand.GetType(env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "-":
		if !isIntType(t) && !isFloatType(t) && !isCellType(t) {
			return nil, &InvalidUnaryOp{Op: e.Op, Operand: t}
		}
		return t, nil
	case "!":
		if !isBoolType(t) {
			return nil, &InvalidUnaryOp{Op: e.Op, Operand: t}
		}
		return types.Bool, nil
	case "sqrt", "sin", "cos", "tan", "asin", "acos", "atan", "to_float":
		return types.Float, nil
	case "to_int":
		return types.Int, nil
	default:
		return nil, &InvalidUnaryOp{Op: e.Op, Operand: t}
	}
}

func (e EUnOp) Compile(env *Env, out *asm.Builder) error {
	t, err := e.Operand.GetType(env)
	if err != nil {
		return err
	}
	operandLoc := asm.Global(nextScratchName("$un_operand"))
	if err := e.Operand.Compile(env, out); err != nil {
		return err
	}
	if err := out.Pop(operandLoc, 1); err != nil {
		return err
	}
	dst := asm.Global(nextScratchName("$un_dst"))
	switch e.Op {
	case "-":
		if isFloatType(t) {
			if err := out.FNeg(operandLoc, dst); err != nil {
				return err
			}
		} else {
			zero := asm.Global(nextScratchName("$un_zero"))
			if err := out.SetConst(0, zero); err != nil {
				return err
			}
			if err := out.Sub(zero, operandLoc, dst); err != nil {
				return err
			}
		}
	case "!":
		if err := out.CopyTo(operandLoc, dst); err != nil {
			return err
		}
		if err := negateBool(out, dst); err != nil {
			return err
		}
	case "sqrt":
		if err := out.Sqrt(operandLoc, dst); err != nil {
			return err
		}
	case "sin":
		if err := out.Sin(operandLoc, dst); err != nil {
			return err
		}
	case "cos":
		if err := out.Cos(operandLoc, dst); err != nil {
			return err
		}
	case "tan":
		if err := out.Tan(operandLoc, dst); err != nil {
			return err
		}
	case "asin":
		if err := out.ASin(operandLoc, dst); err != nil {
			return err
		}
	case "acos":
		if err := out.ACos(operandLoc, dst); err != nil {
			return err
		}
	case "atan":
		if err := out.ATan(operandLoc, dst); err != nil {
			return err
		}
	case "to_float":
		if err := out.ToFloat(operandLoc, dst); err != nil {
			return err
		}
	case "to_int":
		if err := out.ToInt(operandLoc, dst); err != nil {
			return err
		}
	default:
		return &InvalidUnaryOp{Op: e.Op, Operand: t}
	}
	return out.Push(dst, 1)
}
