package lir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/types"
)

// Pattern is one arm's match criterion (spec.md §4.6). Every variant
// supports three operations mirroring ConstExpr/Expr's own get_type/
// compile_expr split: compatible checks the pattern against the
// scrutinee's static type, bind collects the variables it would introduce
// (by sub-location, not by value), and compileTest emits code leaving a
// 0/1 match result in dst.
type Pattern interface {
	fmt.Stringer
	compatible(t types.Type, env *Env) (bool, error)
	bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error)
	compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error
}

// patternBinding is one variable a matched pattern introduces: its name,
// static type, and the sub-location (relative to the scrutinee) holding
// its value.
type patternBinding struct {
	Name string
	Type types.Type
	Loc  asm.Location
}

// PWildcard always matches and binds nothing.
type PWildcard struct{}

func (PWildcard) String() string { return "_" }
func (PWildcard) compatible(types.Type, *Env) (bool, error) { return true, nil }
func (PWildcard) bind(asm.Location, types.Type, *Env) ([]patternBinding, error) { return nil, nil }
func (PWildcard) compileTest(_ asm.Location, _ types.Type, dst asm.Location, _ *Env, out *asm.Builder) error {
	return out.SetConst(1, dst)
}

// PSymbol always matches, binding the scrutinee (or sub-scrutinee) under
// Name. Mut records whether the binding itself is Mutable, checked by
// Assign against places built from it.
type PSymbol struct {
	Mut  types.Mutability
	Name string
}

func (p PSymbol) String() string { return p.Name }
func (PSymbol) compatible(types.Type, *Env) (bool, error) { return true, nil }
func (p PSymbol) bind(loc asm.Location, t types.Type, _ *Env) ([]patternBinding, error) {
	return []patternBinding{{Name: p.Name, Type: t, Loc: loc}}, nil
}
func (PSymbol) compileTest(_ asm.Location, _ types.Type, dst asm.Location, _ *Env, out *asm.Builder) error {
	return out.SetConst(1, dst)
}

// PConst matches a scrutinee equal to Value, per spec.md §4.6's
// "ConstExpr(c) compares equal". Only single-cell constants are
// supported, the same scalar assumption the rest of this package makes.
type PConst struct{ Value ConstExpr }

func (p PConst) String() string { return p.Value.String() }

func (p PConst) compatible(t types.Type, env *Env) (bool, error) {
	vt, err := p.Value.GetType(env)
	if err != nil {
		return false, err
	}
	return types.Equals(vt, t, env)
}

func (PConst) bind(asm.Location, types.Type, *Env) ([]patternBinding, error) { return nil, nil }

func (p PConst) compileTest(loc asm.Location, _ types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	constLoc := asm.Global(nextScratchName("$pat_const"))
	if err := p.Value.Compile(env, out); err != nil {
		return err
	}
	if err := out.Pop(constLoc, 1); err != nil {
		return err
	}
	return out.IsEqual(loc, constLoc, dst)
}

// PTuple matches a Tuple pointwise.
type PTuple struct{ Elems []Pattern }

func (p PTuple) String() string {
	parts := make([]string, len(p.Elems))
	for i, e := range p.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (p PTuple) compatible(t types.Type, env *Env) (bool, error) {
	tt, ok := t.(*types.Tuple)
	if !ok || len(tt.Elems) != len(p.Elems) {
		return false, nil
	}
	for i, elemPat := range p.Elems {
		ok, err := elemPat.compatible(tt.Elems[i], env)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

func (p PTuple) bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error) {
	var out []patternBinding
	for i, elemPat := range p.Elems {
		off, elemType, err := types.GetMemberOffset(strconv.Itoa(i), t, env)
		if err != nil {
			return nil, err
		}
		sub, err := elemPat.bind(loc.Offset(off), elemType, env)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (p PTuple) compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	return andAllElems(p.Elems, func(i int, elemPat Pattern) (int64, types.Type, error) {
		off, elemType, err := types.GetMemberOffset(strconv.Itoa(i), t, env)
		return off, elemType, err
	}, loc, dst, env, out)
}

// PStruct matches a Struct's fields by name.
type PStruct struct{ Fields []StructPatternField }

// StructPatternField pairs a field name with the pattern it must match.
type StructPatternField struct {
	Name    string
	Pattern Pattern
}

func (p PStruct) String() string {
	parts := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		parts[i] = f.Name + ": " + f.Pattern.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (p PStruct) compatible(t types.Type, env *Env) (bool, error) {
	st, ok := t.(*types.Struct)
	if !ok {
		return false, nil
	}
	for _, f := range p.Fields {
		idx := st.FieldIndex(f.Name)
		if idx < 0 {
			return false, nil
		}
		ok, err := f.Pattern.compatible(st.Fields[idx].Type, env)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

func (p PStruct) bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error) {
	var out []patternBinding
	for _, f := range p.Fields {
		off, fieldType, err := types.GetMemberOffset(f.Name, t, env)
		if err != nil {
			return nil, err
		}
		sub, err := f.Pattern.bind(loc.Offset(off), fieldType, env)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (p PStruct) compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	fields := make([]Pattern, len(p.Fields))
	for i, f := range p.Fields {
		fields[i] = f.Pattern
	}
	names := p.Fields
	return andAllElems(fields, func(i int, _ Pattern) (int64, types.Type, error) {
		return types.GetMemberOffset(names[i].Name, t, env)
	}, loc, dst, env, out)
}

// PVariant matches an EnumUnion's tag and, optionally, its payload.
type PVariant struct {
	Variant string
	Payload Pattern // nil for a payload-less match
}

func (p PVariant) String() string {
	if p.Payload == nil {
		return p.Variant
	}
	return p.Variant + "(" + p.Payload.String() + ")"
}

func (p PVariant) compatible(t types.Type, env *Env) (bool, error) {
	ut, ok := t.(*types.EnumUnion)
	if !ok {
		return false, nil
	}
	v := ut.VariantNamed(p.Variant)
	if v == nil {
		return false, nil
	}
	if p.Payload == nil {
		return true, nil
	}
	return p.Payload.compatible(v.Payload, env)
}

func (p PVariant) bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error) {
	if p.Payload == nil {
		return nil, nil
	}
	_, payloadType, err := types.GetMemberOffset(p.Variant, t, env)
	if err != nil {
		return nil, err
	}
	return p.Payload.bind(loc.Offset(1), payloadType, env)
}

func (p PVariant) compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	ut := t.(*types.EnumUnion)
	tag := ut.TagOf(p.Variant)
	tagLoc := asm.Global(nextScratchName("$pat_tag"))
	if err := out.SetConst(tag, tagLoc); err != nil {
		return err
	}
	if err := out.IsEqual(loc, tagLoc, dst); err != nil {
		return err
	}
	if p.Payload == nil {
		return nil
	}
	v := ut.VariantNamed(p.Variant)
	payloadDst := asm.Global(nextScratchName("$pat_payload"))
	if err := p.Payload.compileTest(loc.Offset(1), v.Payload, payloadDst, env, out); err != nil {
		return err
	}
	return out.Mul(dst, payloadDst, dst)
}

// PPointer dereferences once then matches Elem against the pointee.
type PPointer struct{ Elem Pattern }

func (p PPointer) String() string { return "&" + p.Elem.String() }

func (p PPointer) compatible(t types.Type, env *Env) (bool, error) {
	pt, ok := t.(*types.Pointer)
	if !ok {
		return false, nil
	}
	return p.Elem.compatible(pt.Elem, env)
}

func (p PPointer) bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error) {
	pt := t.(*types.Pointer)
	return p.Elem.bind(loc.Deref(), pt.Elem, env)
}

func (p PPointer) compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	pt := t.(*types.Pointer)
	return p.Elem.compileTest(loc.Deref(), pt.Elem, dst, env, out)
}

// PAlt matches if any alternative matches. All alternatives must be
// compatible with the scrutinee type and bind the same variable set at
// the same sub-locations; bind therefore only ever evaluates Alts[0],
// which is correct whenever every alternative reaches its bindings
// through the same offsets (true for same-shape variants of one
// EnumUnion/Tuple/Struct, the common case this pattern exists for).
type PAlt struct{ Alts []Pattern }

func (p PAlt) String() string {
	parts := make([]string, len(p.Alts))
	for i, a := range p.Alts {
		parts[i] = a.String()
	}
	return strings.Join(parts, " | ")
}

func (p PAlt) compatible(t types.Type, env *Env) (bool, error) {
	for _, a := range p.Alts {
		ok, err := a.compatible(t, env)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

func (p PAlt) bind(loc asm.Location, t types.Type, env *Env) ([]patternBinding, error) {
	if len(p.Alts) == 0 {
		return nil, nil
	}
	return p.Alts[0].bind(loc, t, env)
}

func (p PAlt) compileTest(loc asm.Location, t types.Type, dst asm.Location, env *Env, out *asm.Builder) error {
	acc := asm.Global(nextScratchName("$alt_acc"))
	one := asm.Global(nextScratchName("$alt_one"))
	if err := out.SetConst(1, acc); err != nil {
		return err
	}
	if err := out.SetConst(1, one); err != nil {
		return err
	}
	for _, alt := range p.Alts {
		tmp := asm.Global(nextScratchName("$alt_tmp"))
		notTmp := asm.Global(nextScratchName("$alt_not_tmp"))
		if err := alt.compileTest(loc, t, tmp, env, out); err != nil {
			return err
		}
		if err := out.Sub(one, tmp, notTmp); err != nil {
			return err
		}
		if err := out.Mul(acc, notTmp, acc); err != nil {
			return err
		}
	}
	return out.Sub(one, acc, dst)
}

// andAllElems ANDs together compileTest results (via Mul, valid since
// results are always 0 or 1) for a list of sub-patterns whose offset and
// type are computed by offsetOf, shared by PTuple and PStruct.
func andAllElems(
	elems []Pattern,
	offsetOf func(i int, p Pattern) (int64, types.Type, error),
	loc asm.Location, dst asm.Location, env *Env, out *asm.Builder,
) error {
	if err := out.SetConst(1, dst); err != nil {
		return err
	}
	for i, elemPat := range elems {
		off, elemType, err := offsetOf(i, elemPat)
		if err != nil {
			return err
		}
		tmp := asm.Global(nextScratchName("$and_tmp"))
		if err := elemPat.compileTest(loc.Offset(off), elemType, tmp, env, out); err != nil {
			return err
		}
		if err := out.Mul(dst, tmp, dst); err != nil {
			return err
		}
	}
	return nil
}

// isExhaustive reports whether arms cover every value of scrutinee type t
// without needing a catch-all (spec.md §4.6 step 2): a PWildcard or
// PSymbol arm always suffices; otherwise, for Enum/EnumUnion scrutinees,
// every variant must be named by some PVariant (or alternative inside a
// PAlt).
func isExhaustive(pats []Pattern, t types.Type) bool {
	for _, p := range pats {
		switch p.(type) {
		case PWildcard, PSymbol:
			return true
		}
	}

	var variantNames func(p Pattern) []string
	variantNames = func(p Pattern) []string {
		switch v := p.(type) {
		case PVariant:
			return []string{v.Variant}
		case PAlt:
			var names []string
			for _, a := range v.Alts {
				names = append(names, variantNames(a)...)
			}
			return names
		default:
			return nil
		}
	}

	var allVariants []string
	switch tt := t.(type) {
	case *types.EnumUnion:
		for _, v := range tt.Variants {
			allVariants = append(allVariants, v.Name)
		}
	case *types.Enum:
		allVariants = tt.Variants
	default:
		return false
	}

	covered := map[string]bool{}
	for _, p := range pats {
		for _, n := range variantNames(p) {
			covered[n] = true
		}
	}
	for _, n := range allVariants {
		if !covered[n] {
			return false
		}
	}
	return true
}
