package lir

import (
	"strings"

	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/types"
)

// Procedure is a concrete, non-generic Sage procedure: a typed argument
// list, a return type, and a body Expr, ported from original_source's
// lir::env::Procedure. Env.PushProc compiles Body exactly once per distinct
// Name (via asm.Builder.LabelID's own first-use tracking) and thereafter
// only ever emits a call to the cached label.
type Procedure struct {
	Name string
	Args []NamedType
	Ret  types.Type
	Body Expr

	// typeParams/typeArgs are non-empty only for a Procedure produced by
	// PolyProcedure.Instantiate: they let compileBody make the poly's type
	// parameters resolvable through Env for any Symbol reference inside
	// Body that Args/Ret substitution alone wouldn't reach (e.g. a nested
	// SizeOfType(T) or AsType(T)).
	typeParams []string
	typeArgs   []types.Type
}

// Type returns this procedure's Proc type, built from its (possibly already
// monomorphized) argument and return types.
func (p *Procedure) Type() *types.Proc {
	args := make([]types.Type, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.Type
	}
	return &types.Proc{Args: args, Ret: p.Ret}
}

// compileBody binds p's arguments (and, for a monomorphized instance, its
// type parameters) in a fresh child scope of env, then compiles Body into
// it, leaving the result on the stack per Expr's compile_expr postcondition.
// The caller (Env.PushProc, via LabelID) wraps this in the Fn/.../End pair.
func (p *Procedure) compileBody(env *Env, out *asm.Builder) error {
	scope := env.NewScope()
	for i, name := range p.typeParams {
		scope.DefineType(name, p.typeArgs[i])
	}
	if _, err := scope.DefineArgs(p.Args); err != nil {
		return err
	}
	return p.Body.Compile(scope, out)
}

// PolyProcedure is a generic procedure template: Params names the type
// parameters Template's Args/Ret/Body may reference as Symbols. Instantiate
// substitutes them with concrete types to produce a monomorphic Procedure
// with its own mangled label name, so distinct instantiations compile to
// distinct functions and cache independently in Env.PushProc.
type PolyProcedure struct {
	Name     string
	Params   []string
	Template *Procedure
}

// Instantiate substitutes args for p.Params throughout the template's
// argument and return types (spec.md §4.4's monomorphization contract,
// reused here via types.Monomorphize rather than a bespoke walk), and
// records the same substitution on the result so compileBody can make it
// visible through Env for anything Args/Ret substitution doesn't reach.
func (p *PolyProcedure) Instantiate(args []types.Type) (*Procedure, error) {
	if len(args) != len(p.Params) {
		return nil, &types.ArityMismatch{Expected: len(p.Params), Got: len(args)}
	}

	newArgs := make([]NamedType, len(p.Template.Args))
	for i, a := range p.Template.Args {
		t, err := substituteParams(a.Type, p.Params, args)
		if err != nil {
			return nil, err
		}
		newArgs[i] = NamedType{Name: a.Name, Type: t}
	}
	ret, err := substituteParams(p.Template.Ret, p.Params, args)
	if err != nil {
		return nil, err
	}

	return &Procedure{
		Name:       mangleProcName(p.Name, args),
		Args:       newArgs,
		Ret:        ret,
		Body:       p.Template.Body,
		typeParams: p.Params,
		typeArgs:   args,
	}, nil
}

// substituteParams replaces each of params with the corresponding entry of
// args throughout t, by routing through the existing Poly/Monomorphize
// machinery instead of duplicating types' substitution walk here.
func substituteParams(t types.Type, params []string, args []types.Type) (types.Type, error) {
	return types.Monomorphize(&types.Poly{Params: params, Body: t}, args)
}

// mangleProcName gives each distinct instantiation of a PolyProcedure its
// own label, so Env.PushProc's compile-once caching never conflates two
// different instantiations under one function id.
func mangleProcName(name string, args []types.Type) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "[" + strings.Join(parts, ", ") + "]"
}
