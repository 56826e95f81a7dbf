// Package lir implements Sage's typed LIR (spec.md §4.5): ConstExpr, Expr,
// Pattern and Procedure, plus the scoped Env (spec.md §4.7) all four refer
// to directly. Env is folded into this package rather than split into a
// separate lang/env (see DESIGN.md's "lang/env vs lang/lir" entry) because
// Env's define_proc/get_proc store Procedure values and Expr.get_type takes
// an Env — splitting them the way spec.md's package table implies would
// require lang/env to import lang/lir and vice versa.
package lir

import (
	"github.com/dolthub/swiss"
	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/types"
)

// varSlot is a variable's type and its frame-pointer-relative offset
// (spec.md §4.7's "(Type, i64)" pair), ported from original_source's
// src/lir/env.rs Env.vars.
type varSlot struct {
	typ    types.Type
	offset int64
}

// cowMap is a copy-on-write box around a *swiss.Map: many Env values can
// share the same underlying map by pointer (a fresh scope costs nothing
// but copying this struct) until one of them writes, at which point it
// clones the whole map first. This is the Go rendering of env.rs's
// `Rc<HashMap<...>>` plus `Rc::make_mut` — Go has no Rc, so ownership is
// tracked with an explicit "owned" flag instead of a strong-count check.
type cowMap[V any] struct {
	m     *swiss.Map[string, V]
	owned bool
}

func newCowMap[V any]() cowMap[V] {
	return cowMap[V]{m: swiss.NewMap[string, V](0), owned: true}
}

// shared returns a copy of c that aliases the same underlying map, marked
// unowned so the next write on either side forks it first.
func (c *cowMap[V]) shared() cowMap[V] {
	c.owned = false
	return cowMap[V]{m: c.m, owned: false}
}

// mut returns a map safe to write to in place, cloning first if c is
// shared with a parent or sibling scope.
func (c *cowMap[V]) mut() *swiss.Map[string, V] {
	if !c.owned {
		clone := swiss.NewMap[string, V](uint32(c.m.Count()))
		it := c.m.Iter()
		for it.Next() {
			k, v := it.Pair()
			clone.Put(k, v)
		}
		c.m = clone
		c.owned = true
	}
	return c.m
}

func (c *cowMap[V]) get(name string) (V, bool) {
	return c.m.Get(name)
}

// Env is the scope under which Type/ConstExpr/Expr/Pattern operations are
// checked and compiled (spec.md §4.7, ported from original_source's
// src/lir/env.rs). The zero value is not usable; call NewEnv.
type Env struct {
	types cowMap[types.Type]
	consts cowMap[ConstExpr]
	procs cowMap[*Procedure]
	vars  cowMap[varSlot]

	// fpOffset is the frame-pointer offset assigned to the next variable
	// defined in this scope; 1 because the last argument sits at [FP],
	// so the first local must start at [FP+1].
	fpOffset int64
	// argsSize is the total cell size of this scope's arguments, used by
	// the caller to deallocate them after a procedure returns.
	argsSize int64
}

// NewEnv returns an empty top-level environment.
func NewEnv() *Env {
	return &Env{
		types:    newCowMap[types.Type](),
		consts:   newCowMap[ConstExpr](),
		procs:    newCowMap[*Procedure](),
		vars:     newCowMap[varSlot](),
		fpOffset: 1,
	}
}

// NewScope returns a copy of e with its variables and argument bookkeeping
// reset, but types/consts/procs still visible (spec.md §4.7: "new_scope()
// drops vars/fp-offset, keeps types/consts/procs"). It must be, and is,
// O(1): only cowMap headers are copied, not their contents.
func (e *Env) NewScope() *Env {
	return &Env{
		types:    e.types.shared(),
		consts:   e.consts.shared(),
		procs:    e.procs.shared(),
		vars:     newCowMap[varSlot](),
		fpOffset: 1,
	}
}

// NewBlockScope returns a child Env for a nested Declare block within an
// existing procedure body: unlike NewScope (which drops vars/fpOffset for
// entering a whole new procedure), it keeps the current vars and fpOffset
// visible, so declarations inside the block shadow outer names without
// losing access to them, while copy-on-write makes the block's own
// declarations vanish from view again once its Env value is discarded.
func (e *Env) NewBlockScope() *Env {
	return &Env{
		types:    e.types.shared(),
		consts:   e.consts.shared(),
		procs:    e.procs.shared(),
		vars:     e.vars.shared(),
		fpOffset: e.fpOffset,
		argsSize: e.argsSize,
	}
}

func (e *Env) DefineType(name string, t types.Type) { e.types.mut().Put(name, t) }

func (e *Env) GetType(name string) (types.Type, bool) { return e.types.get(name) }

func (e *Env) DefineConst(name string, c ConstExpr) { e.consts.mut().Put(name, c) }

func (e *Env) GetConst(name string) (ConstExpr, bool) { return e.consts.get(name) }

func (e *Env) DefineProc(name string, p *Procedure) { e.procs.mut().Put(name, p) }

func (e *Env) GetProc(name string) (*Procedure, bool) { return e.procs.get(name) }

func (e *Env) HasProc(name string) bool {
	_, ok := e.procs.get(name)
	return ok
}

// PushProc compiles proc's body the first time name is seen and emits
// nothing but a call to its label on every later call (spec.md §4.7:
// "push_proc compiles the procedure on first call and replaces subsequent
// calls with a label push"), by delegating the "have we already reserved a
// label for this name" bookkeeping to asm.Builder.LabelID, which tracks
// exactly that.
func (e *Env) PushProc(name string, out *asm.Builder) error {
	proc, ok := e.GetProc(name)
	if !ok {
		return &SymbolNotDefined{Name: name}
	}
	if _, err := out.LabelID(name, func() error {
		return proc.compileBody(e, out)
	}); err != nil {
		return err
	}
	return out.Call(name)
}

// GetArgsSize returns this scope's total argument size in cells.
func (e *Env) GetArgsSize() int64 { return e.argsSize }

// GetVar returns var's type and its offset from the frame pointer.
func (e *Env) GetVar(name string) (types.Type, int64, bool) {
	v, ok := e.vars.get(name)
	if !ok {
		return nil, 0, false
	}
	return v.typ, v.offset, ok
}

// DefineArgs lays out args (in call order) below the frame pointer, last
// argument closest to FP (spec.md §4.7, §4.2's calling convention): it
// walks args in reverse, assigning each a negative fpOffset, so the first
// formal parameter ends up at the most negative offset and the last at
// [FP]. It returns the total argument size for the caller to pop.
func (e *Env) DefineArgs(args []NamedType) (int64, error) {
	e.fpOffset = 1
	e.argsSize = 0

	vars := e.vars.mut()
	for i := len(args) - 1; i >= 0; i-- {
		size, err := types.GetSize(args[i].Type, e)
		if err != nil {
			return 0, err
		}
		e.argsSize += size
		e.fpOffset -= size
		vars.Put(args[i].Name, varSlot{typ: args[i].Type, offset: e.fpOffset})
	}
	e.fpOffset = 1
	return e.argsSize, nil
}

// DefineVar allocates a new stack variable in the current scope, returning
// its offset from the frame pointer.
func (e *Env) DefineVar(name string, t types.Type) (int64, error) {
	size, err := types.GetSize(t, e)
	if err != nil {
		return 0, err
	}
	offset := e.fpOffset
	e.fpOffset += size
	e.vars.mut().Put(name, varSlot{typ: t, offset: offset})
	return offset, nil
}

// NamedType pairs a name with a Type, used for procedure argument lists
// (spec.md §4.5, §4.7).
type NamedType struct {
	Name string
	Type types.Type
}
