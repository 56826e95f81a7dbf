package asm

import (
	"fmt"

	"github.com/mna/sage/lang/vm"
)

// Kind discriminates the variants of the Location algebra (spec.md §4.2):
// the hardware register itself, the three fixed frame cells, a named
// global, and the two compositional forms (Deref, Offset).
type Kind int

const ( //nolint:revive
	KindRegister Kind = iota
	KindFP
	KindSP
	KindStackBase
	KindGlobal
	KindDeref
	KindOffset
	kindCell // internal: a raw fixed tape address (spill temporaries, FP_STACK)
)

// Location is a symbolic lvalue. Register, FP, SP and StackBase are leaves;
// Global is a leaf keyed by name; Deref and Offset wrap an Inner location.
type Location struct {
	Kind  Kind
	Name  string    // Global
	Inner *Location // Deref, Offset
	Index int64     // Offset: constant cell delta
}

func Register() Location   { return Location{Kind: KindRegister} }
func FP() Location         { return Location{Kind: KindFP} }
func SP() Location         { return Location{Kind: KindSP} }
func StackBase() Location  { return Location{Kind: KindStackBase} }
func Global(name string) Location { return Location{Kind: KindGlobal, Name: name} }

// Deref returns the location whose address is the value currently stored
// at l's address (pointer dereference).
func (l Location) Deref() Location { return Location{Kind: KindDeref, Inner: &l} }

// Offset returns the location n cells past l.
func (l Location) Offset(n int64) Location { return Location{Kind: KindOffset, Inner: &l, Index: n} }

// Reserved tape cells (spec.md §4.2): the register-spill temporaries A-F,
// the frame-pointer and stack-pointer registers, the frame-pointer stack
// base, the standard TMP scratch cell, and the stack base cell. Globals are
// assigned cells starting immediately after the stack base cell.
const (
	cellA = iota
	cellB
	cellC
	cellD
	cellE
	cellF
	cellFP
	cellSP
	cellFPStack
	cellTMP
	cellStackBase
	firstGlobalCell
)

// globalAddr returns the reserved cell for name, assigning the next free
// one on first use.
func (b *Builder) globalAddr(name string) int64 {
	if b.globals == nil {
		b.globals = map[string]int64{}
		b.nextGlobal = firstGlobalCell
	}
	if addr, ok := b.globals[name]; ok {
		return addr
	}
	addr := b.nextGlobal
	b.nextGlobal++
	b.globals[name] = addr
	return addr
}

// navStep is one emitted navigation move, paired with the op that undoes
// it once the caller is done using the resolved location.
type navStep struct {
	undo  vm.Opcode // Move or Refer
	delta int64     // Move only
}

// navigate emits whatever sequence of Move/Deref is required to bring ptr
// to rest on l's address, assuming ptr starts at the conventional baseline
// (relative offset 0) and returns the undo steps (in emission order) that
// restore ptr to that baseline. It never touches the register: Deref reads
// the pointer to chase from the tape cell itself (vm.Deref's ptr = tape[ptr]
// semantics), not from whatever the register currently holds, so a caller
// is always free to load a payload value into the register before
// navigating to a destination and still find it intact afterward.
func (b *Builder) navigate(l Location) ([]navStep, error) {
	switch l.Kind {
	case KindRegister:
		return nil, &UnsupportedInstruction{Op: "register has no address"}

	case KindFP:
		return b.moveToLeaf(cellFP), nil
	case KindSP:
		return b.moveToLeaf(cellSP), nil
	case KindStackBase:
		return b.moveToLeaf(cellStackBase), nil
	case KindGlobal:
		return b.moveToLeaf(b.globalAddr(l.Name)), nil
	case kindCell:
		return b.moveToLeaf(l.Index), nil

	case KindOffset:
		steps, err := b.navigate(*l.Inner)
		if err != nil {
			return nil, err
		}
		if l.Index != 0 {
			b.Emit(vm.Instr{Op: vm.Move, N: l.Index})
			steps = append(steps, navStep{undo: vm.Move, delta: -l.Index})
		}
		return steps, nil

	case KindDeref:
		steps, err := b.navigate(*l.Inner)
		if err != nil {
			return nil, err
		}
		b.Emit(vm.Instr{Op: vm.Deref})
		steps = append(steps, navStep{undo: vm.Refer})
		return steps, nil

	default:
		return nil, &UnsupportedInstruction{Op: "location"}
	}
}

func (b *Builder) moveToLeaf(addr int64) []navStep {
	if addr == 0 {
		return nil
	}
	b.Emit(vm.Instr{Op: vm.Move, N: addr})
	return []navStep{{undo: vm.Move, delta: -addr}}
}

// unwind emits the undo steps in reverse, returning ptr to the baseline
// navigate started from.
func (b *Builder) unwind(steps []navStep) {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		switch s.undo {
		case vm.Move:
			if s.delta != 0 {
				b.Emit(vm.Instr{Op: vm.Move, N: s.delta})
			}
		case vm.Refer:
			b.Emit(vm.Instr{Op: vm.Refer})
		}
	}
}

// LoadToRegister emits code that leaves l's value in the register, ptr
// restored to baseline.
func (b *Builder) LoadToRegister(l Location) error {
	if l.Kind == KindRegister {
		return nil
	}
	steps, err := b.navigate(l)
	if err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Load})
	b.unwind(steps)
	return nil
}

// StoreFromRegister writes the current register into l, leaving the
// register value unchanged and ptr restored to baseline.
func (b *Builder) StoreFromRegister(l Location) error {
	if l.Kind == KindRegister {
		return nil
	}
	steps, err := b.navigate(l)
	if err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Store})
	b.unwind(steps)
	return nil
}

// CopyTo copies src's value into dst.
func (b *Builder) CopyTo(src, dst Location) error {
	if err := b.LoadToRegister(src); err != nil {
		return err
	}
	return b.StoreFromRegister(dst)
}

// CopyAddressTo copies the address src resolves to (not its value) into
// dst. For a composed location (Deref/Offset) the address is whatever cell
// ptr rests on at the end of navigation, read out with Where before
// unwinding.
func (b *Builder) CopyAddressTo(src, dst Location) error {
	if src.Kind == KindRegister {
		return &UnsupportedInstruction{Op: "address of register"}
	}
	steps, err := b.navigate(src)
	if err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Where})
	b.unwind(steps)
	return b.StoreFromRegister(dst)
}

// spillToCell and addCellToRegister implement the one place this package
// needs to combine a tape-resident constant with the register without a
// core add-immediate opcode: spill the register to a reserved temporary,
// load the constant with Set (which is free to clobber the register,
// nothing live survives it), then Add the spilled value back.
func (b *Builder) spillToCell(addr int64) {
	steps := b.moveToLeaf(addr)
	b.Emit(vm.Instr{Op: vm.Store})
	b.unwind(steps)
}

func (b *Builder) addCellToRegister(addr int64) {
	steps := b.moveToLeaf(addr)
	b.Emit(vm.Instr{Op: vm.Add})
	b.unwind(steps)
}

// AddConst adds the compile-time constant n to whatever the register
// currently holds, using cell A as scratch.
func (b *Builder) AddConst(n int64) {
	if n == 0 {
		return
	}
	b.spillToCell(cellA)
	b.Emit(vm.Instr{Op: vm.Set, Ints: []int64{n}})
	b.addCellToRegister(cellA)
}

// binaryOp computes dst = a <op> b for a core or standard opcode whose
// step semantics are "register = register <op> tape[ptr]" (spec.md §4.3's
// "a + b becomes load-b, load-a, op, store", reordered here so the
// register load happens before ptr is repositioned to b — order doesn't
// matter since navigate never touches the register).
func (b *Builder) binaryOp(op vm.Opcode, a, rhs, dst Location) error {
	if err := b.LoadToRegister(a); err != nil {
		return err
	}
	steps, err := b.navigate(rhs)
	if err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: op})
	b.unwind(steps)
	return b.StoreFromRegister(dst)
}

func (b *Builder) Add(a, rhs, dst Location) error { return b.binaryOp(vm.Add, a, rhs, dst) }
func (b *Builder) Sub(a, rhs, dst Location) error { return b.binaryOp(vm.Sub, a, rhs, dst) }
func (b *Builder) Mul(a, rhs, dst Location) error { return b.binaryOp(vm.Mul, a, rhs, dst) }
func (b *Builder) Div(a, rhs, dst Location) error { return b.binaryOp(vm.Div, a, rhs, dst) }
func (b *Builder) Rem(a, rhs, dst Location) error { return b.binaryOp(vm.Rem, a, rhs, dst) }
func (b *Builder) BitwiseNand(a, rhs, dst Location) error {
	return b.binaryOp(vm.BitwiseNand, a, rhs, dst)
}

func (b *Builder) FAdd(a, rhs, dst Location) error { return b.binaryOp(vm.FAdd, a, rhs, dst) }
func (b *Builder) FSub(a, rhs, dst Location) error { return b.binaryOp(vm.FSub, a, rhs, dst) }
func (b *Builder) FMul(a, rhs, dst Location) error { return b.binaryOp(vm.FMul, a, rhs, dst) }
func (b *Builder) FDiv(a, rhs, dst Location) error { return b.binaryOp(vm.FDiv, a, rhs, dst) }
func (b *Builder) FRem(a, rhs, dst Location) error { return b.binaryOp(vm.FRem, a, rhs, dst) }
func (b *Builder) Pow(a, rhs, dst Location) error  { return b.binaryOp(vm.Pow, a, rhs, dst) }

// IsGreater computes dst = (a > b) for integer locations: Sub leaves
// register = a - b, then IsNonNegative tests a - b - 1 >= 0 (strict).
func (b *Builder) IsGreater(a, rhs, dst Location) error {
	if err := b.Sub(a, rhs, dst); err != nil {
		return err
	}
	if err := b.LoadToRegister(dst); err != nil {
		return err
	}
	b.AddConst(-1)
	b.Emit(vm.Instr{Op: vm.IsNonNegative})
	return b.StoreFromRegister(dst)
}

// IsLess computes dst = (a < b), i.e. IsGreater with operands swapped.
func (b *Builder) IsLess(a, rhs, dst Location) error { return b.IsGreater(rhs, a, dst) }

// IsEqual computes dst = (a == b) for integer locations. The core opcode
// set has no dedicated equality test, so this derives it from two
// IsGreater tests (neither direction strictly greater means equal),
// combined with an AND expressed as a multiply since both operands are
// always exactly 0 or 1.
func (b *Builder) IsEqual(a, rhs, dst Location) error {
	gt := Global("$eq_gt")
	lt := Global("$eq_lt")
	one := Global("$eq_one")
	notGt := Global("$eq_not_gt")
	notLt := Global("$eq_not_lt")
	if err := b.IsGreater(a, rhs, gt); err != nil {
		return err
	}
	if err := b.IsGreater(rhs, a, lt); err != nil {
		return err
	}
	if err := b.SetConst(1, one); err != nil {
		return err
	}
	if err := b.Sub(one, gt, notGt); err != nil {
		return err
	}
	if err := b.Sub(one, lt, notLt); err != nil {
		return err
	}
	return b.Mul(notGt, notLt, dst)
}

func (b *Builder) IsGreaterFloat(a, rhs, dst Location) error {
	return b.binaryOp(vm.IsGreaterFloat, a, rhs, dst)
}
func (b *Builder) IsLessFloat(a, rhs, dst Location) error {
	return b.binaryOp(vm.IsLessFloat, a, rhs, dst)
}

// unaryOp computes dst = op(l) for a standard opcode that maps the
// register onto itself (FNeg, Sqrt, ToFloat, ToInt, Sin, Cos, ...).
func (b *Builder) unaryOp(op vm.Opcode, l, dst Location) error {
	if err := b.LoadToRegister(l); err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: op})
	return b.StoreFromRegister(dst)
}

func (b *Builder) FNeg(l, dst Location) error  { return b.unaryOp(vm.FNeg, l, dst) }
func (b *Builder) Sqrt(l, dst Location) error  { return b.unaryOp(vm.Sqrt, l, dst) }
func (b *Builder) ToFloat(l, dst Location) error { return b.unaryOp(vm.ToFloat, l, dst) }
func (b *Builder) ToInt(l, dst Location) error   { return b.unaryOp(vm.ToInt, l, dst) }
func (b *Builder) Sin(l, dst Location) error   { return b.unaryOp(vm.Sin, l, dst) }
func (b *Builder) Cos(l, dst Location) error   { return b.unaryOp(vm.Cos, l, dst) }
func (b *Builder) Tan(l, dst Location) error   { return b.unaryOp(vm.Tan, l, dst) }
func (b *Builder) ASin(l, dst Location) error  { return b.unaryOp(vm.ASin, l, dst) }
func (b *Builder) ACos(l, dst Location) error  { return b.unaryOp(vm.ACos, l, dst) }
func (b *Builder) ATan(l, dst Location) error  { return b.unaryOp(vm.ATan, l, dst) }

// SetConst loads a compile-time constant into l.
func (b *Builder) SetConst(n int64, dst Location) error {
	b.Emit(vm.Instr{Op: vm.Set, Ints: []int64{n}})
	return b.StoreFromRegister(dst)
}

// SetFloatConst loads a compile-time float constant into l.
func (b *Builder) SetFloatConst(f float64, dst Location) error {
	b.Emit(vm.Instr{Op: vm.SetFloat, Float: f})
	return b.StoreFromRegister(dst)
}

// Alloc/Free/Peek/Poke delegate straight to the standard VM opcodes, routed
// through a Location for the size/address operand, per spec.md §4.2.
func (b *Builder) Alloc(size, dst Location) error {
	if err := b.LoadToRegister(size); err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Alloc})
	return b.StoreFromRegister(dst)
}

func (b *Builder) Free(addr Location) error {
	if err := b.LoadToRegister(addr); err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Free})
	return nil
}

func (b *Builder) Peek(dst Location) error {
	b.Emit(vm.Instr{Op: vm.Peek})
	return b.StoreFromRegister(dst)
}

func (b *Builder) Poke(l Location) error {
	if err := b.LoadToRegister(l); err != nil {
		return err
	}
	b.Emit(vm.Instr{Op: vm.Poke})
	return nil
}

// Push copies size cells starting at l onto the stack (the address held by
// SP) and advances SP by size, per spec.md §4.2's stack-growth prelude.
func (b *Builder) Push(l Location, size int64) error {
	for i := int64(0); i < size; i++ {
		if err := b.CopyTo(l.Offset(i), SP().Deref().Offset(i)); err != nil {
			return err
		}
	}
	if err := b.LoadToRegister(SP()); err != nil {
		return err
	}
	b.AddConst(size)
	return b.StoreFromRegister(SP())
}

// Pop retreats SP by size and copies the size cells it now points at into
// dst, the inverse of Push.
func (b *Builder) Pop(dst Location, size int64) error {
	if err := b.LoadToRegister(SP()); err != nil {
		return err
	}
	b.AddConst(-size)
	if err := b.StoreFromRegister(SP()); err != nil {
		return err
	}
	for i := int64(0); i < size; i++ {
		if err := b.CopyTo(SP().Deref().Offset(i), dst.Offset(i)); err != nil {
			return err
		}
	}
	return nil
}

// CallExtern pops numArgs single-cell arguments already pushed by the
// caller into a reserved scratch buffer, emits the standard CallExtern
// instruction naming the host procedure, and pushes its single-cell result
// back onto the stack (spec.md §4.5's FFI contract simplifies arg_types/
// ret_type to "one cell per scalar argument, one cell of result", the
// calling convention every other Compile in this package already assumes
// for scalar operands).
//
// Each buffer cell is its own named global (rather than one global indexed
// by Offset) because globalAddr reserves exactly one cell per distinct
// name; requesting the names in order below is what makes the VM see them
// as a contiguous [Addr, Addr+numArgs) block on first use.
func (b *Builder) CallExtern(name string, numArgs int) error {
	cellName := func(i int) string { return fmt.Sprintf("$extern_arg%d", i) }

	addr := b.globalAddr(cellName(0))
	for i := 1; i < numArgs; i++ {
		b.globalAddr(cellName(i))
	}
	for i := numArgs - 1; i >= 0; i-- {
		if err := b.Pop(Global(cellName(i)), 1); err != nil {
			return err
		}
	}
	b.push(Op{Instr: vm.Instr{
		Op:     vm.CallExtern,
		Extern: name,
		Addr:   addr,
		Ints:   []int64{int64(numArgs), 1},
	}})
	return b.Push(Global(cellName(0)), 1)
}

// Prelude emits the program-entry sequence of spec.md §4.2: F's address
// into FP_STACK, SP set to FP_STACK's stored value plus the allowed
// recursion depth, and FP copied from SP.
func (b *Builder) Prelude(allowedRecursionDepth int64) error {
	fCell := Location{Kind: kindCell, Index: cellF}
	fpStack := Location{Kind: kindCell, Index: cellFPStack}
	if err := b.CopyAddressTo(fCell, fpStack); err != nil {
		return err
	}
	if err := b.CopyAddressTo(fpStack.Deref().Offset(allowedRecursionDepth), SP()); err != nil {
		return err
	}
	return b.CopyTo(SP(), FP())
}
