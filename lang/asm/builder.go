package asm

import "github.com/mna/sage/lang/vm"

// Op is a single assembly-IR instruction: a vm.Instr for every leaf
// operation (Set, Store, arithmetic, I/O, Comment...), plus a symbolic
// Label on Fn so the assembler can resolve repeated calls to the same
// procedure to one VM function id (spec.md §4.3, §4.7 push_proc).
type Op struct {
	vm.Instr
	Label string
}

type frame struct {
	fn      int64
	counter int
}

// Builder accumulates a nested listing of Ops while tracking open Fn/If/
// While scopes (to diagnose Unmatched) and shadowing the VM's own
// flattening bookkeeping so that a Call emitted before its callee's Fn
// block has been closed still resolves to the id flatten will later
// assign it (spec.md §4.1 step 2, replayed eagerly here).
type Builder struct {
	ops      []Op
	labelIDs map[string]int64

	fn      int64
	counter int
	stack   []frame
	seenIDs map[int64]bool

	openKinds []vm.Opcode // Fn/If/While, for Unmatched diagnostics

	globals    map[string]int64 // name -> reserved tape cell, see globalAddr
	nextGlobal int64
}

// NewBuilder returns an empty Builder ready to accept ops.
func NewBuilder() *Builder {
	return &Builder{
		labelIDs: map[string]int64{},
		fn:       -1,
		seenIDs:  map[int64]bool{},
	}
}

// Ops returns the accumulated nested listing, in vm.Listing-compatible
// order (Function/If/While/Else/End markers interleaved with leaf ops).
func (b *Builder) Ops() []Op { return b.ops }

// Listing converts the accumulated Ops to a vm.Listing, discarding the
// symbolic Label (already resolved to integer function ids by the time an
// Op reaches here).
func (b *Builder) Listing() vm.Listing {
	out := make(vm.Listing, len(b.ops))
	for i, op := range b.ops {
		out[i] = op.Instr
	}
	return out
}

func (b *Builder) push(op Op) {
	b.ops = append(b.ops, op)
	b.advance(op.Op)
}

// advance replays the flattening bookkeeping of vm.Listing.Flatten for a
// single appended opcode, so LabelID's predictions stay in lockstep with
// what Flatten will later compute over the same stream.
func (b *Builder) advance(op vm.Opcode) {
	switch op {
	case vm.Function:
		b.stack = append(b.stack, frame{fn: b.fn, counter: b.counter})
		b.counter = 0
		b.fn++
		if b.seenIDs[b.fn] {
			b.fn = int64(len(b.seenIDs))
		}
		b.seenIDs[b.fn] = true
	case vm.If, vm.While:
		b.counter++
	case vm.End:
		if b.counter == 0 {
			if len(b.stack) > 0 {
				top := b.stack[len(b.stack)-1]
				b.stack = b.stack[:len(b.stack)-1]
				b.fn, b.counter = top.fn, top.counter
			}
		} else {
			b.counter--
		}
	}
}

// Comment appends a no-op annotation.
func (b *Builder) Comment(text string) {
	b.push(Op{Instr: vm.Instr{Op: vm.Comment, Comment: text}})
}

// Emit appends a leaf instruction with no label.
func (b *Builder) Emit(in vm.Instr) {
	b.push(Op{Instr: in})
}

// If opens an If scope; the caller must later call End (and, if there is
// an else branch, Else in between).
func (b *Builder) If() {
	b.openKinds = append(b.openKinds, vm.If)
	b.push(Op{Instr: vm.Instr{Op: vm.If}})
}

// While opens a While scope.
func (b *Builder) While() {
	b.openKinds = append(b.openKinds, vm.While)
	b.push(Op{Instr: vm.Instr{Op: vm.While}})
}

// Else swaps the branch of the innermost open If.
func (b *Builder) Else() error {
	if n := len(b.openKinds); n == 0 || b.openKinds[n-1] != vm.If {
		return &Unmatched{Op: "else", Index: len(b.ops)}
	}
	b.push(Op{Instr: vm.Instr{Op: vm.Else}})
	return nil
}

// End closes the innermost open Fn/If/While scope.
func (b *Builder) End() error {
	if len(b.openKinds) == 0 {
		return &Unmatched{Op: "end", Index: len(b.ops)}
	}
	b.openKinds = b.openKinds[:len(b.openKinds)-1]
	b.push(Op{Instr: vm.Instr{Op: vm.End}})
	return nil
}

// Finish verifies every opened scope was closed; call once assembly of a
// function or program body is complete.
func (b *Builder) Finish() error {
	if len(b.openKinds) != 0 {
		return &Unmatched{Op: "end", Index: len(b.ops)}
	}
	return nil
}

// LabelID returns the VM function id reserved for label, assigning one
// (by predicting Flatten's own assignment, see advance) the first time the
// label is seen. defineBody is invoked exactly once per distinct label, to
// emit its Fn/.../End block at the point of first use — mirroring
// spec.md §4.7's push_proc, which compiles a procedure lazily on first
// call and thereafter only ever emits a label push.
func (b *Builder) LabelID(label string, defineBody func() error) (int64, error) {
	if id, ok := b.labelIDs[label]; ok {
		return id, nil
	}

	b.openKinds = append(b.openKinds, vm.Function)
	predicted := b.fn + 1
	if b.seenIDs[predicted] {
		predicted = int64(len(b.seenIDs))
	}
	b.push(Op{Instr: vm.Instr{Op: vm.Function}, Label: label})
	b.labelIDs[label] = predicted

	if err := defineBody(); err != nil {
		return 0, err
	}
	return predicted, b.End()
}

// Call emits Set[id]; Call for an already-defined label, or UndefinedLabel
// if it was never passed through LabelID.
func (b *Builder) Call(label string) error {
	id, ok := b.labelIDs[label]
	if !ok {
		return &UndefinedLabel{Label: label}
	}
	b.push(Op{Instr: vm.Instr{Op: vm.Set, Ints: []int64{id}}})
	b.push(Op{Instr: vm.Instr{Op: vm.Call}})
	return nil
}
