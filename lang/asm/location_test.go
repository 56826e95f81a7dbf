package asm

import (
	"errors"
	"testing"

	"github.com/mna/sage/lang/vm"
	"github.com/stretchr/testify/require"
)

type memDevice struct{}

func (memDevice) Peek() (int64, error)                    { return 0, nil }
func (memDevice) Poke(int64) error                        { return nil }
func (memDevice) Get(vm.Input) (int64, error)              { return 0, errors.New("no input") }
func (memDevice) Put(int64, vm.Output) error               { return nil }
func (memDevice) CallExtern(string, []int64) ([]int64, error) {
	return nil, errors.New("no extern procedures")
}

func runProgram(t *testing.T, b *Builder, tapeSize int) *vm.Thread {
	t.Helper()
	prog, err := b.Program(false)
	require.NoError(t, err)
	th := vm.NewThread(tapeSize, memDevice{}, 0, 0)
	require.NoError(t, th.Run(prog))
	return th
}

func TestLocationCopyToGlobalRoundTrip(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetConst(42, Global("x")))
	require.NoError(t, b.LoadToRegister(Global("x")))

	th := runProgram(t, b, 32)
	require.EqualValues(t, 42, th.Register)
}

// TestLocationPushPopRoundTrip pushes a global's value onto the stack (SP
// dereferenced) and pops it back into a different global. This only
// produces the right answer if Deref leaves the register untouched and
// instead chases the pointer stored in the tape cell it navigated to
// (vm.Deref's "ptr = tape[ptr]" semantics): StoreFromRegister needs to
// carry the value to push all the way through a Deref(SP) navigation.
func TestLocationPushPopRoundTrip(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetConst(20, SP()))
	require.NoError(t, b.SetConst(99, Global("v")))
	require.NoError(t, b.Push(Global("v"), 1))
	require.NoError(t, b.Pop(Global("w"), 1))
	require.NoError(t, b.LoadToRegister(Global("w")))

	th := runProgram(t, b, 32)
	require.EqualValues(t, 99, th.Register)
}

func TestLocationArithmetic(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetConst(7, Global("a")))
	require.NoError(t, b.SetConst(35, Global("b")))
	require.NoError(t, b.Add(Global("a"), Global("b"), Global("sum")))
	require.NoError(t, b.LoadToRegister(Global("sum")))

	th := runProgram(t, b, 32)
	require.EqualValues(t, 42, th.Register)
}

func TestLocationIsGreater(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetConst(9, Global("a")))
	require.NoError(t, b.SetConst(4, Global("b")))
	require.NoError(t, b.IsGreater(Global("a"), Global("b"), Global("gt")))
	require.NoError(t, b.LoadToRegister(Global("gt")))

	th := runProgram(t, b, 32)
	require.EqualValues(t, 1, th.Register)
}

// TestLocationPrelude checks the program-entry sequence against spec.md
// §4.2: FP_STACK holds F's address, SP is FP_STACK's value plus the
// allowed recursion depth, and FP is copied from SP.
func TestLocationPrelude(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Prelude(4))

	th := runProgram(t, b, 32)
	require.EqualValues(t, cellF, th.Tape[cellFPStack])
	require.EqualValues(t, cellF+4, th.Tape[cellSP])
	require.EqualValues(t, cellF+4, th.Tape[cellFP])
}
