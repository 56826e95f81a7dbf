package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// memDevice is a minimal in-memory Device used only to exercise Get/Put/
// Peek/Poke in the interpreter tests; the real buffered implementation
// lives in internal/device.
type memDevice struct {
	peeked int64
	poked  []int64
	in     []int64
	inPos  int
	out    []int64
}

func (d *memDevice) Peek() (int64, error) { return d.peeked, nil }
func (d *memDevice) Poke(v int64) error    { d.poked = append(d.poked, v); return nil }

func (d *memDevice) Get(Input) (int64, error) {
	if d.inPos >= len(d.in) {
		return 0, errors.New("no more input")
	}
	v := d.in[d.inPos]
	d.inPos++
	return v, nil
}

func (d *memDevice) Put(val int64, _ Output) error {
	d.out = append(d.out, val)
	return nil
}

func (d *memDevice) CallExtern(string, []int64) ([]int64, error) {
	return nil, errors.New("no extern procedures")
}

func run(t *testing.T, listing Listing, th *Thread) error {
	t.Helper()
	prog, err := listing.Flatten()
	require.NoError(t, err)
	return th.Run(prog)
}

func TestMachineArithmetic(t *testing.T) {
	th := NewThread(8, &memDevice{}, 0, 0)
	// tape[0] = 4; register = 10 + tape[0] = 14
	err := run(t, Listing{
		{Op: Set, Ints: []int64{4}},
		{Op: Store, N: 0},
		{Op: Set, Ints: []int64{10}},
		{Op: Add},
	}, th)
	require.NoError(t, err)
	require.EqualValues(t, 14, th.Register)
}

func TestMachineDivideByZero(t *testing.T) {
	th := NewThread(4, &memDevice{}, 0, 0)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{1}},
		{Op: Div},
	}, th)
	require.Error(t, err)
	require.IsType(t, &DivideByZero{}, err)
}

func TestMachineIfTrueBranch(t *testing.T) {
	th := NewThread(4, &memDevice{}, 0, 0)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{1}},
		{Op: If},
		{Op: Set, Ints: []int64{111}},
		{Op: Else},
		{Op: Set, Ints: []int64{222}},
		{Op: End},
	}, th)
	require.NoError(t, err)
	require.EqualValues(t, 111, th.Register)
}

func TestMachineIfFalseBranch(t *testing.T) {
	th := NewThread(4, &memDevice{}, 0, 0)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{0}},
		{Op: If},
		{Op: Set, Ints: []int64{111}},
		{Op: Else},
		{Op: Set, Ints: []int64{222}},
		{Op: End},
	}, th)
	require.NoError(t, err)
	require.EqualValues(t, 222, th.Register)
}

// TestMachineWhileCountdown counts register down from 3 to 0, putting each
// value seen before decrementing, exercising While's "test the register
// before each iteration" semantics (spec.md §4.1): tape[0] holds the
// counter, tape[1] holds a constant 1 used by Sub.
func TestMachineWhileCountdown(t *testing.T) {
	dev := &memDevice{}
	th := NewThread(4, dev, 0, 0)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{3}},
		{Op: Store, N: 0}, // tape[0] = 3
		{Op: Set, Ints: []int64{1}},
		{Op: Move, N: 1},
		{Op: Store, N: 0}, // tape[1] = 1
		{Op: Move, N: -1}, // ptr = 0
		{Op: Load, N: 0},  // register = tape[0]

		{Op: While},
		{Op: Put, Output: Output{Mode: StdoutInt}},
		{Op: Move, N: 1},
		{Op: Sub}, // register -= tape[1]
		{Op: Move, N: -1},
		{Op: Store, N: 0}, // tape[0] = register
		{Op: End},
	}, th)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, dev.out)
	require.EqualValues(t, 0, th.Register)
}

func TestMachineCallAndReturn(t *testing.T) {
	dev := &memDevice{}
	th := NewThread(8, dev, 8, 0)
	listing := Listing{
		{Op: Function}, // id 0: register = tape[0] + tape[0]
		{Op: Load, N: 0},
		{Op: Add},
		{Op: Return},
		{Op: End},

		{Op: Set, Ints: []int64{21}},
		{Op: Store, N: 0}, // tape[0] = 21, argument passed on the tape
		{Op: Set, Ints: []int64{0}}, // function id, loaded right before Call
		{Op: Call},
	}
	err := run(t, listing, th)
	require.NoError(t, err)
	require.EqualValues(t, 42, th.Register)
}

func TestMachineStackOverflow(t *testing.T) {
	th := NewThread(8, &memDevice{}, 2, 0)
	listing := Listing{
		{Op: Function}, // id 0: calls itself unconditionally
		{Op: Set, Ints: []int64{0}},
		{Op: Call},
		{Op: End},

		{Op: Set, Ints: []int64{0}},
		{Op: Call},
	}
	err := run(t, listing, th)
	require.Error(t, err)
	require.IsType(t, &StackOverflow{}, err)
}

func TestMachineAllocFree(t *testing.T) {
	th := NewThread(16, &memDevice{}, 0, 0)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{3}},
		{Op: Alloc},
	}, th)
	require.NoError(t, err)
	addr := th.Register
	require.NotEqual(t, NullCell, addr)

	err = run(t, Listing{
		{Op: Set, Ints: []int64{addr}},
		{Op: Free},
		{Op: Set, Ints: []int64{3}},
		{Op: Alloc},
	}, th)
	require.NoError(t, err)
	require.Equal(t, addr, th.Register)
}

func TestMachineStepBudget(t *testing.T) {
	th := NewThread(4, &memDevice{}, 0, 2)
	err := run(t, Listing{
		{Op: Set, Ints: []int64{1}},
		{Op: Set, Ints: []int64{2}},
		{Op: Set, Ints: []int64{3}},
	}, th)
	require.Error(t, err)
	require.IsType(t, &StepBudgetExceeded{}, err)
}
