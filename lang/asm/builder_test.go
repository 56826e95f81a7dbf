package asm

import (
	"testing"

	"github.com/mna/sage/lang/vm"
	"github.com/stretchr/testify/require"
)

// TestBuilderSelfRecursiveCall exercises the forward-reference path of
// LabelID/Call: a function calls itself before its own Fn...End block has
// closed, and a sibling defined afterward still resolves to a distinct id.
func TestBuilderSelfRecursiveCall(t *testing.T) {
	b := NewBuilder()

	factID, err := b.LabelID("fact", func() error {
		return b.Call("fact")
	})
	require.NoError(t, err)

	helperID, err := b.LabelID("helper", func() error { return nil })
	require.NoError(t, err)

	require.NotEqual(t, factID, helperID)

	prog, err := b.Listing().Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 2)

	factBody := prog.Functions[factID].Code
	require.Equal(t, vm.Set, factBody[0].Op)
	require.Equal(t, []int64{factID}, factBody[0].Ints)
	require.Equal(t, vm.Call, factBody[1].Op)
}

func TestBuilderUnmatchedEnd(t *testing.T) {
	b := NewBuilder()
	err := b.End()
	require.Error(t, err)
	var unmatched *Unmatched
	require.ErrorAs(t, err, &unmatched)
}

func TestBuilderUnmatchedElse(t *testing.T) {
	b := NewBuilder()
	b.While()
	require.Error(t, b.Else())
}

func TestBuilderFinishRequiresClosedScopes(t *testing.T) {
	b := NewBuilder()
	b.If()
	require.Error(t, b.Finish())
	require.NoError(t, b.End())
	require.NoError(t, b.Finish())
}

func TestBuilderCallUndefinedLabel(t *testing.T) {
	b := NewBuilder()
	err := b.Call("nope")
	require.Error(t, err)
	var undef *UndefinedLabel
	require.ErrorAs(t, err, &undef)
}
