package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeTierClassification(t *testing.T) {
	require.True(t, Add.IsCore())
	require.False(t, Add.IsStandard())

	require.True(t, Sin.IsStandard())
	require.False(t, Sin.IsCore())
}

func TestInstrString(t *testing.T) {
	require.Equal(t, "set [1 2]", Instr{Op: Set, Ints: []int64{1, 2}}.String())
	require.Equal(t, "store 3", Instr{Op: Store, N: 3}.String())
	require.Equal(t, "// a note", Instr{Op: Comment, Comment: "a note"}.String())
	require.Equal(t, "add", Instr{Op: Add}.String())
}

func TestDeviceModeString(t *testing.T) {
	require.Equal(t, "custom(4)", Input{Mode: CustomInput, Channel: 4}.String())
	require.Equal(t, "stdin-int", Input{Mode: StdinInt}.String())
	require.Equal(t, "custom(2)", Output{Mode: CustomOutput, Channel: 2}.String())
}
