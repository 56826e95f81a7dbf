package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	listing := Listing{
		{Op: Function},
		{Op: Load, N: 0},
		{Op: Add},
		{Op: Return},
		{Op: End},

		{Op: Set, Ints: []int64{1, 2, 3}},
		{Op: Store, N: 0},
		{Op: Move, N: -2},
		{Op: SetFloat, Float: 3.5},
		{Op: Comment, Comment: "hello"},
		{Op: Get, Input: Input{Mode: StdinInt}},
		{Op: Put, Output: Output{Mode: CustomOutput, Channel: 7}},
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	prog.Standard = true

	data, err := Encode(prog)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, prog.Standard, decoded.Standard)
	require.Equal(t, prog.Functions, decoded.Functions)
	require.Equal(t, prog.Main, decoded.Main)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("nope"))
	require.Error(t, err)
}

func TestEncodeRejectsNegativeTapeOffset(t *testing.T) {
	_, err := encodeStream([]Instr{{Op: Store, N: -1}})
	require.Error(t, err)
}
