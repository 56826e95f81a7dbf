package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenMainOnly(t *testing.T) {
	listing := Listing{
		{Op: Set, Ints: []int64{1}},
		{Op: Set, Ints: []int64{2}},
		{Op: Add},
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Empty(t, prog.Functions)
	require.Equal(t, listing, Listing(prog.Main))
}

func TestFlattenSingleFunction(t *testing.T) {
	listing := Listing{
		{Op: Function},
		{Op: Set, Ints: []int64{1}},
		{Op: End},
		{Op: Set, Ints: []int64{0}},
		{Op: Call},
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	require.Equal(t, []Instr{{Op: Set, Ints: []int64{1}}, {Op: End}}, prog.Functions[0].Code)
	require.Equal(t, []Instr{{Op: Set, Ints: []int64{0}}, {Op: Call}}, prog.Main)
}

func TestFlattenSiblingFunctions(t *testing.T) {
	listing := Listing{
		{Op: Function}, // id 0
		{Op: Comment, Comment: "A"},
		{Op: End},
		{Op: Function}, // id 1
		{Op: Comment, Comment: "B"},
		{Op: End},
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 2)
	require.Equal(t, []Instr{{Op: Comment, Comment: "A"}, {Op: End}}, prog.Functions[0].Code)
	require.Equal(t, []Instr{{Op: Comment, Comment: "B"}, {Op: End}}, prog.Functions[1].Code)
}

// TestFlattenSiblingFunctionsWithMainCallBetween guards against the id
// drifting out of sync with lang/asm.Builder's prediction: a main-level op
// between two Function blocks used to inflate the collision count by
// counting the -1 (main) bucket as if it were a function body.
func TestFlattenSiblingFunctionsWithMainCallBetween(t *testing.T) {
	listing := Listing{
		{Op: Function}, // id 0
		{Op: Comment, Comment: "A"},
		{Op: End},
		{Op: Set, Ints: []int64{0}}, // main-level op, between the two functions
		{Op: Call},
		{Op: Function}, // id 1
		{Op: Comment, Comment: "B"},
		{Op: End},
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 2)
	require.Equal(t, []Instr{{Op: Comment, Comment: "A"}, {Op: End}}, prog.Functions[0].Code)
	require.Equal(t, []Instr{{Op: Comment, Comment: "B"}, {Op: End}}, prog.Functions[1].Code)
	require.Equal(t, []Instr{{Op: Set, Ints: []int64{0}}, {Op: Call}}, prog.Main)
}

func TestFlattenNestedIfInsideFunction(t *testing.T) {
	listing := Listing{
		{Op: Function},
		{Op: If},
		{Op: Comment, Comment: "then"},
		{Op: Else},
		{Op: Comment, Comment: "else"},
		{Op: End}, // closes If
		{Op: End}, // closes Function
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	body := prog.Functions[0].Code
	require.Equal(t, If, body[0].Op)
	require.Equal(t, Else, body[2].Op)
	require.Equal(t, End, body[4].Op)
}

func TestFlattenNestedFunctionInsideFunction(t *testing.T) {
	// A function body that itself defines a nested function must surface
	// the nested one as its own top-level entry; the nested function is
	// assigned the next id (1) while the outer one keeps the id it was
	// assigned on entry (0); the inner body is closed first, and the outer
	// body resumes after it and is closed by its own End, last in source
	// order.
	listing := Listing{
		{Op: Function}, // outer, id 0
		{Op: Function}, // inner, id 1
		{Op: Comment, Comment: "inner"},
		{Op: End}, // closes inner
		{Op: Comment, Comment: "outer"},
		{Op: End}, // closes outer
	}
	prog, err := listing.Flatten()
	require.NoError(t, err)
	require.Len(t, prog.Functions, 2)
	require.Equal(t, "outer", prog.Functions[0].Code[0].Comment)
	require.Equal(t, "inner", prog.Functions[1].Code[0].Comment)
}
