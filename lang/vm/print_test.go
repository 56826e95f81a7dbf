package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintNestsAndComments(t *testing.T) {
	listing := Listing{
		{Op: If},
		{Op: Comment, Comment: "taken"},
		{Op: Set, Ints: []int64{1}},
		{Op: End},
	}
	out := listing.Print(false)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "if", lines[0])
	require.Equal(t, "   // taken", lines[1])
	require.Equal(t, "   set [1]", lines[2])
	require.Equal(t, "end", lines[3])
}

func TestPrintHexPrefixesNonCommentLines(t *testing.T) {
	listing := Listing{
		{Op: Set, Ints: []int64{1}},
		{Op: Comment, Comment: "no index here"},
		{Op: Set, Ints: []int64{2}},
	}
	out := listing.Print(true)
	require.Contains(t, out, "00000000: set [1]")
	require.Contains(t, out, "// no index here")
	require.NotContains(t, out, ": // no index here") // comment lines carry no index prefix
	require.Contains(t, out, "00000001: set [2]")     // comments don't consume an index
}
