package token_test

import (
	"testing"

	"github.com/mna/sage/lang/token"
	"github.com/stretchr/testify/require"
)

func TestPosLineCol(t *testing.T) {
	p := token.MakePos(12, 34)
	line, col := p.LineCol()
	require.Equal(t, 12, line)
	require.Equal(t, 34, col)
	require.False(t, p.Unknown())
	require.True(t, token.NoPos.Unknown())
}

func TestFileSetPosition(t *testing.T) {
	fs := token.NewFileSet()
	f := fs.AddFile("main.sg")
	pos := f.Position(token.MakePos(3, 7))
	require.Equal(t, "main.sg:3:7", pos.String())
	require.True(t, pos.IsValid())
}

func TestPositionString(t *testing.T) {
	require.Equal(t, "-", token.Position{}.String())
	require.Equal(t, "main.sg", token.Position{Filename: "main.sg"}.String())
	require.Equal(t, "main.sg:1:1", token.Position{Filename: "main.sg", Line: 1, Col: 1}.String())
}
