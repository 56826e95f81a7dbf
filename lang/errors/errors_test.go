package errors_test

import (
	"testing"

	"github.com/mna/sage/lang/errors"
	"github.com/mna/sage/lang/token"
	"github.com/stretchr/testify/require"
)

type fakeCategorized struct{ msg string }

func (f fakeCategorized) Error() string   { return f.msg }
func (f fakeCategorized) Category() string { return "type" }

func TestAnnotateNil(t *testing.T) {
	require.Nil(t, errors.Annotate(nil, token.Position{}))
}

func TestDisplayWithPosition(t *testing.T) {
	err := errors.Annotate(fakeCategorized{msg: "x is not defined"}, token.Position{Filename: "a.sg", Line: 2, Col: 5})
	require.Equal(t, "a.sg:2:5: type: x is not defined", errors.Display(err))
}

func TestDisplayWithoutPosition(t *testing.T) {
	require.Equal(t, "type: x is not defined", errors.Display(fakeCategorized{msg: "x is not defined"}))
}

func TestPositionOf(t *testing.T) {
	pos := token.Position{Filename: "a.sg", Line: 1, Col: 1}
	err := errors.Annotate(fakeCategorized{msg: "boom"}, pos)
	require.Equal(t, pos, errors.PositionOf(err))
	require.Equal(t, token.Position{}, errors.PositionOf(fakeCategorized{msg: "boom"}))
}
