// Package errors defines the aggregated failure model shared by every stage
// of the compiler pipeline (spec.md §7): errors are values, never control
// flow, and any of them can be wrapped with the source position where they
// occurred so that a single Display path renders
// "filename:line:col: kind: detail" no matter which package raised the
// error.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/mna/sage/lang/token"
)

// Categorized is implemented by concrete error types that know which
// pipeline stage produced them (type checker, assembler, VM, I/O...). It is
// optional: an error that does not implement it is displayed with the
// generic "error" kind.
type Categorized interface {
	error
	Category() string
}

// Annotated wraps an error with the source position where it occurred. Type
// checker and LIR errors are wrapped in an Annotated as soon as the
// compiler knows the source span responsible; assembler and VM errors are
// usually annotated by the caller that has access to the original source
// map, since the assembler/VM themselves only know instruction indices.
type Annotated struct {
	Err error
	At  token.Position
}

// Annotate wraps err with position at. It returns nil if err is nil, so it
// is safe to call unconditionally at the end of a fallible operation.
func Annotate(err error, at token.Position) error {
	if err == nil {
		return nil
	}
	return &Annotated{Err: err, At: at}
}

func (a *Annotated) Error() string {
	if a.At.Filename == "" && !a.At.IsValid() {
		return a.Err.Error()
	}
	return fmt.Sprintf("%s: %s", a.At, a.Err)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (a *Annotated) Unwrap() error { return a.Err }

// Category delegates to the wrapped error when it is Categorized, so that an
// Annotated error still reports a meaningful kind.
func (a *Annotated) Category() string {
	var c Categorized
	if stderrors.As(a.Err, &c) {
		return c.Category()
	}
	return "error"
}

// PositionOf extracts the Position carried by err, if err is (or wraps) an
// *Annotated. It returns the zero Position otherwise.
func PositionOf(err error) token.Position {
	var a *Annotated
	if stderrors.As(err, &a) {
		return a.At
	}
	return token.Position{}
}

// Display renders err as "filename:line:col: kind: detail", matching
// spec.md §7's user-visible failure format. If err carries no position, the
// "filename:line:col: " prefix is omitted.
func Display(err error) string {
	if err == nil {
		return ""
	}
	kind := "error"
	var c Categorized
	if stderrors.As(err, &c) {
		kind = c.Category()
	}
	pos := PositionOf(err)
	if pos.Filename == "" && !pos.IsValid() {
		return fmt.Sprintf("%s: %s", kind, stripPosPrefix(err))
	}
	return fmt.Sprintf("%s: %s: %s", pos, kind, stripPosPrefix(err))
}

// stripPosPrefix returns the innermost, non-Annotated error's message, so
// Display never prints the position twice (once from pos, once embedded in
// Annotated.Error()'s own formatting).
func stripPosPrefix(err error) string {
	var a *Annotated
	if stderrors.As(err, &a) {
		return stripPosPrefix(a.Err)
	}
	return err.Error()
}
