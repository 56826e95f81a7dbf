// Package asm implements the assembly IR of spec.md §4.2-§4.3: a symbolic
// Location algebra, core and standard assembly opcodes addressing it, and
// the scope-tracking assembler that lowers both into a flattened vm.Program.
package asm

import "fmt"

// Unmatched is raised when an End does not close an open Fn/If/While scope,
// or when a scope is left open at the end of the program (spec.md §4.3).
type Unmatched struct {
	Op    string
	Index int
}

func (e *Unmatched) Error() string {
	return fmt.Sprintf("unmatched %s at instruction %d", e.Op, e.Index)
}

func (e *Unmatched) Category() string { return "asm" }

// UnsupportedInstruction is raised when a standard-tier operation is
// assembled against a Location that does not implement it (spec.md §4.2).
type UnsupportedInstruction struct {
	Op string
}

func (e *UnsupportedInstruction) Error() string {
	return fmt.Sprintf("unsupported instruction: %s", e.Op)
}

func (e *UnsupportedInstruction) Category() string { return "asm" }

// UndefinedLabel is raised when Call references a procedure label that was
// never defined by a matching Fn.
type UndefinedLabel struct {
	Label string
}

func (e *UndefinedLabel) Error() string {
	return fmt.Sprintf("call to undefined label %q", e.Label)
}

func (e *UndefinedLabel) Category() string { return "asm" }
