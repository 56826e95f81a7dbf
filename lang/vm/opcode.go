// Package vm implements the tape-and-register virtual machine described in
// spec.md §4.1: a flat, addressable program of core (and optionally
// standard) instructions, executed by a single-threaded interpreter loop.
//
// Much of this package's shape — a byte opcode, a flattening pass that
// un-nests function bodies into an id-addressed table, and a dispatch-loop
// interpreter over an explicit register/stack — is adapted from the
// reference architecture's compiler/machine packages, retargeted from their
// operand-stack bytecode to Sage's tape-and-register core instruction set.
package vm

import "fmt"

// Opcode identifies a single VM instruction. The core subset (spec.md §4.1)
// is guaranteed on every target; the standard subset extends it with
// floats, trigonometry, heap management and I/O conveniences, and may be
// absent on constrained targets.
type Opcode uint8

const ( //nolint:revive
	// --- core: control flow ---
	Function Opcode = iota
	Call
	Return
	While
	If
	Else
	End

	// --- core: memory ---
	Set   // load constant(s) into the register (see Instr.Ints)
	Store // tape[ptr] = register
	Load  // register = tape[ptr]
	Move  // ptr += delta
	Where // register = ptr
	Deref // push ptr, then ptr = tape[ptr]
	Refer // ptr = pop()
	Index // ptr = register + tape[ptr]

	// --- core: arithmetic ---
	Add
	Sub
	Mul
	Div
	Rem
	IsNonNegative
	BitwiseNand

	// --- core: I/O ---
	Get
	Put

	// Comment is a no-op at execution time, preserved through the pipeline
	// for disassembly/debugging.
	Comment

	coreMax = Comment

	// --- standard: heap ---
	Alloc Opcode = iota - 1 // coreMax above used one iota value
	Free
	Peek
	Poke

	// --- standard: floats ---
	SetFloat
	ToFloat
	ToInt
	FAdd
	FSub
	FMul
	FDiv
	FRem
	FNeg
	Pow
	Sqrt
	IsLessFloat
	IsGreaterFloat

	// --- standard: trigonometry ---
	Sin
	Cos
	Tan
	ASin
	ACos
	ATan

	// --- standard: foreign calls ---
	// CallExtern invokes a named host procedure (spec.md §4.5's FFI
	// contract), passing Ints[0] argument cells and Ints[1] return cells
	// read from/written to the tape starting at Addr.
	CallExtern

	standardMax = CallExtern
)

var opcodeNames = [...]string{
	Function:      "fun",
	Call:          "call",
	Return:        "ret",
	While:         "while",
	If:            "if",
	Else:          "else",
	End:           "end",
	Set:           "set",
	Store:         "store",
	Load:          "load",
	Move:          "mov",
	Where:         "where",
	Deref:         "deref",
	Refer:         "refer",
	Index:         "index",
	Add:           "add",
	Sub:           "sub",
	Mul:           "mul",
	Div:           "div",
	Rem:           "rem",
	IsNonNegative: "gez",
	BitwiseNand:   "nand",
	Get:           "get",
	Put:           "put",
	Comment:       "comment",
	Alloc:         "alloc",
	Free:          "free",
	Peek:          "peek",
	Poke:          "poke",
	SetFloat:      "set-f",
	ToFloat:       "to-float",
	ToInt:         "to-int",
	FAdd:          "add-f",
	FSub:          "sub-f",
	FMul:          "mul-f",
	FDiv:          "div-f",
	FRem:          "rem-f",
	FNeg:          "neg-f",
	Pow:           "pow",
	Sqrt:          "sqrt",
	IsLessFloat:   "lt-f",
	IsGreaterFloat: "gt-f",
	Sin:           "sin",
	Cos:           "cos",
	Tan:           "tan",
	ASin:          "asin",
	ACos:          "acos",
	ATan:          "atan",
	CallExtern:    "call-extern",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// IsCore reports whether op belongs to the guaranteed core subset.
func (op Opcode) IsCore() bool { return op <= coreMax }

// IsStandard reports whether op belongs to the optional standard subset.
func (op Opcode) IsStandard() bool { return op > coreMax && op <= standardMax }

// opensScope reports whether op begins a nested scope that must be matched
// by a corresponding End during flattening (spec.md §4.1 step 3).
func (op Opcode) opensScope() bool { return op == If || op == While }

// Instr is a single instruction, nested or flat. Only the fields relevant
// to Op are populated; the rest are zero.
type Instr struct {
	Op      Opcode
	Ints    []int64 // Set: constant(s) to load; CallExtern: [argCells, retCells]
	N       int64   // Store/Load: tape offset from ptr; Move: delta
	Float   float64 // SetFloat: constant to load
	Input   Input   // Get
	Output  Output  // Put
	Comment string  // Comment
	Extern  string  // CallExtern: host procedure name
	Addr    int64   // CallExtern: tape address of the argument/return buffer
}

func (i Instr) String() string {
	switch i.Op {
	case Set:
		return fmt.Sprintf("set %v", i.Ints)
	case SetFloat:
		return fmt.Sprintf("set-f %v", i.Float)
	case Store, Load:
		return fmt.Sprintf("%s %d", i.Op, i.N)
	case Move:
		return fmt.Sprintf("mov %d", i.N)
	case Get:
		return fmt.Sprintf("get %s", i.Input)
	case Put:
		return fmt.Sprintf("put %s", i.Output)
	case Comment:
		return "// " + i.Comment
	case CallExtern:
		return fmt.Sprintf("call-extern %s @%d (%v)", i.Extern, i.Addr, i.Ints)
	default:
		return i.Op.String()
	}
}
