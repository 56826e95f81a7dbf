package vm

import "math"

// NullCell is the null-pointer sentinel (spec.md §6): the smallest value
// representable in a signed 8-bit cell. Implementations that widen cells
// must preserve this exact numeric value.
const NullCell int64 = -128

// block records, for a single If/While/Else/End occurrence inside one flat
// instruction stream, the jump targets needed to execute structured control
// flow without re-walking the nested tree: buildJumps computes these once
// per function body before the first instruction runs.
type block struct {
	elseIdx int // If only: matching Else index, or -1
	endIdx  int // If/While only: matching End index
	owner   int // Else/End only: index of the opening If/While
}

func buildJumps(code []Instr) map[int]*block {
	blocks := map[int]*block{}
	var stack []int
	for i, in := range code {
		switch in.Op {
		case If, While:
			blocks[i] = &block{elseIdx: -1}
			stack = append(stack, i)
		case Else:
			if n := len(stack); n > 0 {
				owner := stack[n-1]
				blocks[owner].elseIdx = i
				blocks[i] = &block{owner: owner}
			}
		case End:
			if n := len(stack); n > 0 {
				owner := stack[n-1]
				stack = stack[:n-1]
				blocks[owner].endIdx = i
				blocks[i] = &block{owner: owner}
			} else {
				// Closes the function body itself, not an If/While: falling
				// off the end of a function is an implicit return.
				blocks[i] = &block{owner: -1}
			}
		}
	}
	return blocks
}

type heapBlock struct {
	addr int64
	size int64
}

// Thread is a single execution of a Program: one register, one tape, one
// pointer, and the bookkeeping an interpreter needs on top of that (the
// small internal pointer stack behind Deref/Refer, a call depth counter
// bounding recursion, and a bump-or-freelist heap region for Alloc/Free).
// It corresponds to the single-threaded, single-instruction-pointer
// machine of spec.md §5: there is exactly one Thread per run, and nothing
// about it is safe to share across goroutines.
type Thread struct {
	Device Device
	Tape   []int64

	// MaxRecursionDepth bounds nested Call frames, mirroring the
	// allowed_recursion_depth cells the real machine reserves for saved
	// frame pointers (spec.md §4.2, §5). Zero means unbounded.
	MaxRecursionDepth int
	// MaxSteps is an optional externally imposed instruction-count budget
	// (spec.md §5); zero means unbounded.
	MaxSteps int64

	Register int64
	ptr      int64
	ptrStack []int64
	callDepth int

	// HeapStart is the first tape cell the allocator may hand out; set it
	// past whatever low region the assembler's prelude reserves for
	// spilled registers and the frame-pointer stack.
	HeapStart int64

	heapTop    int64
	allocSizes map[int64]int64
	freeList   []heapBlock

	steps   int64
	program *Program
}

// NewThread creates a Thread over a fresh tape of the given size.
func NewThread(tapeSize int, device Device, maxRecursionDepth int, maxSteps int64) *Thread {
	return &Thread{
		Device:            device,
		Tape:              make([]int64, tapeSize),
		MaxRecursionDepth: maxRecursionDepth,
		MaxSteps:          maxSteps,
		allocSizes:        map[int64]int64{},
	}
}

// errControl is returned internally by exec to unwind a Return without
// treating it as a runtime failure; it never escapes Run.
type errControl struct{}

func (errControl) Error() string { return "return" }

var errReturn error = errControl{}

// Run executes p's main stream to completion (or until a runtime error).
func (th *Thread) Run(p *Program) error {
	th.program = p
	if err := th.exec(p.Main); err != nil && err != errReturn {
		return err
	}
	return nil
}

func (th *Thread) exec(code []Instr) error {
	blocks := buildJumps(code)
	pc := 0
	for pc < len(code) {
		if th.MaxSteps > 0 && th.steps >= th.MaxSteps {
			return &StepBudgetExceeded{Limit: th.MaxSteps}
		}
		th.steps++
		in := code[pc]

		switch in.Op {
		case If:
			if th.Register != 0 {
				pc++
				continue
			}
			b := blocks[pc]
			if b.elseIdx >= 0 {
				pc = b.elseIdx + 1
			} else {
				pc = b.endIdx + 1
			}
			continue

		case While:
			if th.Register == 0 {
				pc = blocks[pc].endIdx + 1
			} else {
				pc++
			}
			continue

		case Else:
			pc = blocks[blocks[pc].owner].endIdx + 1
			continue

		case End:
			owner := blocks[pc].owner
			if owner == -1 {
				return errReturn
			}
			if code[owner].Op == While {
				pc = owner
			} else {
				pc++
			}
			continue

		case Call:
			id := th.Register
			if id < 0 || int(id) >= len(th.program.Functions) {
				return &UndefinedFunction{ID: id}
			}
			if th.MaxRecursionDepth > 0 && th.callDepth >= th.MaxRecursionDepth {
				return &StackOverflow{AtInstruction: pc}
			}
			th.callDepth++
			err := th.exec(th.program.Functions[id].Code)
			th.callDepth--
			if err != nil && err != errReturn {
				return err
			}
			pc++
			continue

		case Return:
			return errReturn

		default:
			if err := th.step(in, pc); err != nil {
				return err
			}
			pc++
		}
	}
	return nil
}

func (th *Thread) cellAt(idx int64) (int64, error) {
	if idx < 0 || int(idx) >= len(th.Tape) {
		return 0, &OutOfBounds{Index: idx, Size: len(th.Tape)}
	}
	return th.Tape[idx], nil
}

func (th *Thread) setCellAt(idx int64, v int64) error {
	if idx < 0 || int(idx) >= len(th.Tape) {
		return &OutOfBounds{Index: idx, Size: len(th.Tape)}
	}
	th.Tape[idx] = v
	return nil
}

func boolCell(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// step executes a single non-control-flow instruction, mutating the
// register, tape, pointer and pointer stack as described by spec.md §4.1
// ("core: memory"/"core: arithmetic") and §4.2/§5 ("standard: heap"/
// "standard: floats"/"standard: trigonometry").
func (th *Thread) step(in Instr, pc int) error {
	switch in.Op {
	case Comment:
		return nil

	case Set:
		if len(in.Ints) == 0 {
			return nil
		}
		th.Register = in.Ints[0]
		for i, v := range in.Ints[1:] {
			if err := th.setCellAt(th.ptr+int64(i)+1, v); err != nil {
				return err
			}
		}
		return nil

	case Store:
		return th.setCellAt(th.ptr+in.N, th.Register)

	case Load:
		v, err := th.cellAt(th.ptr + in.N)
		if err != nil {
			return err
		}
		th.Register = v
		return nil

	case Move:
		th.ptr += in.N
		return nil

	case Where:
		th.Register = th.ptr
		return nil

	case Deref:
		cell, err := th.cellAt(th.ptr)
		if err != nil {
			return err
		}
		th.ptrStack = append(th.ptrStack, th.ptr)
		th.ptr = cell
		return nil

	case Refer:
		if len(th.ptrStack) == 0 {
			return &PointerStackUnderflow{AtInstruction: pc}
		}
		n := len(th.ptrStack) - 1
		th.ptr = th.ptrStack[n]
		th.ptrStack = th.ptrStack[:n]
		return nil

	case Index:
		cell, err := th.cellAt(th.ptr)
		if err != nil {
			return err
		}
		th.ptr = th.Register + cell
		return nil

	case Add, Sub, Mul, Div, Rem, BitwiseNand:
		cell, err := th.cellAt(th.ptr)
		if err != nil {
			return err
		}
		switch in.Op {
		case Add:
			th.Register += cell
		case Sub:
			th.Register -= cell
		case Mul:
			th.Register *= cell
		case Div:
			if cell == 0 {
				return &DivideByZero{}
			}
			th.Register /= cell
		case Rem:
			if cell == 0 {
				return &DivideByZero{}
			}
			th.Register %= cell
		case BitwiseNand:
			th.Register = ^(th.Register & cell)
		}
		return nil

	case IsNonNegative:
		th.Register = boolCell(th.Register >= 0)
		return nil

	case Get:
		v, err := th.Device.Get(in.Input)
		if err != nil {
			return err
		}
		th.Register = v
		return nil

	case Put:
		return th.Device.Put(th.Register, in.Output)

	case Alloc:
		th.Register = th.alloc(th.Register)
		return nil

	case Free:
		th.free(th.Register)
		return nil

	case Peek:
		v, err := th.Device.Peek()
		if err != nil {
			return err
		}
		th.Register = v
		return nil

	case Poke:
		return th.Device.Poke(th.Register)

	case CallExtern:
		return th.callExtern(in)

	case SetFloat:
		th.Register = floatToCell(in.Float)
		return nil

	case ToFloat:
		th.Register = floatToCell(float64(th.Register))
		return nil

	case ToInt:
		th.Register = int64(cellToFloat(th.Register))
		return nil

	case FAdd, FSub, FMul, FDiv, FRem, Pow, IsLessFloat, IsGreaterFloat:
		cell, err := th.cellAt(th.ptr)
		if err != nil {
			return err
		}
		a, b := cellToFloat(th.Register), cellToFloat(cell)
		switch in.Op {
		case FAdd:
			th.Register = floatToCell(a + b)
		case FSub:
			th.Register = floatToCell(a - b)
		case FMul:
			th.Register = floatToCell(a * b)
		case FDiv:
			if b == 0 {
				return &DivideByZero{}
			}
			th.Register = floatToCell(a / b)
		case FRem:
			if b == 0 {
				return &DivideByZero{}
			}
			th.Register = floatToCell(math.Mod(a, b))
		case Pow:
			th.Register = floatToCell(math.Pow(a, b))
		case IsLessFloat:
			th.Register = boolCell(a < b)
		case IsGreaterFloat:
			th.Register = boolCell(a > b)
		}
		return nil

	case FNeg:
		th.Register = floatToCell(-cellToFloat(th.Register))
		return nil

	case Sqrt:
		th.Register = floatToCell(math.Sqrt(cellToFloat(th.Register)))
		return nil

	case Sin, Cos, Tan, ASin, ACos, ATan:
		f := cellToFloat(th.Register)
		switch in.Op {
		case Sin:
			th.Register = floatToCell(math.Sin(f))
		case Cos:
			th.Register = floatToCell(math.Cos(f))
		case Tan:
			th.Register = floatToCell(math.Tan(f))
		case ASin:
			th.Register = floatToCell(math.Asin(f))
		case ACos:
			th.Register = floatToCell(math.Acos(f))
		case ATan:
			th.Register = floatToCell(math.Atan(f))
		}
		return nil
	}

	return &StandardOpcodeDisabled{Op: in.Op}
}

// callExtern reads in.Ints[0] argument cells from the tape at in.Addr, hands
// them to the Device, and writes back up to in.Ints[1] result cells at the
// same address (spec.md §4.5: "FFI procedures compile to a single
// CallExtern(name, arg_types, ret_type) standard op").
func (th *Thread) callExtern(in Instr) error {
	argc, retc := 0, 0
	if len(in.Ints) > 0 {
		argc = int(in.Ints[0])
	}
	if len(in.Ints) > 1 {
		retc = int(in.Ints[1])
	}

	args := make([]int64, argc)
	for i := range args {
		v, err := th.cellAt(in.Addr + int64(i))
		if err != nil {
			return err
		}
		args[i] = v
	}

	results, err := th.Device.CallExtern(in.Extern, args)
	if err != nil {
		return err
	}
	for i := 0; i < retc && i < len(results); i++ {
		if err := th.setCellAt(in.Addr+int64(i), results[i]); err != nil {
			return err
		}
	}
	return nil
}

// alloc returns the address of a region of at least n cells, preferring the
// smallest free block that fits before extending the bump pointer, per spec.md §5's
// heap contract. It returns NullCell once the tape is exhausted.
func (th *Thread) alloc(n int64) int64 {
	if n <= 0 {
		return NullCell
	}
	best := -1
	for i, b := range th.freeList {
		if b.size >= n && (best == -1 || b.size < th.freeList[best].size) {
			best = i
		}
	}
	if best >= 0 {
		addr := th.freeList[best].addr
		th.freeList = append(th.freeList[:best], th.freeList[best+1:]...)
		th.allocSizes[addr] = n
		return addr
	}
	if th.heapTop < th.HeapStart {
		th.heapTop = th.HeapStart
	}
	addr := th.heapTop
	if addr+n > int64(len(th.Tape)) {
		return NullCell
	}
	th.heapTop += n
	th.allocSizes[addr] = n
	return addr
}

func (th *Thread) free(addr int64) {
	size, ok := th.allocSizes[addr]
	if !ok {
		return
	}
	delete(th.allocSizes, addr)
	th.freeList = append(th.freeList, heapBlock{addr: addr, size: size})
}
