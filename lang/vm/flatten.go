package vm

// Listing is a nested program: a linear sequence of instructions in which
// Function opens a scope whose body is not executed in place, and If/While
// open scopes that are. This is the shape the assembler (lang/asm) emits;
// Flatten turns it into a Program addressable by function id at call time.
type Listing []Instr

// FuncBody is the flattened body of a single function, addressed by its id
// (the index into Program.Functions).
type FuncBody struct {
	Code []Instr
}

// Program is a flattened VM program: every function body defined
// sequentially ahead of the entry-point "main" stream, as required by
// spec.md §4.1 step 6 ("Emission order: function bodies in ascending id,
// followed by main").
type Program struct {
	Standard  bool // true if this program may use standard-tier opcodes
	Functions []FuncBody
	Main      []Instr
}

type scopeFrame struct {
	fn      int
	counter int
}

// Flatten implements spec.md §4.1's flattening algorithm: walk the nested
// listing, tracking the function currently being defined and a counter of
// still-open If/While scopes inside it, pushing/popping across nested
// Function definitions. This is adapted from the reference Sage compiler's
// own vm::core::flatten (see DESIGN.md).
func (l Listing) Flatten() (*Program, error) {
	bodies := map[int][]Instr{}
	seenIDs := map[int]bool{}
	fn := -1 // -1 == main
	counter := 0
	var stack []scopeFrame
	var main []Instr

	for _, op := range l {
		if op.Op != Function {
			if len(stack) == 0 {
				main = append(main, op)
			}
		}

		switch op.Op {
		case Function:
			stack = append(stack, scopeFrame{fn: fn, counter: counter})
			counter = 0
			fn++
			// Collision count excludes the -1 (main) key, mirroring
			// lang/asm.Builder.advance's seenIDs bookkeeping exactly, so
			// ids stay contiguous and match what Builder predicted for
			// any Call emitted ahead of this Function's id being known.
			if seenIDs[fn] {
				fn = len(seenIDs)
			}
			seenIDs[fn] = true
			continue

		case If, While:
			counter++

		case End:
			if counter == 0 {
				bodies[fn] = append(bodies[fn], op)
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				fn, counter = top.fn, top.counter
				continue
			}
			counter--
		}

		bodies[fn] = append(bodies[fn], op)
	}

	nFuncs := len(seenIDs)
	prog := &Program{Functions: make([]FuncBody, nFuncs), Main: main}
	for i := 0; i < nFuncs; i++ {
		prog.Functions[i] = FuncBody{Code: bodies[i]}
	}
	return prog, nil
}
