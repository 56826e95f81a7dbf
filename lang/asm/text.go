package asm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/sage/lang/vm"
)

// This file implements a human-readable/writable form of the assembly IR,
// directly modeled on the reference architecture's own Asm/Dasm pair
// (lang/compiler/asm.go): one instruction per line, blank lines skipped,
// "//" lines kept as Comment instructions, "fun"/"if"/"while"/"end"/"else" delimiting nested
// scopes exactly like the in-memory Builder does. It exists so tests can
// drive the assembler and VM from a literal program without a surface
// parser (spec.md §6.3, §8 scenarios).
//
// Unlike the reference format there are no named sections: a Sage assembly
// program is just its instruction stream, since there is no separate
// constant pool or name table to declare up front.
//
//	fun double
//	  load 0
//	  add
//	end
//	set 21
//	store 0
//	call double

// Asm parses text into a flattened vm.Program. Labels referenced by "call"
// may appear before or after the "fun" that defines them: a first pass
// assigns every label its VM function id (replaying the same scope
// bookkeeping Builder.advance performs), so forward and recursive calls
// resolve exactly as they would through the programmatic Builder API.
func Asm(text string) (*vm.Program, error) {
	lines, err := scan(text)
	if err != nil {
		return nil, err
	}

	labelIDs, err := assignLabelIDs(lines)
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	for i, ln := range lines {
		if err := emitLine(b, ln, labelIDs); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if err := b.Finish(); err != nil {
		return nil, err
	}

	prog, err := b.Listing().Flatten()
	if err != nil {
		return nil, err
	}
	for _, ln := range lines {
		if op, ok := reverseMnemonic[ln.op]; ok && op.IsStandard() {
			prog.Standard = true
			break
		}
	}
	return prog, nil
}

type line struct {
	op     string
	args   []string
	label  string // fun's optional label
	raw    string
}

func scan(text string) ([]line, error) {
	var lines []line
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			lines = append(lines, line{op: "//", raw: strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))})
			continue
		}
		fields := strings.Fields(trimmed)
		ln := line{op: strings.ToLower(fields[0]), args: fields[1:]}
		if ln.op == "fun" && len(ln.args) > 0 {
			ln.label = ln.args[0]
			ln.args = nil
		}
		lines = append(lines, ln)
	}
	return lines, sc.Err()
}

// assignLabelIDs replays the Function/If/While/End scope bookkeeping over
// the whole token stream once, recording each "fun <label>" line's assigned
// id, without emitting anything. This mirrors advance() exactly because it
// is driven by the same sequence of scope-opening/closing tokens.
func assignLabelIDs(lines []line) (map[string]int64, error) {
	shadow := NewBuilder()
	ids := map[string]int64{}
	for _, ln := range lines {
		switch ln.op {
		case "fun":
			shadow.advance(vm.Function)
			if ln.label != "" {
				if _, dup := ids[ln.label]; dup {
					return nil, fmt.Errorf("label %q defined more than once", ln.label)
				}
				ids[ln.label] = shadow.fn
			}
		case "if", "while":
			shadow.advance(vm.If) // If and While bump the same counter
		case "end":
			shadow.advance(vm.End)
		}
	}
	return ids, nil
}

func emitLine(b *Builder, ln line, labelIDs map[string]int64) error {
	switch ln.op {
	case "//":
		b.Comment(ln.raw)
		return nil
	case "fun":
		b.openKinds = append(b.openKinds, vm.Function)
		b.push(Op{Instr: vm.Instr{Op: vm.Function}, Label: ln.label})
		return nil
	case "if":
		b.If()
		return nil
	case "while":
		b.While()
		return nil
	case "else":
		return b.Else()
	case "end":
		return b.End()
	case "call":
		if len(ln.args) != 1 {
			return fmt.Errorf("call: expected one label argument")
		}
		id, ok := labelIDs[ln.args[0]]
		if !ok {
			return &UndefinedLabel{Label: ln.args[0]}
		}
		b.push(Op{Instr: vm.Instr{Op: vm.Set, Ints: []int64{id}}})
		b.push(Op{Instr: vm.Instr{Op: vm.Call}})
		return nil
	case "ret":
		b.Emit(vm.Instr{Op: vm.Return})
		return nil
	case "set":
		ints := make([]int64, len(ln.args))
		for i, a := range ln.args {
			v, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("set: %w", err)
			}
			ints[i] = v
		}
		b.Emit(vm.Instr{Op: vm.Set, Ints: ints})
		return nil
	case "set-f":
		if len(ln.args) != 1 {
			return fmt.Errorf("set-f: expected one float argument")
		}
		f, err := strconv.ParseFloat(ln.args[0], 64)
		if err != nil {
			return fmt.Errorf("set-f: %w", err)
		}
		b.Emit(vm.Instr{Op: vm.SetFloat, Float: f})
		return nil
	case "store", "load", "mov":
		if len(ln.args) != 1 {
			return fmt.Errorf("%s: expected one integer argument", ln.op)
		}
		n, err := strconv.ParseInt(ln.args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", ln.op, err)
		}
		op := map[string]vm.Opcode{"store": vm.Store, "load": vm.Load, "mov": vm.Move}[ln.op]
		b.Emit(vm.Instr{Op: op, N: n})
		return nil
	case "get":
		in, err := parseInput(ln.args)
		if err != nil {
			return err
		}
		b.Emit(vm.Instr{Op: vm.Get, Input: in})
		return nil
	case "put":
		out, err := parseOutput(ln.args)
		if err != nil {
			return err
		}
		b.Emit(vm.Instr{Op: vm.Put, Output: out})
		return nil
	default:
		op, ok := reverseMnemonic[ln.op]
		if !ok {
			return fmt.Errorf("unknown opcode: %s", ln.op)
		}
		if len(ln.args) != 0 {
			return fmt.Errorf("%s: takes no arguments", ln.op)
		}
		b.Emit(vm.Instr{Op: op})
		return nil
	}
}

var reverseMnemonic = map[string]vm.Opcode{
	"where": vm.Where, "deref": vm.Deref, "refer": vm.Refer, "index": vm.Index,
	"add": vm.Add, "sub": vm.Sub, "mul": vm.Mul, "div": vm.Div, "rem": vm.Rem,
	"gez": vm.IsNonNegative, "nand": vm.BitwiseNand,
	"alloc": vm.Alloc, "free": vm.Free, "peek": vm.Peek, "poke": vm.Poke,
	"to-float": vm.ToFloat, "to-int": vm.ToInt,
	"add-f": vm.FAdd, "sub-f": vm.FSub, "mul-f": vm.FMul, "div-f": vm.FDiv, "rem-f": vm.FRem,
	"neg-f": vm.FNeg, "pow": vm.Pow, "sqrt": vm.Sqrt,
	"lt-f": vm.IsLessFloat, "gt-f": vm.IsGreaterFloat,
	"sin": vm.Sin, "cos": vm.Cos, "tan": vm.Tan, "asin": vm.ASin, "acos": vm.ACos, "atan": vm.ATan,
}

func parseInput(args []string) (vm.Input, error) {
	if len(args) == 0 {
		return vm.Input{}, fmt.Errorf("get: expected a mode argument")
	}
	switch args[0] {
	case "stdin-char":
		return vm.Input{Mode: vm.StdinChar}, nil
	case "stdin-int":
		return vm.Input{Mode: vm.StdinInt}, nil
	case "stdin-float":
		return vm.Input{Mode: vm.StdinFloat}, nil
	case "custom":
		if len(args) != 2 {
			return vm.Input{}, fmt.Errorf("get custom: expected a channel argument")
		}
		ch, err := strconv.Atoi(args[1])
		if err != nil {
			return vm.Input{}, fmt.Errorf("get custom: %w", err)
		}
		return vm.Input{Mode: vm.CustomInput, Channel: ch}, nil
	default:
		return vm.Input{}, fmt.Errorf("get: unknown mode %q", args[0])
	}
}

func parseOutput(args []string) (vm.Output, error) {
	if len(args) == 0 {
		return vm.Output{}, fmt.Errorf("put: expected a mode argument")
	}
	switch args[0] {
	case "stdout-char":
		return vm.Output{Mode: vm.StdoutChar}, nil
	case "stderr-char":
		return vm.Output{Mode: vm.StderrChar}, nil
	case "stdout-int":
		return vm.Output{Mode: vm.StdoutInt}, nil
	case "stderr-int":
		return vm.Output{Mode: vm.StderrInt}, nil
	case "stdout-float":
		return vm.Output{Mode: vm.StdoutFloat}, nil
	case "stderr-float":
		return vm.Output{Mode: vm.StderrFloat}, nil
	case "custom":
		if len(args) != 2 {
			return vm.Output{}, fmt.Errorf("put custom: expected a channel argument")
		}
		ch, err := strconv.Atoi(args[1])
		if err != nil {
			return vm.Output{}, fmt.Errorf("put custom: %w", err)
		}
		return vm.Output{Mode: vm.CustomOutput, Channel: ch}, nil
	default:
		return vm.Output{}, fmt.Errorf("put: unknown mode %q", args[0])
	}
}

// Dasm renders a flattened Program as text through Program.Print: a
// "function <id>:" header before each function body, a "main:" header
// before the entry stream, and Set operands in brackets ("set [21]"). Label
// names are not recovered (flattening has already replaced them with
// integer ids), and Asm does not parse this output back.
func Dasm(p *vm.Program) string {
	return p.Print(false)
}
