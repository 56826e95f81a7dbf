package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"
	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/vm"
)

// Asm assembles each of args (textual .sasm programs) to the flat binary
// format, writing each result next to its input with a .sbc extension
// unless --out is given (valid only for a single input file).
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if c.Out != "" && len(args) != 1 {
		return printError(stdio, fmt.Errorf("asm: --out requires exactly one input file, got %d", len(args)))
	}

	for _, in := range args {
		out := c.Out
		if out == "" {
			out = outPathFor(in, ".sbc")
		}
		if err := AsmFile(in, out); err != nil {
			return printError(stdio, err)
		}
		fmt.Fprintf(stdio.Stdout, "%s -> %s\n", in, out)
	}
	return nil
}

// AsmFile assembles the textual program at in and writes the flat binary
// encoding to out.
func AsmFile(in, out string) error {
	src, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("asm %s: %w", in, err)
	}
	p, err := asm.Asm(string(src))
	if err != nil {
		return fmt.Errorf("asm %s: %w", in, err)
	}
	data, err := vm.Encode(p)
	if err != nil {
		return fmt.Errorf("asm %s: %w", in, err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("asm %s: %w", in, err)
	}
	return nil
}

// outPathFor derives an output path from in by replacing its extension
// with newExt (or appending it, if in's filename has none).
func outPathFor(in, newExt string) string {
	base := strings.LastIndexByte(in, '/') + 1
	if i := strings.LastIndexByte(in[base:], '.'); i >= 0 {
		return in[:base+i] + newExt
	}
	return in + newExt
}
