package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/vm"
)

// Dasm disassembles each of args (flat binary .sbc programs) and prints
// the resulting textual listing to stdout.
func (c *Cmd) Dasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, in := range args {
		text, err := DasmFile(in)
		if err != nil {
			return printError(stdio, err)
		}
		if len(args) > 1 {
			fmt.Fprintf(stdio.Stdout, "; %s\n", in)
		}
		fmt.Fprintln(stdio.Stdout, text)
	}
	return nil
}

// DasmFile decodes the flat binary program at in and renders it as text.
func DasmFile(in string) (string, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return "", fmt.Errorf("dasm %s: %w", in, err)
	}
	p, err := vm.Decode(data)
	if err != nil {
		return "", fmt.Errorf("dasm %s: %w", in, err)
	}
	return asm.Dasm(p), nil
}
