package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"
	"github.com/mna/sage/internal/device"
	"github.com/mna/sage/lang/asm"
	"github.com/mna/sage/lang/vm"
)

// Default resource limits for a run'd thread, chosen generously enough
// that a well-behaved program never hits them; --tape-size etc. on Cmd
// would let a caller raise them, but no program in this repository's own
// tests needs to.
const (
	defaultTapeSize     = 1 << 16
	defaultMaxRecursion = 1024
	defaultMaxSteps     = 1 << 24
)

// Run assembles (or decodes) and interprets each of args in turn, wiring
// the process's own stdin/stdout/stderr through a StdioDevice.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, in := range args {
		c.log.Debug("running", "file", in)
		if err := RunFile(ctx, stdio, in); err != nil {
			return printError(stdio, err)
		}
	}
	return nil
}

// RunFile loads the program at in (assembling it if it ends in .sasm,
// otherwise decoding the flat binary format) and runs it to completion.
func RunFile(ctx context.Context, stdio mainer.Stdio, in string) error {
	p, err := loadProgram(in)
	if err != nil {
		return err
	}

	dev := device.NewStdioDevice(stdio.Stdin, stdio.Stdout, stdio.Stderr)
	th := vm.NewThread(defaultTapeSize, dev, defaultMaxRecursion, defaultMaxSteps)
	if err := th.Run(p); err != nil {
		return fmt.Errorf("run %s: %w", in, err)
	}
	return nil
}

func loadProgram(in string) (*vm.Program, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", in, err)
	}
	if strings.HasSuffix(in, ".sasm") {
		p, err := asm.Asm(string(data))
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", in, err)
		}
		return p, nil
	}
	p, err := vm.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", in, err)
	}
	return p, nil
}
