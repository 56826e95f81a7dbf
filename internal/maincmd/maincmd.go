// Package maincmd implements the sage command-line tool's command
// dispatch, modeled on the reference architecture's own internal/maincmd:
// a single Cmd struct whose exported methods (Asm, Dasm, Run, Build) are
// discovered by reflection and bound to CLI subcommand names.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
	"github.com/mna/sage/internal/xlog"
)

const binName = "sage"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -h|--help
       %[1]s -v|--version

Assembler, disassembler and interpreter for the Sage tape VM.

The <command> can be one of:
       asm <file.sasm>           Assemble a textual program to the flat
                                  binary format (spec.md §6.2), written
                                  next to the input with a .sbc extension
                                  unless --out is given.
       dasm <file.sbc>           Disassemble a flat binary program back to
                                  its textual listing, printed to stdout.
       run <file.sasm|file.sbc>  Assemble (or decode) and interpret a
                                  program, wiring stdin/stdout/stderr
                                  through to the running thread.
       build <file.sasm>...      Assemble any number of textual programs
                                  concurrently, each to its own .sbc file.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --out <path>              Output path for asm (default: derived
                                  from the input path).
       --verbose                 Enable debug-level logging to stderr.

More information on the sage repository:
       https://github.com/mna/sage
`, binName)
)

// Cmd is the CLI entry point, bound to mainer's flag parser and command
// dispatcher exactly as the reference architecture's own Cmd is.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`
	Out     string `flag:"out"`
	Verbose bool   `flag:"verbose"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
	log   *slog.Logger
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	if c.Out != "" && cmdName == "build" {
		return errors.New("build: --out is not supported with multiple inputs, use the default naming")
	}
	return nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	c.log = xlog.Default(c.Verbose)

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds mirrors the reference architecture's own reflection-based
// dispatch: any exported method matching the (context.Context, mainer.Stdio,
// []string) error shape becomes a subcommand named after it, lowercased.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
