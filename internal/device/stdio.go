package device

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/mna/sage/lang/vm"
)

// StdioDevice adapts the process's real stdin/stdout/stderr to vm.Device,
// for `internal/maincmd run` (BufferDevice stays the one used by tests and
// by nothing else, the same split original_source draws between its
// WasmDevice and a real terminal target).
type StdioDevice struct {
	in  *bufio.Reader
	out io.Writer
	err io.Writer
}

// NewStdioDevice wraps in/out/err (normally os.Stdin/os.Stdout/os.Stderr).
func NewStdioDevice(in io.Reader, out, err io.Writer) *StdioDevice {
	return &StdioDevice{in: bufio.NewReader(in), out: out, err: err}
}

func (d *StdioDevice) Peek() (int64, error) { return 0, nil }
func (d *StdioDevice) Poke(int64) error     { return nil }

func (d *StdioDevice) skipSpace() {
	for {
		r, _, err := d.in.ReadRune()
		if err != nil {
			return
		}
		if !isSpace(r) {
			d.in.UnreadRune()
			return
		}
	}
}

func (d *StdioDevice) getInt() int64 {
	d.skipSpace()
	var result int64
	for {
		r, _, err := d.in.ReadRune()
		if err != nil {
			return result
		}
		if !isDigit(r) {
			d.in.UnreadRune()
			return result
		}
		result = result*10 + int64(r-'0')
	}
}

func (d *StdioDevice) getFloat() float64 {
	whole := float64(d.getInt())
	r, _, err := d.in.ReadRune()
	if err != nil {
		return whole
	}
	if r != '.' {
		d.in.UnreadRune()
		return whole
	}
	var digits []rune
	for {
		r, _, err := d.in.ReadRune()
		if err != nil {
			break
		}
		if !isDigit(r) {
			d.in.UnreadRune()
			break
		}
		digits = append(digits, r)
	}
	if len(digits) == 0 {
		return whole
	}
	frac, err := strconv.ParseFloat("0."+string(digits), 64)
	if err != nil {
		return whole
	}
	return whole + frac
}

func (d *StdioDevice) Get(src vm.Input) (int64, error) {
	switch src.Mode {
	case vm.StdinChar:
		r, _, err := d.in.ReadRune()
		if err != nil {
			return 0, nil
		}
		return int64(r), nil
	case vm.StdinInt:
		return d.getInt(), nil
	case vm.StdinFloat:
		return floatToCell(d.getFloat()), nil
	default:
		return 0, &vm.UnsupportedDevice{Mode: src.String()}
	}
}

func (d *StdioDevice) writerFor(mode vm.OutputMode) io.Writer {
	switch mode {
	case vm.StderrChar, vm.StderrInt, vm.StderrFloat:
		return d.err
	default:
		return d.out
	}
}

func (d *StdioDevice) Put(val int64, dst vm.Output) error {
	w := d.writerFor(dst.Mode)
	switch dst.Mode {
	case vm.StdoutChar, vm.StderrChar:
		_, err := fmt.Fprint(w, string(rune(val)))
		return err
	case vm.StdoutInt, vm.StderrInt:
		_, err := fmt.Fprint(w, strconv.FormatInt(val, 10))
		return err
	case vm.StdoutFloat, vm.StderrFloat:
		_, err := fmt.Fprint(w, strconv.FormatFloat(cellToFloat(val), 'g', -1, 64))
		return err
	default:
		return &vm.UnsupportedDevice{Mode: dst.String()}
	}
}

// CallExtern reports UnsupportedDevice: a plain stdio device has no host
// procedures registered.
func (d *StdioDevice) CallExtern(name string, _ []int64) ([]int64, error) {
	return nil, &vm.UnsupportedDevice{Mode: fmt.Sprintf("extern %s", name)}
}
