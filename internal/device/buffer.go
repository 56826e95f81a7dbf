// Package device provides Device implementations for the tape VM (spec.md
// §6): BufferDevice, a reference I/O device backed by in-memory queues, and
// StdioDevice, a thin adapter onto the process's real stdio.
package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mna/sage/lang/vm"
)

// BufferDevice is a reference vm.Device backed by an input queue and an
// output buffer, ported from original_source's WasmDevice (the Sage
// compiler's own testing device): it decodes StdinInt/StdinFloat from a
// decimal-digit prefix of whatever's left in the queue, the same scanning
// rule spec.md §6 specifies, and renders Stdout/Stderr output by appending
// to Output rather than distinguishing the two streams (both sides of the
// distinction only matter once bytes leave the process, which a buffer
// never does).
type BufferDevice struct {
	input  []rune
	Output []int64
}

// NewBufferDevice returns a BufferDevice preloaded with input's runes.
func NewBufferDevice(input string) *BufferDevice {
	return &BufferDevice{input: []rune(input)}
}

// OutputString renders Output as Put would have written it to a real
// stdout: StdoutChar/StderrChar bytes concatenated verbatim.
func (d *BufferDevice) OutputString() string {
	var sb strings.Builder
	for _, v := range d.Output {
		sb.WriteRune(rune(v))
	}
	return sb.String()
}

func (d *BufferDevice) Peek() (int64, error) { return 0, nil }
func (d *BufferDevice) Poke(int64) error     { return nil }

func (d *BufferDevice) popRune() (rune, bool) {
	if len(d.input) == 0 {
		return 0, false
	}
	r := d.input[0]
	d.input = d.input[1:]
	return r, true
}

func (d *BufferDevice) peekRune() (rune, bool) {
	if len(d.input) == 0 {
		return 0, false
	}
	return d.input[0], true
}

func (d *BufferDevice) skipSpace() {
	for {
		r, ok := d.peekRune()
		if !ok || !isSpace(r) {
			return
		}
		d.popRune()
	}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (d *BufferDevice) getInt() int64 {
	d.skipSpace()
	var result int64
	for {
		r, ok := d.peekRune()
		if !ok || !isDigit(r) {
			return result
		}
		result = result*10 + int64(r-'0')
		d.popRune()
	}
}

func (d *BufferDevice) getFloat() float64 {
	whole := float64(d.getInt())
	r, ok := d.peekRune()
	if !ok || r != '.' {
		return whole
	}
	d.popRune()
	var digits strings.Builder
	for {
		r, ok := d.peekRune()
		if !ok || !isDigit(r) {
			break
		}
		digits.WriteRune(r)
		d.popRune()
	}
	if digits.Len() == 0 {
		return whole
	}
	frac, err := strconv.ParseFloat("0."+digits.String(), 64)
	if err != nil {
		return whole
	}
	return whole + frac
}

func (d *BufferDevice) Get(src vm.Input) (int64, error) {
	switch src.Mode {
	case vm.StdinChar:
		r, ok := d.popRune()
		if !ok {
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

func (d *BufferDevice) putInt(val int64) {
	for _, r := range strconv.FormatInt(val, 10) {
		d.Output = append(d.Output, int64(r))
	}
}

func (d *BufferDevice) putFloat(val float64) {
	for _, r := range strconv.FormatFloat(val, 'g', -1, 64) {
		d.Output = append(d.Output, int64(r))
	}
}

func (d *BufferDevice) Put(val int64, dst vm.Output) error {
	switch dst.Mode {
	case vm.StdoutChar, vm.StderrChar:
		d.Output = append(d.Output, val)
	case vm.StdoutInt, vm.StderrInt:
		d.putInt(val)
	case vm.StdoutFloat, vm.StderrFloat:
		d.putFloat(cellToFloat(val))
	default:
		return &vm.UnsupportedDevice{Mode: dst.String()}
	}
	return nil
}

// CallExtern reports UnsupportedDevice: BufferDevice has no host procedures
// registered, matching the teacher's own machine package's rule that a
// collaborator with no support for a facility fails explicitly rather than
// silently no-opping.
func (d *BufferDevice) CallExtern(name string, _ []int64) ([]int64, error) {
	return nil, &vm.UnsupportedDevice{Mode: fmt.Sprintf("extern %s", name)}
}

func floatToCell(f float64) int64      { return int64(math.Float64bits(f)) }
func cellToFloat(c int64) float64      { return math.Float64frombits(uint64(c)) }
