package vm

import (
	"fmt"
	"strings"
)

// Print renders a nested Listing using the textual convention of spec.md
// §6: Fn/If/While bodies are nested by three-space indents, Comment lines
// render as "// text", and when hex is true each non-comment line is
// prefixed by its 0-padded hex instruction index.
func (l Listing) Print(hex bool) string {
	var b strings.Builder
	indent := 0
	idx := 0
	for _, op := range l {
		if op.Op == Comment {
			b.WriteString(strings.Repeat("   ", indent))
			fmt.Fprintf(&b, "// %s\n", op.Comment)
			continue
		}
		if hex {
			fmt.Fprintf(&b, "%08x: ", idx)
		}
		idx++

		lineIndent := indent
		switch op.Op {
		case Function, If, While:
			indent++
		case End:
			indent--
			lineIndent = indent
		}
		b.WriteString(strings.Repeat("   ", lineIndent))
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Print renders a flattened Program the same way, one function at a time
// (in ascending id order) followed by main, each function body wrapped in
// a synthetic Function/End pair for display purposes: a Function op is put
// in front of the body, and the End that closes the pair is the one every
// flattened body already ends with. With hex set, the synthetic Function
// line takes index 0 of its function's listing.
func (p *Program) Print(hex bool) string {
	var b strings.Builder
	for id, fn := range p.Functions {
		fmt.Fprintf(&b, "function %d:\n", id)
		body := append(Listing{{Op: Function}}, fn.Code...)
		b.WriteString(body.Print(hex))
	}
	b.WriteString("main:\n")
	b.WriteString(Listing(p.Main).Print(hex))
	return b.String()
}
