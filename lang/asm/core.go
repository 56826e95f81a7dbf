package asm

import "github.com/mna/sage/lang/vm"

// CoreOp and StandardOp (spec.md §4.3) are not given separate Go types here:
// every leaf operation the assembler can emit is already a vm.Instr, and
// vm.Opcode.IsCore/IsStandard already partitions them into exactly the two
// tiers the spec names. Giving CoreOp/StandardOp their own sum type would
// just duplicate that partition one level up, so Builder.Op wraps vm.Instr
// directly and Program (below) is what enforces the tier a target actually
// allows, the same enforcement CoreOp/StandardOp would otherwise carry.

// Program finalizes the Builder into a flattened vm.Program tagged for the
// given tier. When standard is false, any standard-tier opcode encountered
// is reported as UnsupportedInstruction rather than silently accepted,
// mirroring spec.md §4.2's "unsupported standard operations are reported
// as UnsupportedInstruction".
func (b *Builder) Program(standard bool) (*vm.Program, error) {
	if !standard {
		for _, op := range b.ops {
			if op.Op.IsStandard() {
				return nil, &UnsupportedInstruction{Op: op.Op.String()}
			}
		}
	}
	if err := b.Finish(); err != nil {
		return nil, err
	}
	prog, err := b.Listing().Flatten()
	if err != nil {
		return nil, err
	}
	prog.Standard = standard
	return prog, nil
}
