package asm

import (
	"strings"
	"testing"

	"github.com/kylelemons/godebug/diff"
	"github.com/mna/sage/lang/vm"
	"github.com/stretchr/testify/require"
)

func runText(t *testing.T, text string, tapeSize int) *vm.Thread {
	t.Helper()
	prog, err := Asm(text)
	require.NoError(t, err)
	th := vm.NewThread(tapeSize, memDevice{}, 8, 0)
	require.NoError(t, th.Run(prog))
	return th
}

func TestAsmArithmetic(t *testing.T) {
	th := runText(t, `
		set 4
		store 0
		set 10
		add
	`, 8)
	require.EqualValues(t, 14, th.Register)
}

func TestAsmCallDefinedFunction(t *testing.T) {
	th := runText(t, `
		fun double
			load 0
			add
		end
		set 21
		store 0
		call double
	`, 8)
	require.EqualValues(t, 42, th.Register)
}

// TestAsmForwardReferenceCall exercises a call that textually precedes the
// fun block defining its target: assignLabelIDs must resolve "helper" to
// its id before the main emission pass reaches the call line.
func TestAsmForwardReferenceCall(t *testing.T) {
	th := runText(t, `
		call helper
		fun helper
			set 7
		end
	`, 8)
	require.EqualValues(t, 7, th.Register)
}

func TestAsmUnknownOpcode(t *testing.T) {
	_, err := Asm("bogus")
	require.Error(t, err)
}

func TestAsmUnmatchedEnd(t *testing.T) {
	_, err := Asm("end")
	require.Error(t, err)
}

func TestDasmRendersMnemonics(t *testing.T) {
	prog, err := Asm(`
		set 1
		set 2
		add
	`)
	require.NoError(t, err)
	out := Dasm(prog)
	require.True(t, strings.Contains(out, "set [1]"))
	require.True(t, strings.Contains(out, "add"))
}

// TestDasmRoundtripIsStable re-assembles Dasm's own output and checks that
// disassembling it again produces byte-identical text, so a pretty diff
// (rather than a bare require.Equal mismatch) pinpoints exactly which line
// drifted if the assembler/disassembler pair ever goes out of sync.
func TestDasmRoundtripIsStable(t *testing.T) {
	prog, err := Asm(`
		fun double
			load 0
			add
		end
		set 21
		store 0
		call double
	`)
	require.NoError(t, err)

	first := Dasm(prog)
	reassembled, err := Asm(first)
	require.NoError(t, err)
	second := Dasm(reassembled)

	if first != second {
		t.Fatalf("dasm roundtrip unstable:\n%s", diff.Diff(first, second))
	}
}
