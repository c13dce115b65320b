package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at the reader's position
// and advances past its operands. prevLine is the line of the previous
// instruction; an instruction on the same line shows a continuation marker
// instead of repeating the number.
func DisassembleInstruction(r *ChunkReader, prevLine int) (text string, line int) {
	op, offset, line := r.Next()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if line == prevLine {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", line)
	}

	info := op.Info()
	switch {
	case info.ConstantRef:
		idx := r.ReadIndex(info.OperandBytes)
		fmt.Fprintf(&sb, "%-16s %4d ", info.Name, idx)
		if idx < len(r.chunk.Constants) {
			fmt.Fprintf(&sb, "'%s'", r.chunk.Constants[idx].String())
		} else {
			sb.WriteString("'<out of range>'")
		}

	case op == OpJump || op == OpJumpIfFalse || op == OpJumpIfTrue:
		jump := r.ReadOffset()
		fmt.Fprintf(&sb, "%-16s %4d (-> %04d)", info.Name, jump, r.Position()+jump)

	default:
		r.Skip(info.OperandBytes)
		sb.WriteString(info.Name)
	}

	return sb.String(), line
}

// Disassemble renders every instruction in the chunk, one per line, under a
// header naming the chunk. Output is a pure function of the chunk contents.
func Disassemble(c *Chunk, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)

	r := NewChunkReader(c)
	prevLine := -1
	for r.HasMore() {
		text, line := DisassembleInstruction(r, prevLine)
		sb.WriteString(text)
		sb.WriteByte('\n')
		prevLine = line
	}
	return sb.String()
}
