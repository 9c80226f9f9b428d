package cpu

import (
	"fmt"
)

// Op is a HYMN instruction opcode, the top 3 bits of a Word.
type Op uint8

const (
	OpHalt = Op(0) // halt
	OpJump = Op(1) // jump
	OpJzer = Op(2) // jzer
	OpJpos = Op(3) // jpos
	OpLoad = Op(4) // load
	OpStor = Op(5) // stor
	OpAdd  = Op(6) // add
	OpSub  = Op(7) // sub
)

// opNames is the fixed opcode-to-mnemonic table.
var opNames = [8]string{"halt", "jump", "jzer", "jpos", "load", "stor", "add", "sub"}

// opMap maps source mnemonics to opcodes. "store" is an accepted
// alias for "stor"; the read/write/halt pseudo-operations also appear
// here so the assembler can tell instructions from data lines before
// expanding them.
var opMap = map[string]Op{
	"halt":  OpHalt,
	"jump":  OpJump,
	"jzer":  OpJzer,
	"jpos":  OpJpos,
	"load":  OpLoad,
	"stor":  OpStor,
	"store": OpStor,
	"add":   OpAdd,
	"sub":   OpSub,
	"read":  OpLoad,
	"write": OpStor,
}

// String returns the mnemonic for the opcode.
func (op Op) String() string {
	return opNames[op&7]
}

// ParseOp maps a mnemonic (or alias) to its opcode.
func ParseOp(name string) (op Op, ok bool) {
	op, ok = opMap[name]
	return
}

// Reserved addresses outside the 30 ordinary memory slots.
const (
	MemorySize = 30 // Addresses 0-29 hold Words.
	ReadPort   = 30 // load 30 pops the input queue.
	WritePort  = 31 // stor 31 appends to the output sequence.
)

// Word is one 8-bit two's-complement machine word. The decimal view is
// the raw int8 value; the instruction view is the (opcode, operand)
// pair packed into its bit pattern.
type Word int8

// Encode packs an (opcode, operand) pair into a Word.
// The operand must be in [0,31].
func Encode(op Op, operand int) (w Word, err error) {
	if op > OpSub {
		err = ErrOpcodeUnknown
		return
	}
	if operand < 0 || operand > 31 {
		err = ErrOperandRange
		return
	}

	raw := 32*int(op) + operand
	if raw >= 128 {
		raw -= 256
	}
	w = Word(raw)

	return
}

// WordFromInt folds a decimal value into a Word.
// Values outside [-128,127] overflow.
func WordFromInt(v int) (w Word, err error) {
	if v < -128 || v > 127 {
		err = ErrOverflow
		return
	}
	w = Word(v)

	return
}

// Int returns the decimal view of the word.
func (w Word) Int() int {
	return int(w)
}

// Op returns the opcode view: the top 3 bits of the word's pattern.
func (w Word) Op() Op {
	return Op(uint8(w) >> 5)
}

// Operand returns the operand view: the bottom 5 bits of the word's pattern.
func (w Word) Operand() int {
	return int(uint8(w) & 0x1f)
}

// String returns the instruction rendering of the word.
func (w Word) String() string {
	return fmt.Sprintf("%v %v", w.Op(), w.Operand())
}
