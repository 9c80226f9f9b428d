// Package cpu implements the HYMN machine: an 8-bit accumulator
// architecture with 30 words of memory, a two-pass assembler, and a
// steppable execution engine.
//
// A Word is a signed 8-bit value with a dual reading: the raw decimal
// in [-128,127], or an (opcode, operand) pair packed as 3+5 bits of its
// two's-complement pattern. Addresses 0-29 are ordinary memory; address
// 30 is the read port (pops the input queue) and address 31 is the
// write port (appends to the output sequence).
//
// The assembler supports labels, the read/write/halt pseudo-operations,
// bare data words, and compile-time $() expression evaluation.
package cpu
