package cpu

import (
	"errors"

	"github.com/hymnsim/hymn/translate"
)

var f = translate.From

var (
	// Word codec errors
	ErrOverflow      = errors.New(f("overflow"))
	ErrOperandRange  = errors.New(f("operand out of range"))
	ErrOpcodeUnknown = errors.New(f("opcode unknown"))

	// Assembler errors
	ErrExtraArgs      = errors.New(f("excessive arguments"))
	ErrOperandMissing = errors.New(f("operand missing"))
	ErrLabelDuplicate = errors.New(f("label duplicated"))
	ErrProgramSize    = errors.New(f("program too large"))

	// Runtime faults
	ErrInputEmpty = errors.New(f("input queue empty"))
	ErrPcRange    = errors.New(f("program counter out of range"))
	ErrTimeout    = errors.New(f("timed out"))

	// Patch errors
	ErrAddressRange    = errors.New(f("address out of range"))
	ErrRegisterInvalid = errors.New(f("register invalid"))
)

// ErrBadOperand reports an operand token that resolves to no label,
// binary, or decimal value.
type ErrBadOperand string

func (err ErrBadOperand) Error() string {
	return f("'%v' is not a label or number", string(err))
}

// ErrBadAddress reports an out-of-range address for an opcode.
type ErrBadAddress struct {
	Op   Op
	Addr int
}

func (err ErrBadAddress) Error() string {
	return f("invalid %v address %d", err.Op, err.Addr)
}

// ErrSyntax indicates the location of an assembly error.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err *ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err *ErrSyntax) Unwrap() error {
	return err.Err
}

// ErrExpression reports a $() expression that failed to evaluate.
type ErrExpression struct {
	Expr string
	Err  error
}

func (err *ErrExpression) Error() string {
	return f("$(%v) is not a valid expression: %v", err.Expr, err.Err)
}

func (err *ErrExpression) Unwrap() error {
	return err.Err
}
