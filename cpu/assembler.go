package cpu

import (
	"bufio"
	"io"
	"log"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Assembler is the two-pass translator from HYMN source text to a
// populated 30-word memory image and symbol table.
type Assembler struct {
	Verbose bool // If set, verbosely logs the assembler actions.

	Memory  [MemorySize]Word // Assembled memory image.
	Label   map[string]int   // Map of labels to memory addresses.
	Listing []string         // Cleaned source lines, one per address.
}

// clean strips the comment, lowercases, and trims a raw source line.
func clean(text string) string {
	if n := strings.IndexByte(text, '#'); n >= 0 {
		text = text[:n]
	}
	return strings.TrimSpace(strings.ToLower(text))
}

// inlineLabels merges a line consisting solely of "label:" with the
// line that follows it, so the label addresses the next instruction
// without occupying a memory slot of its own.
func inlineLabels(lines []string) (merged []string) {
	for n := 0; n < len(lines); n++ {
		line := lines[n]
		if strings.HasSuffix(line, ":") && n+1 < len(lines) {
			merged = append(merged, line+" "+lines[n+1])
			n++
		} else {
			merged = append(merged, line)
		}
	}
	return
}

// fillLabels records every "label:" prefix against its line index,
// which equals the eventual memory address.
func (asm *Assembler) fillLabels() (err error) {
	for addr, line := range asm.Listing {
		n := strings.IndexByte(line, ':')
		if n < 0 {
			continue
		}
		label := strings.TrimSpace(line[:n])
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}
		asm.Label[label] = addr
	}
	return
}

// parenEval does compile-time $(...) evaluations, with every label
// predeclared as its memory address.
func (asm *Assembler) parenEval(expr string) (value int, err error) {
	defer func() {
		if err != nil {
			err = &ErrExpression{Expr: expr, Err: err}
		}
	}()

	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for label, addr := range asm.Label {
		pred[label] = starlark.MakeInt(addr)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrBadOperand(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrBadOperand(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrBadOperand(expr)
		return
	}
	value = int(st_int64)
	return
}

// resolveOperand resolves an operand token to its numeric value:
// $() expression, label, binary literal, then decimal literal, in that
// order. The binary-first parse means "10" reads as two; this matches
// the historical assembler and is kept for program compatibility.
func (asm *Assembler) resolveOperand(token string) (value int, err error) {
	if strings.HasPrefix(token, "$(") && strings.HasSuffix(token, ")") {
		return asm.parenEval(token[2 : len(token)-1])
	}

	value, ok := asm.Label[token]
	if ok {
		return
	}

	v64, berr := strconv.ParseInt(token, 2, 64)
	if berr == nil {
		value = int(v64)
		return
	}

	v64, derr := strconv.ParseInt(token, 10, 64)
	if derr == nil {
		value = int(v64)
		return
	}

	err = ErrBadOperand(token)
	return
}

// expandPseudo rewrites the read/write/halt pseudo-operations into
// their load/stor/halt forms targeting the reserved ports.
func expandPseudo(tokens []string) []string {
	switch tokens[0] {
	case "read":
		return []string{"load", strconv.Itoa(ReadPort)}
	case "write":
		return []string{"stor", strconv.Itoa(WritePort)}
	case "halt":
		return []string{"halt", "0"}
	}
	return tokens
}

// assembleInstruction assembles a mnemonic line into the word at addr.
func (asm *Assembler) assembleInstruction(addr int, tokens []string) (err error) {
	if len(tokens) > 2 {
		err = ErrExtraArgs
		return
	}

	tokens = expandPseudo(tokens)
	if len(tokens) < 2 {
		err = ErrOperandMissing
		return
	}

	op, _ := ParseOp(tokens[0])
	operand, err := asm.resolveOperand(tokens[1])
	if err != nil {
		return
	}

	asm.Memory[addr], err = Encode(op, operand)
	return
}

// assembleData stores a bare decimal literal directly as the word at addr.
func (asm *Assembler) assembleData(addr int, tokens []string) (err error) {
	if len(tokens) != 1 {
		err = ErrExtraArgs
		return
	}

	value, cerr := strconv.Atoi(tokens[0])
	if cerr != nil {
		err = ErrBadOperand(tokens[0])
		return
	}

	asm.Memory[addr], err = WordFromInt(value)
	return
}

// Parse assembles an input stream into the memory image and symbol
// table. Any error aborts the whole assembly; callers must not expose
// a partially assembled image.
func (asm *Assembler) Parse(input io.Reader) (err error) {
	clear(asm.Memory[:])
	asm.Label = make(map[string]int, 8)
	asm.Listing = nil

	scanner := bufio.NewScanner(input)
	var lines []string
	for scanner.Scan() {
		line := clean(scanner.Text())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	err = scanner.Err()
	if err != nil {
		return
	}

	asm.Listing = inlineLabels(lines)

	if len(asm.Listing) > MemorySize {
		err = ErrProgramSize
		return
	}

	err = asm.fillLabels()
	if err != nil {
		return
	}

	for addr, line := range asm.Listing {
		if asm.Verbose {
			log.Printf("asm %2d: %v", addr, line)
		}

		// Strip any label prefix.
		body := line
		if parts := strings.Split(line, ":"); len(parts) > 1 {
			body = strings.Join(parts[1:], " ")
		}

		tokens := strings.Fields(body)
		if len(tokens) == 0 {
			err = &ErrSyntax{LineNo: addr, Line: line, Err: ErrOperandMissing}
			return
		}

		_, isOp := ParseOp(tokens[0])
		if isOp {
			err = asm.assembleInstruction(addr, tokens)
		} else {
			err = asm.assembleData(addr, tokens)
		}
		if err != nil {
			err = &ErrSyntax{LineNo: addr, Line: line, Err: err}
			return
		}
	}

	return
}
