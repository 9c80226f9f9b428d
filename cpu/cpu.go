package cpu

import (
	"iter"
	"log"
	"strings"
	"time"
)

// Machine is the simulation context for one HYMN machine: program
// counter, accumulator, 30 words of memory, the input queue and output
// sequence, and the status flags. A Machine is not safe for concurrent
// use; callers serialize access externally.
type Machine struct {
	Verbose bool // Set to enable verbose logging.

	Pc     int              // Program counter, always in [0,29].
	Ac     int              // Accumulator.
	Memory [MemorySize]Word // Addresses 0-29.

	Input  []int // FIFO input queue, popped by load 30.
	Output []int // Append-only output sequence, fed by stor 31.

	Symbols map[string]int // Label to address map from the last load.
	Listing []string       // Cleaned source lines from the last load.

	Halted  bool  // Set when a halt instruction is reached.
	Waiting bool  // Set when a read is pending on an empty input queue.
	Fault   error // Runtime fault; terminal once set.
}

// NewMachine creates a machine with empty memory (all halt 0).
func NewMachine() *Machine {
	return &Machine{}
}

// reset returns the machine to its power-on state.
func (m *Machine) reset() {
	m.Pc = 0
	m.Ac = 0
	clear(m.Memory[:])
	m.Input = nil
	m.Output = nil
	m.Symbols = nil
	m.Listing = nil
	m.Halted = false
	m.Waiting = false
	m.Fault = nil
}

// Load resets the machine, assembles source into memory, and seeds the
// input queue. On error the machine is left reset with empty memory;
// callers that must preserve a previous program load into a fresh
// Machine and swap on success.
func (m *Machine) Load(source string, input []int) (err error) {
	m.reset()

	for _, v := range input {
		_, err = WordFromInt(v)
		if err != nil {
			return
		}
	}

	asm := &Assembler{Verbose: m.Verbose}
	err = asm.Parse(strings.NewReader(source))
	if err != nil {
		return
	}

	m.Memory = asm.Memory
	m.Symbols = asm.Label
	m.Listing = asm.Listing
	m.Input = append([]int(nil), input...)

	return
}

// NeedsInput reports whether the next step would pop an empty input
// queue: the machine is runnable and the instruction at the program
// counter is a read (load 30) with nothing buffered. The check runs
// before dispatch on every step, so an empty-queue read pauses the
// machine instead of faulting.
func (m *Machine) NeedsInput() bool {
	if m.Halted || m.Fault != nil {
		return false
	}
	w := m.Memory[m.Pc]
	return w.Op() == OpLoad && w.Operand() == ReadPort && len(m.Input) == 0
}

// Step executes one instruction. It returns true if the machine
// progressed, false if it stopped for any reason: already terminal,
// paused waiting for input, reached a halt, or faulted. A faulting
// step mutates no registers beyond the fault flag.
func (m *Machine) Step() bool {
	if m.Halted || m.Fault != nil {
		return false
	}

	if m.NeedsInput() {
		m.Waiting = true
		return false
	}
	m.Waiting = false

	w := m.Memory[m.Pc]
	if w.Op() == OpHalt {
		m.Halted = true
		return false
	}

	if m.Verbose {
		log.Printf("cpu %2d: %v (ac=%d)", m.Pc, w, m.Ac)
	}

	err := m.dispatch(w.Op(), w.Operand())
	if err != nil {
		m.Fault = err
		return false
	}

	return true
}

// advance moves the program counter to the next slot, faulting if
// execution would run off the end of memory.
func (m *Machine) advance() (err error) {
	if m.Pc+1 >= MemorySize {
		err = ErrPcRange
		return
	}
	m.Pc++
	return
}

// dispatch executes a single decoded instruction. Handlers validate
// before mutating, so a fault leaves registers and memory untouched.
func (m *Machine) dispatch(op Op, d int) (err error) {
	switch op {
	case OpHalt:
		// Handled by Step before dispatch.
		m.Halted = true
	case OpJump:
		if d >= MemorySize {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		m.Pc = d
	case OpJzer:
		if d >= MemorySize {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		if m.Ac == 0 {
			m.Pc = d
		} else {
			err = m.advance()
		}
	case OpJpos:
		if d >= MemorySize {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		if m.Ac > 0 {
			m.Pc = d
		} else {
			err = m.advance()
		}
	case OpLoad:
		if d > ReadPort {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		err = m.advance()
		if err != nil {
			return
		}
		if d == ReadPort {
			// NeedsInput guards the empty queue before dispatch;
			// this fault only fires when that guard is bypassed.
			if len(m.Input) == 0 {
				err = ErrInputEmpty
				m.Pc--
				return
			}
			m.Ac = m.Input[0]
			m.Input = m.Input[1:]
		} else {
			m.Ac = m.Memory[d].Int()
		}
	case OpStor:
		if d == ReadPort {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		var w Word
		if d != WritePort {
			w, err = WordFromInt(m.Ac)
			if err != nil {
				return
			}
		}
		err = m.advance()
		if err != nil {
			return
		}
		if d == WritePort {
			m.Output = append(m.Output, m.Ac)
		} else {
			m.Memory[d] = w
		}
	case OpAdd:
		if d >= MemorySize {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		err = m.advance()
		if err != nil {
			return
		}
		m.Ac += m.Memory[d].Int()
	case OpSub:
		if d >= MemorySize {
			err = &ErrBadAddress{Op: op, Addr: d}
			return
		}
		err = m.advance()
		if err != nil {
			return
		}
		m.Ac -= m.Memory[d].Int()
	}

	return
}

// ProvideInput appends a value to the input queue and clears the
// waiting flag so the next step re-evaluates NeedsInput.
func (m *Machine) ProvideInput(value int) (err error) {
	_, err = WordFromInt(value)
	if err != nil {
		return
	}

	m.Input = append(m.Input, value)
	m.Waiting = false

	return
}

// Run steps the machine until Step returns false or the wall-clock
// budget is exhausted. Exhausting the budget flags the machine as
// faulted with a timeout, bounding runaway programs. Returns the number
// of instructions executed.
func (m *Machine) Run(timeout time.Duration) (steps int) {
	deadline := time.Now().Add(timeout)

	for m.Step() {
		steps++
		if !time.Now().Before(deadline) {
			m.Fault = ErrTimeout
			break
		}
	}

	return
}

// PatchMemory replaces the word at addr with a decimal value, between
// steps, without touching any other machine state. The reserved ports
// 30 and 31 are not patchable.
func (m *Machine) PatchMemory(addr, value int) (err error) {
	if addr < 0 || addr >= MemorySize {
		err = ErrAddressRange
		return
	}

	w, err := WordFromInt(value)
	if err != nil {
		return
	}

	m.Memory[addr] = w

	return
}

// PatchRegister sets the pc or ac register, validating range before
// any mutation.
func (m *Machine) PatchRegister(name string, value int) (err error) {
	switch name {
	case "pc":
		if value < 0 || value >= MemorySize {
			err = ErrPcRange
			return
		}
		m.Pc = value
	case "ac":
		_, err = WordFromInt(value)
		if err != nil {
			return
		}
		m.Ac = value
	default:
		err = ErrRegisterInvalid
	}

	return
}

// Words iterates the memory image in address order.
func (m *Machine) Words() iter.Seq2[int, Word] {
	return func(yield func(int, Word) bool) {
		for n, w := range m.Memory {
			if !yield(n, w) {
				return
			}
		}
	}
}

// Slot is one memory word in both of its views.
type Slot struct {
	Decimal int    `json:"decimal"`
	Instr   string `json:"instr"`
}

// Snapshot is the full machine state exposed to callers.
type Snapshot struct {
	Pc      int            `json:"pc"`
	Ac      int            `json:"ac"`
	Memory  []Slot         `json:"memory"`
	Output  []int          `json:"output"`
	Input   []int          `json:"input"`
	Halted  bool           `json:"halted"`
	Error   string         `json:"error,omitempty"`
	Symbols map[string]int `json:"symbols"`
	Waiting bool           `json:"waiting"`
}

// Snapshot captures the current machine state. The returned value
// shares nothing with the machine and is safe to hand across
// goroutines.
func (m *Machine) Snapshot() (snap *Snapshot) {
	snap = &Snapshot{
		Pc:      m.Pc,
		Ac:      m.Ac,
		Memory:  make([]Slot, MemorySize),
		Output:  append([]int{}, m.Output...),
		Input:   append([]int{}, m.Input...),
		Halted:  m.Halted,
		Symbols: make(map[string]int, len(m.Symbols)),
		Waiting: m.Waiting,
	}

	for n, w := range m.Memory {
		snap.Memory[n] = Slot{Decimal: w.Int(), Instr: w.String()}
	}
	for label, addr := range m.Symbols {
		snap.Symbols[label] = addr
	}
	if m.Fault != nil {
		snap.Error = m.Fault.Error()
	}

	return
}
