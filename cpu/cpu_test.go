package cpu

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, program []string, input ...int) *Machine {
	t.Helper()
	m := NewMachine()
	require.NoError(t, m.Load(strings.Join(program, "\n"), input))
	return m
}

func TestStepProgram(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{
		"load 3",
		"write",
		"halt",
		"7",
	})

	assert.True(m.Step()) // load 3
	assert.Equal(7, m.Ac)
	assert.Equal(1, m.Pc)

	assert.True(m.Step()) // write
	assert.Equal([]int{7}, m.Output)

	assert.False(m.Step()) // halt
	assert.True(m.Halted)
	assert.NoError(m.Fault)

	// Terminal: further steps are no-ops.
	assert.False(m.Step())
	assert.Equal([]int{7}, m.Output)
}

func TestJumps(t *testing.T) {
	assert := assert.New(t)

	// Counts down from 3, writing each value until jzer exits.
	m := load(t, []string{
		"load 6",
		"loop: write",
		"sub 7",
		"jzer 5",
		"jump loop",
		"halt",
		"3",
		"1",
	})

	steps := m.Run(time.Second)
	assert.True(m.Halted)
	assert.NoError(m.Fault)
	assert.Equal([]int{3, 2, 1}, m.Output)
	assert.Equal(12, steps)
}

func TestInputWaitResume(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{
		"read",
		"write",
		"halt",
	})

	// Empty queue: the read pauses instead of faulting.
	assert.False(m.Step())
	assert.True(m.Waiting)
	assert.NoError(m.Fault)
	assert.Equal(0, m.Pc)

	assert.NoError(m.ProvideInput(5))
	assert.False(m.Waiting)

	assert.True(m.Step())
	assert.Equal(5, m.Ac)

	m.Run(time.Second)
	assert.True(m.Halted)
	assert.Equal([]int{5}, m.Output)
}

func TestInitialInput(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	assert.ErrorIs(m.Load("read\nhalt", []int{500}), ErrOverflow)

	m = load(t, []string{"read", "write", "halt"}, 10, 15)
	m.Run(time.Second)
	assert.Equal([]int{10}, m.Output)
	assert.Equal([]int{15}, m.Input)
}

func TestRunTimeout(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{"jump 0"})

	start := time.Now()
	m.Run(10 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(m.Halted)
	assert.ErrorIs(m.Fault, ErrTimeout)
	assert.Contains(m.Fault.Error(), "timed out")
	assert.Less(elapsed, time.Second)

	// A timed-out machine stays faulted.
	assert.False(m.Step())
}

func TestRuntimeFaults(t *testing.T) {
	assert := assert.New(t)

	// add may not address the ports.
	m := load(t, []string{"add 31", "halt"})
	assert.False(m.Step())
	assert.Error(m.Fault)
	assert.Contains(m.Fault.Error(), "invalid add address 31")
	assert.Equal(0, m.Pc)

	// stor rejects an accumulator that does not fit in 8 bits.
	m = load(t, []string{
		"load 4",
		"add 4",
		"stor 5",
		"halt",
		"100",
	})
	m.Run(time.Second)
	assert.ErrorIs(m.Fault, ErrOverflow)
	assert.False(m.Halted)
	assert.Equal(200, m.Ac)
	assert.Equal(2, m.Pc)
	assert.Equal(Word(0), m.Memory[5])
}

func TestPcOverflow(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{"halt"})
	require.NoError(t, m.PatchMemory(29, -128)) // load 0 at the last slot
	require.NoError(t, m.PatchRegister("pc", 29))

	assert.False(m.Step())
	assert.ErrorIs(m.Fault, ErrPcRange)
	assert.Equal(29, m.Pc)
}

func TestPatchValidation(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{"halt"})
	before := *m.Snapshot()

	assert.ErrorIs(m.PatchMemory(30, 0), ErrAddressRange)
	assert.ErrorIs(m.PatchMemory(31, 0), ErrAddressRange)
	assert.ErrorIs(m.PatchMemory(-1, 0), ErrAddressRange)
	assert.ErrorIs(m.PatchMemory(0, 200), ErrOverflow)
	assert.ErrorIs(m.PatchRegister("pc", 30), ErrPcRange)
	assert.ErrorIs(m.PatchRegister("pc", -1), ErrPcRange)
	assert.ErrorIs(m.PatchRegister("ac", 128), ErrOverflow)
	assert.ErrorIs(m.PatchRegister("ac", -129), ErrOverflow)
	assert.ErrorIs(m.PatchRegister("ix", 0), ErrRegisterInvalid)
	assert.ErrorIs(m.ProvideInput(128), ErrOverflow)

	assert.Equal(before, *m.Snapshot())

	assert.NoError(m.PatchRegister("ac", -128))
	assert.Equal(-128, m.Ac)
	assert.NoError(m.PatchMemory(3, 7))
	assert.Equal(Word(7), m.Memory[3])
}

func TestLoadResets(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{"load 3", "write", "halt", "7"})
	m.Run(time.Second)
	assert.True(m.Halted)

	require.NoError(t, m.Load("a: load 3\nwrite\nhalt\n9", nil))
	assert.Equal(0, m.Pc)
	assert.Equal(0, m.Ac)
	assert.False(m.Halted)
	assert.Empty(m.Output)
	assert.Equal(map[string]int{"a": 0}, m.Symbols)

	m.Run(time.Second)
	assert.Equal([]int{9}, m.Output)
}

func TestSnapshot(t *testing.T) {
	assert := assert.New(t)

	m := load(t, []string{"start: load 3", "write", "halt", "7"}, 1, 2)
	m.Step()

	snap := m.Snapshot()
	assert.Equal(1, snap.Pc)
	assert.Equal(7, snap.Ac)
	assert.Equal(30, len(snap.Memory))
	assert.Equal(Slot{Decimal: -125, Instr: "load 3"}, snap.Memory[0])
	assert.Equal(Slot{Decimal: 7, Instr: "halt 7"}, snap.Memory[3])
	assert.Equal([]int{1, 2}, snap.Input)
	assert.Empty(snap.Output)
	assert.Equal("", snap.Error)
	assert.Equal(map[string]int{"start": 0}, snap.Symbols)
	assert.False(snap.Halted)
	assert.False(snap.Waiting)

	// The snapshot shares nothing with the machine.
	snap.Input[0] = 99
	snap.Symbols["start"] = 9
	assert.Equal(1, m.Input[0])
	assert.Equal(0, m.Symbols["start"])
}
