// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package machine

import (
	"context"
	"io"

	"golang.org/x/arch/x86/x86asm"
)

func (mc *MachineState) Reset() {
	for i := range mc.Registers {
		mc.Registers[i] = 0
	}

	mc.Program = 0
	mc.Flags = 0
}

func (mc *MachineState) Flag(flag uint32) bool {
	return mc.Flags&flag != 0
}

// Load resets the machine and places code at address 0.
func (mc *Machine) Load(code []byte) {
	mc.State.Reset()
	mc.State.Memory = make([]byte, len(code))
	copy(mc.State.Memory, code)
	mc.Steps = 0
}

func (mc *Machine) LoadBin(reader io.Reader) error {
	code, err := io.ReadAll(reader)

	if err != nil {
		return err
	}

	mc.Load(code)

	return nil
}

// Halted reports whether execution ran off the end of the loaded code.
func (mc *Machine) Halted() bool {
	return int64(mc.State.Program) >= int64(len(mc.State.Memory))
}

func registerIndex(arg x86asm.Arg) (int, bool) {
	reg, ok := arg.(x86asm.Reg)

	if !ok {
		return 0, false
	}

	switch reg {
	case x86asm.EAX:
		return 0, true
	case x86asm.ECX:
		return 1, true
	case x86asm.EDX:
		return 2, true
	case x86asm.EBX:
		return 3, true
	}

	return 0, false
}

func (mc *Machine) value(arg x86asm.Arg) (uint32, bool) {
	switch a := arg.(type) {
	case x86asm.Reg:
		if index, ok := registerIndex(a); ok {
			return mc.State.Registers[index], true
		}
	case x86asm.Imm:
		return uint32(a), true
	}

	return 0, false
}

func (mc *Machine) setFlags(result uint32, carry, overflow bool) {
	mc.State.Flags = 0

	if result == 0 {
		mc.State.Flags |= FLAG_ZERO
	}

	if result>>31 == 1 {
		mc.State.Flags |= FLAG_SIGN
	}

	if carry {
		mc.State.Flags |= FLAG_CARRY
	}

	if overflow {
		mc.State.Flags |= FLAG_OVERFLOW
	}
}

func (mc *Machine) add(a, b uint32) uint32 {
	result := a + b
	mc.setFlags(result, result < a, ((a^result)&(b^result))>>31 == 1)
	return result
}

func (mc *Machine) sub(a, b uint32) uint32 {
	result := a - b
	mc.setFlags(result, a < b, ((a^b)&(a^result))>>31 == 1)
	return result
}

// Step executes the instruction at the program counter.
func (mc *Machine) Step() error {
	if mc.Halted() {
		return ErrHalted
	}

	if mc.Debugger != nil {
		mc.Debugger.Step(mc)

		// The debugger may have moved the program counter.
		if mc.Halted() {
			return nil
		}
	}

	pc := mc.State.Program
	inst, err := x86asm.Decode(mc.State.Memory[pc:], 32)

	if err == nil && inst.Op == 0 {
		err = ErrUnknownInstruction
	}

	if err != nil {
		return &DecodeError{pc, err}
	}

	next := pc + uint32(inst.Len)

	switch inst.Op {
	case x86asm.NOP:

	// MOV  r/m32, r32 | r32, imm32
	// ADD  r/m32, r32 | r/m32, imm32
	// SUB  r/m32, r32 | r/m32, imm32
	// CMP  r/m32, r32 | r/m32, imm32
	case x86asm.MOV, x86asm.ADD, x86asm.SUB, x86asm.CMP:
		dest, ok := registerIndex(inst.Args[0])

		if !ok {
			return &UnsupportedInstructionError{pc, inst}
		}

		src, ok := mc.value(inst.Args[1])

		if !ok {
			return &UnsupportedInstructionError{pc, inst}
		}

		switch inst.Op {
		case x86asm.MOV:
			mc.State.Registers[dest] = src
		case x86asm.ADD:
			mc.State.Registers[dest] = mc.add(mc.State.Registers[dest], src)
		case x86asm.SUB:
			mc.State.Registers[dest] = mc.sub(mc.State.Registers[dest], src)
		case x86asm.CMP:
			mc.sub(mc.State.Registers[dest], src)
		}

	// JMP  rel32
	// JE   rel8
	// JNE  rel8
	case x86asm.JMP, x86asm.JE, x86asm.JNE:
		rel, ok := inst.Args[0].(x86asm.Rel)

		if !ok {
			return &UnsupportedInstructionError{pc, inst}
		}

		taken := inst.Op == x86asm.JMP ||
			(inst.Op == x86asm.JE && mc.State.Flag(FLAG_ZERO)) ||
			(inst.Op == x86asm.JNE && !mc.State.Flag(FLAG_ZERO))

		if taken {
			next += uint32(int32(rel))
		}

	default:
		return &UnsupportedInstructionError{pc, inst}
	}

	mc.State.Program = next
	mc.Steps++

	return nil
}

// Run steps until the program counter leaves the loaded code.
func (mc *Machine) Run() error {
	return mc.RunContext(context.Background())
}

// RunContext is Run, stopping early with ctx.Err() once ctx is done.
func (mc *Machine) RunContext(ctx context.Context) error {
	limit := mc.Config.StepLimit

	if limit == 0 {
		limit = DefaultStepLimit
	}

	for !mc.Halted() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if mc.Steps >= limit {
			return &StepLimitError{limit}
		}

		if err := mc.Step(); err != nil {
			return err
		}
	}

	return nil
}
