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
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

var ErrHalted = errors.New("Machine halted")

// ErrUnknownInstruction is wrapped in a DecodeError when the bytes at the
// program counter do not form a complete instruction.
var ErrUnknownInstruction = errors.New("Unknown or truncated instruction")

type MachineState struct {
	Registers [4]uint32
	Program   uint32
	Flags     uint32
	Memory    []byte
}

type MachineDebugger interface {
	Step(mc *Machine)
}

type Config struct {
	// StepLimit bounds Run. Zero means DefaultStepLimit.
	StepLimit uint
}

type Machine struct {
	Config   Config
	State    MachineState
	Debugger MachineDebugger
	Steps    uint
}

type DecodeError struct {
	Addr uint32
	Err  error
}

func (err *DecodeError) Error() string {
	return fmt.Sprintf("%04X: Cannot decode instruction: %v", err.Addr, err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

type UnsupportedInstructionError struct {
	Addr uint32
	Inst x86asm.Inst
}

func (err *UnsupportedInstructionError) Error() string {
	return fmt.Sprintf(
		"%04X: Unsupported instruction '%s'",
		err.Addr,
		x86asm.IntelSyntax(err.Inst, uint64(err.Addr), nil),
	)
}

type StepLimitError struct {
	Limit uint
}

func (err *StepLimitError) Error() string {
	return fmt.Sprintf("Step limit of %d reached", err.Limit)
}
