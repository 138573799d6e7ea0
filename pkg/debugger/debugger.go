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

package debugger

import (
	"fmt"
	"io"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/xerrors"

	"github.com/lassandro/goia32/pkg/encoding"
	"github.com/lassandro/goia32/pkg/machine"
)

func (dbg *Debugger) Step(mc *machine.Machine) {
	if dbg.HandleStep != nil {
		dbg.HandleStep(dbg, mc)
	}

	if dbg.HandleBreak == nil {
		return
	}

	// Break stays set, stopping at every step, until a handler clears it.
	if dbg.Break {
		dbg.HandleBreak(dbg, mc)
		return
	}

	for _, breakpoint := range dbg.Breakpoints {
		if mc.State.Program == breakpoint.Addr {
			dbg.HandleBreak(dbg, mc)
			break
		}
	}
}

// Address resolves either a numeric address or a label from Symbols.
func (dbg *Debugger) Address(target string) (uint32, error) {
	if len(target) == 0 {
		return 0, xerrors.New("Empty address")
	}

	if target[0] >= '0' && target[0] <= '9' {
		addr, err := encoding.DecodeImmediate(target)

		if err != nil {
			return 0, xerrors.Errorf("address '%s': %w", target, err)
		}

		return addr, nil
	}

	for _, symbol := range dbg.Symbols {
		if symbol.Label == target {
			return symbol.Addr, nil
		}
	}

	return 0, xerrors.Errorf("address '%s': unknown label", target)
}

func (dbg *Debugger) AddBreakpoint(target string) error {
	addr, err := dbg.Address(target)

	if err != nil {
		return xerrors.Errorf("breakpoint: %w", err)
	}

	label, _ := dbg.LabelAt(addr)
	dbg.addBreakpoint(Breakpoint{addr, label})

	return nil
}

func (dbg *Debugger) RemoveBreakpoint(index int) error {
	if index < 0 || index >= len(dbg.Breakpoints) {
		return xerrors.Errorf("Invalid breakpoint number %d", index)
	}

	dbg.Breakpoints = append(dbg.Breakpoints[:index], dbg.Breakpoints[index+1:]...)

	return nil
}

func (dbg *Debugger) addBreakpoint(breakpoint Breakpoint) {
	for _, existing := range dbg.Breakpoints {
		if existing.Addr == breakpoint.Addr {
			return
		}
	}

	dbg.Breakpoints = append(dbg.Breakpoints, breakpoint)
}

func (dbg *Debugger) LabelAt(addr uint32) (string, bool) {
	for _, symbol := range dbg.Symbols {
		if symbol.Addr == addr {
			return symbol.Label, true
		}
	}

	return "", false
}

func (dbg *Debugger) lookup(addr uint64) (string, uint64) {
	if label, ok := dbg.LabelAt(uint32(addr)); ok {
		return label, addr
	}

	return "", 0
}

func (dbg *Debugger) PrintInstruction(out io.Writer, mc *machine.Machine) {
	pc := mc.State.Program

	if label, ok := dbg.LabelAt(pc); ok {
		fmt.Fprintf(out, "%s:\n", label)
	}

	if mc.Halted() {
		fmt.Fprintf(out, "\033[1m[%04X]\033[0m <halted>\n", pc)
		return
	}

	inst, err := x86asm.Decode(mc.State.Memory[pc:], 32)

	if err != nil || inst.Op == 0 {
		fmt.Fprintf(out, "\033[1m[%04X]\033[0m .byte 0x%02x\n", pc, mc.State.Memory[pc])
		return
	}

	fmt.Fprintf(
		out,
		"\033[1m[%04X]\033[0m %s\n",
		pc,
		x86asm.IntelSyntax(inst, uint64(pc), dbg.lookup),
	)
}

var registerNames = [4]string{"EAX", "ECX", "EDX", "EBX"}

func flagBit(mc *machine.Machine, flag uint32) int {
	if mc.State.Flag(flag) {
		return 1
	}

	return 0
}

func (dbg *Debugger) PrintState(out io.Writer, mc *machine.Machine) {
	fmt.Fprintf(out, "EIP=%08X", mc.State.Program)

	for i, value := range mc.State.Registers {
		fmt.Fprintf(out, " %s=%08X", registerNames[i], value)
	}

	fmt.Fprintf(
		out,
		" ZF=%d SF=%d CF=%d OF=%d\n",
		flagBit(mc, machine.FLAG_ZERO),
		flagBit(mc, machine.FLAG_SIGN),
		flagBit(mc, machine.FLAG_CARRY),
		flagBit(mc, machine.FLAG_OVERFLOW),
	)
}

func (dbg *Debugger) PrintMem(out io.Writer, mc *machine.MachineState, addr, count uint32) {
	end := addr + count

	if end > uint32(len(mc.Memory)) {
		end = uint32(len(mc.Memory))
	}

	for i := addr; i < end; i++ {
		if i == addr {
			fmt.Fprintf(out, "\033[1m[%04X]\033[0m ", i)
		} else if (i-addr)%8 == 0 {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "\033[1m[%04X]\033[0m ", i)
		}

		result := mc.Memory[i]

		if result == 0 {
			fmt.Fprintf(out, "\033[1;30m%02X\033[0m ", result)
		} else {
			fmt.Fprintf(out, "%02X ", result)
		}
	}

	fmt.Fprintln(out)
}
