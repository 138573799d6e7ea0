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

package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lassandro/goia32/pkg/assembler"
	"github.com/lassandro/goia32/pkg/debugger"
	"github.com/lassandro/goia32/pkg/encoding"
	"github.com/lassandro/goia32/pkg/machine"
)

// debugSession is the interactive prompt entered whenever the debugger
// breaks. Quit is called when the user leaves the session.
type debugSession struct {
	in      *bufio.Scanner
	out     io.Writer
	code    []byte
	lastcmd []string
	Quit    func()
}

func newDebugSession(in io.Reader, out io.Writer, code []byte, quit func()) *debugSession {
	return &debugSession{
		in:   bufio.NewScanner(in),
		out:  out,
		code: code,
		Quit: quit,
	}
}

func (s *debugSession) debugBreak(dbg *debugger.Debugger, args []string) {
	const usage = "break [add|list|remove|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "a", "add":
		const usage = "break add [0x####|label]"

		if len(args) != 1 {
			fmt.Fprintln(s.out, usage)
			return
		}

		if err := dbg.AddBreakpoint(args[0]); err != nil {
			fmt.Fprintln(s.out, err)
			return
		}

		breakpoint := dbg.Breakpoints[len(dbg.Breakpoints)-1]
		fmt.Fprintf(s.out, "Breakpoint added [%04X]\n", breakpoint.Addr)

	case "l", "ls", "list":
		if len(args) != 0 {
			fmt.Fprintln(s.out, "break list")
			return
		}

		var fmtstring string
		{
			digits := math.Floor(math.Log10(float64(len(dbg.Breakpoints) + 1)))
			fmtstring = fmt.Sprintf("#%%0%dd: %%04X %%s\n", int64(digits)+1)
		}

		for i, breakpoint := range dbg.Breakpoints {
			fmt.Fprintf(s.out, fmtstring, i, breakpoint.Addr, breakpoint.Label)
		}

	case "r", "rm", "remove":
		const usage = "break remove [#]"

		if len(args) != 1 {
			fmt.Fprintln(s.out, usage)
			return
		}

		i, err := strconv.Atoi(args[0])

		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}

		if err := dbg.RemoveBreakpoint(i); err != nil {
			fmt.Fprintln(s.out, err)
			return
		}

		fmt.Fprintf(s.out, "Breakpoint removed [%d]\n", i)

	case "clear":
		dbg.Breakpoints = nil
		fmt.Fprintln(s.out, "Breakpoints reset")

	default:
		fmt.Fprintf(s.out, "break: '%s' is not a valid command\n%s\n", cmd, usage)
	}
}

func (s *debugSession) debugReg(dbg *debugger.Debugger, mc *machine.Machine, args []string) {
	const usage = "register [EAX|ECX|EDX|EBX|EIP] [value]"

	if len(args) == 0 {
		dbg.PrintState(s.out, mc)
		return
	}

	if len(args) != 2 {
		fmt.Fprintln(s.out, usage)
		return
	}

	value, err := encoding.DecodeImmediate(args[1])

	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}

	name := strings.ToUpper(args[0])

	if reg, ok := assembler.ParseRegister(name); ok {
		mc.State.Registers[reg] = value
	} else if name == "EIP" {
		mc.State.Program = value
	} else {
		fmt.Fprintln(s.out, "Invalid register")
		return
	}

	fmt.Fprintf(s.out, "\033[1m%s:\033[0m %08X\n", name, value)
}

func (s *debugSession) debugLabels(dbg *debugger.Debugger, args []string) {
	if len(args) > 0 {
		fmt.Fprintln(s.out, "labels")
		return
	}

	if len(dbg.Symbols) == 0 {
		fmt.Fprintln(s.out, "No symbols loaded")
		return
	}

	for _, symbol := range dbg.Symbols {
		fmt.Fprintf(s.out, "\033[1m[%04X]\033[0m %s\n", symbol.Addr, symbol.Label)
	}
}

func (s *debugSession) debugJump(dbg *debugger.Debugger, mc *machine.Machine, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "jump [0x####|label]")
		return
	}

	addr, err := dbg.Address(args[0])

	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}

	mc.State.Program = addr
	fmt.Fprintf(s.out, "\033[1mEIP:\033[0m %08X\n", addr)
}

func (s *debugSession) debugMemory(dbg *debugger.Debugger, mc *machine.Machine, args []string) {
	const usage = "memory [0x####|#] [#]"

	if len(args) > 2 {
		fmt.Fprintln(s.out, usage)
		return
	}

	addr := mc.State.Program
	size := uint32(16)

	if len(args) > 0 {
		if encoding.IsHex(args[0]) {
			value, err := encoding.DecodeImmediate(args[0])

			if err != nil {
				fmt.Fprintln(s.out, err)
				return
			}

			addr = value
		} else {
			value, err := strconv.ParseUint(args[0], 10, 32)

			if err != nil {
				fmt.Fprintln(s.out, err)
				return
			}

			size = uint32(value)
		}
	}

	if len(args) > 1 {
		value, err := strconv.ParseUint(args[1], 10, 32)

		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}

		size = uint32(value)
	}

	dbg.PrintMem(s.out, &mc.State, addr, size)
}

func (s *debugSession) debugSet(dbg *debugger.Debugger, mc *machine.Machine, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "set [0x####] [0x##]")
		return
	}

	addr, err := encoding.DecodeImmediate(args[0])

	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}

	if addr >= uint32(len(mc.State.Memory)) {
		fmt.Fprintf(s.out, "Address %04X is outside the loaded code\n", addr)
		return
	}

	value, err := encoding.DecodeImmediate(args[1])

	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}

	if value > 0xFF {
		fmt.Fprintf(s.out, "Value %#x does not fit in a byte\n", value)
		return
	}

	mc.State.Memory[addr] = byte(value)
	dbg.PrintMem(s.out, &mc.State, addr, 1)
}

// Run reads commands until one of them resumes or ends execution.
func (s *debugSession) Run(dbg *debugger.Debugger, mc *machine.Machine) {
	for {
		fmt.Fprint(s.out, "\033[1;30m(dbg)\033[0m ")

		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			s.Quit()
			return
		}

		args := strings.Fields(s.in.Text())

		if len(args) == 0 {
			if len(s.lastcmd) == 0 {
				continue
			}
			args = s.lastcmd
		} else {
			s.lastcmd = make([]string, len(args))
			copy(s.lastcmd, args)
		}

		cmd := args[0]
		args = args[1:]

		switch cmd {
		case "b", "bp", "break", "breakpoint":
			s.debugBreak(dbg, args)

		case "r", "reg", "register", "registers":
			s.debugReg(dbg, mc, args)

		case "l", "label", "labels":
			s.debugLabels(dbg, args)

		case "j", "jmp", "jump":
			s.debugJump(dbg, mc, args)

		case "m", "mem", "memory":
			s.debugMemory(dbg, mc, args)

		case "set":
			s.debugSet(dbg, mc, args)

		case "c", "continue":
			dbg.Break = false
			return

		case "n", "next":
			dbg.Break = true
			return

		case "q", "quit", "exit":
			s.Quit()
			return

		case "clear":
			fmt.Fprint(s.out, "\033[H\033[2J")

		case "reset":
			mc.Load(s.code)
			fmt.Fprintln(s.out, "Machine reset")

		default:
			fmt.Fprintf(s.out, "error: '%s' is not a valid command\n", cmd)
		}
	}
}

func (s *debugSession) HandleBreak(dbg *debugger.Debugger, mc *machine.Machine) {
	if !dbg.Break {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, "Program stopped")
	}

	dbg.PrintInstruction(s.out, mc)
	s.Run(dbg, mc)
}
