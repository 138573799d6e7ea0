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
	"github.com/lassandro/goia32/pkg/assembler"
	"github.com/lassandro/goia32/pkg/machine"
)

type Breakpoint struct {
	Addr  uint32
	Label string
}

type Debugger struct {
	Break bool

	Breakpoints []Breakpoint
	Symbols     []assembler.Symbol

	HandleBreak func(*Debugger, *machine.Machine)
	HandleStep  func(*Debugger, *machine.Machine)
}
