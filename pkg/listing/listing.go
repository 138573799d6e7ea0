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

package listing

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/xerrors"

	"github.com/lassandro/goia32/pkg/assembler"
)

const DefaultHexWidth = 16

func hexByte(b byte, _ int) string {
	return fmt.Sprintf("%02X", b)
}

// WriteHex writes code as space separated uppercase hex bytes, width bytes
// per line. A width of zero or less puts everything on one line.
func WriteHex(w io.Writer, code []byte, width int) error {
	if len(code) == 0 {
		return nil
	}

	if width <= 0 {
		width = len(code)
	}

	out := bufio.NewWriter(w)

	for _, row := range lo.Chunk(code, width) {
		fmt.Fprintln(out, strings.Join(lo.Map(row, hexByte), " "))
	}

	if err := out.Flush(); err != nil {
		return xerrors.Errorf("writing hex dump: %w", err)
	}

	return nil
}

// WriteSymbols writes one "LABEL: ADDR" line per symbol, ADDR being four
// uppercase hex digits.
func WriteSymbols(w io.Writer, symbols []assembler.Symbol) error {
	out := bufio.NewWriter(w)

	for _, symbol := range symbols {
		fmt.Fprintf(out, "%s: %04X\n", symbol.Label, symbol.Addr)
	}

	if err := out.Flush(); err != nil {
		return xerrors.Errorf("writing symbol listing: %w", err)
	}

	return nil
}

// WriteReferences writes one "LABEL: 0x0, 0x7" line per label that was
// referenced before its declaration, listing the address of every jump.
func WriteReferences(w io.Writer, refs []assembler.PendingRef) error {
	out := bufio.NewWriter(w)

	for _, ref := range refs {
		addrs := lo.Map(
			ref.Occurrences,
			func(occurrence assembler.Occurrence, _ int) string {
				return fmt.Sprintf("%#x", occurrence.Addr)
			},
		)

		fmt.Fprintf(out, "%s: %s\n", ref.Label, strings.Join(addrs, ", "))
	}

	if err := out.Flush(); err != nil {
		return xerrors.Errorf("writing reference listing: %w", err)
	}

	return nil
}

// ReadSymbols parses a listing produced by WriteSymbols.
func ReadSymbols(r io.Reader) ([]assembler.Symbol, error) {
	var symbols []assembler.Symbol

	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		if text == "" {
			continue
		}

		sep := strings.LastIndex(text, ":")

		if sep <= 0 {
			return nil, xerrors.Errorf(
				"symbol listing line %d: missing ':' in %q", line, text,
			)
		}

		addr, err := strconv.ParseUint(
			strings.TrimSpace(text[sep+1:]), 16, 32,
		)

		if err != nil {
			return nil, xerrors.Errorf("symbol listing line %d: %w", line, err)
		}

		symbols = append(symbols, assembler.Symbol{
			Label: strings.TrimSpace(text[:sep]),
			Addr:  uint32(addr),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("reading symbol listing: %w", err)
	}

	return symbols, nil
}

// WriteDisassembly decodes code as 32-bit x86 and writes one line per
// instruction with its address, raw bytes and Intel syntax, labels
// interleaved at their addresses.
func WriteDisassembly(w io.Writer, code []byte, symbols []assembler.Symbol) error {
	labels := lo.GroupBy(symbols, func(symbol assembler.Symbol) uint32 {
		return symbol.Addr
	})

	lookup := func(addr uint64) (string, uint64) {
		if found, exists := labels[uint32(addr)]; exists {
			return found[0].Label, addr
		}

		return "", 0
	}

	out := bufio.NewWriter(w)

	printLabels := func(addr uint32) {
		for _, symbol := range labels[addr] {
			fmt.Fprintf(out, "%s:\n", symbol.Label)
		}
	}

	for pc := 0; pc < len(code); {
		printLabels(uint32(pc))

		inst, err := x86asm.Decode(code[pc:], 32)

		if err != nil || inst.Op == 0 {
			fmt.Fprintf(out, "  %04X  %-18s .byte 0x%02x\n", pc, hexByte(code[pc], 0), code[pc])
			pc++
			continue
		}

		raw := strings.Join(lo.Map(code[pc:pc+inst.Len], hexByte), " ")

		fmt.Fprintf(
			out, "  %04X  %-18s %s\n",
			pc, raw, x86asm.IntelSyntax(inst, uint64(pc), lookup),
		)

		pc += inst.Len
	}

	// Labels declared after the last instruction
	for _, symbol := range symbols {
		if int(symbol.Addr) >= len(code) {
			fmt.Fprintf(out, "%s:\n", symbol.Label)
		}
	}

	if err := out.Flush(); err != nil {
		return xerrors.Errorf("writing disassembly: %w", err)
	}

	return nil
}
