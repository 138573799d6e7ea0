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

package assembler

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode"

	"github.com/golang/glog"

	"github.com/lassandro/goia32/pkg/encoding"
)

func ParseRegister(ident string) (Register, bool) {
	if strings.EqualFold(ident, "EAX") {
		return REGISTER_EAX, true
	} else if strings.EqualFold(ident, "ECX") {
		return REGISTER_ECX, true
	} else if strings.EqualFold(ident, "EDX") {
		return REGISTER_EDX, true
	} else if strings.EqualFold(ident, "EBX") {
		return REGISTER_EBX, true
	}

	return 0, false
}

func (reg Register) String() string {
	switch reg {
	case REGISTER_EAX:
		return "EAX"
	case REGISTER_ECX:
		return "ECX"
	case REGISTER_EDX:
		return "EDX"
	case REGISTER_EBX:
		return "EBX"
	}

	return "<invalid>"
}

func ParseInstruction(ident string) InstructionType {
	if strings.EqualFold(ident, "MOV") {
		return INSTRUCTION_MOV
	} else if strings.EqualFold(ident, "ADD") {
		return INSTRUCTION_ADD
	} else if strings.EqualFold(ident, "SUB") {
		return INSTRUCTION_SUB
	} else if strings.EqualFold(ident, "CMP") {
		return INSTRUCTION_CMP
	} else if strings.EqualFold(ident, "JMP") {
		return INSTRUCTION_JMP
	} else if strings.EqualFold(ident, "JE") {
		return INSTRUCTION_JE
	} else if strings.EqualFold(ident, "JNE") {
		return INSTRUCTION_JNE
	}

	return INSTRUCTION_INVALID
}

func (instruction InstructionType) String() string {
	switch instruction {
	case INSTRUCTION_MOV:
		return "MOV"
	case INSTRUCTION_ADD:
		return "ADD"
	case INSTRUCTION_SUB:
		return "SUB"
	case INSTRUCTION_CMP:
		return "CMP"
	case INSTRUCTION_JMP:
		return "JMP"
	case INSTRUCTION_JE:
		return "JE"
	case INSTRUCTION_JNE:
		return "JNE"
	}

	return "<invalid>"
}

// ClassifyLine strips the comment and surrounding whitespace from raw and
// decides whether what remains declares a label or holds an instruction.
func ClassifyLine(raw string) Line {
	if i := strings.IndexByte(raw, ';'); i != -1 {
		raw = raw[:i]
	}

	body := strings.TrimSpace(raw)

	if body == "" {
		return Line{Type: LINE_EMPTY}
	}

	column := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace)) + 1

	if strings.HasSuffix(body, ":") {
		return Line{
			Type:   LINE_LABEL,
			Body:   strings.TrimSpace(body[:len(body)-1]),
			Column: column,
		}
	}

	return Line{Type: LINE_INSTRUCTION, Body: body, Column: column}
}

func modRM(mod, reg, rm uint8) uint8 {
	return (mod&0x3)<<6 | (reg&0x7)<<3 | (rm & 0x7)
}

// Assembler holds the state of one assembly run: the code buffer, the
// location counter and both label tables.
type Assembler struct {
	Config Config
	Sink   Sink

	symbols  *SymbolTable
	pending  *PendingTable
	code     []byte
	counter  uint32
	errs     []error
	cursor   Cursor
	resolved bool
}

func New(config Config, sink Sink) *Assembler {
	return &Assembler{
		Config:  config,
		Sink:    sink,
		symbols: NewSymbolTable(),
		pending: NewPendingTable(),
		code:    make([]byte, 0, 256),
		cursor:  Cursor{Line: 1},
	}
}

func (a *Assembler) Counter() uint32 {
	return a.counter
}

func (a *Assembler) Symbols() *SymbolTable {
	return a.symbols
}

func (a *Assembler) Pending() *PendingTable {
	return a.pending
}

func (a *Assembler) report(err error) {
	a.errs = append(a.errs, err)

	if a.Sink != nil {
		a.Sink.Report(err)
	}
}

func (a *Assembler) position(column int, size int) Cursor {
	return Cursor{
		Line:     a.cursor.Line,
		Column:   column,
		Byte:     a.cursor.LineByte + int64(column-1),
		Size:     int64(size),
		LineByte: a.cursor.LineByte,
	}
}

func (a *Assembler) emit(data ...byte) {
	a.code = append(a.code, data...)
	a.counter += uint32(len(data))
}

// ProcessLine consumes the next source line. raw may keep its "\n" or
// "\r\n" terminator; without one a single "\n" is assumed when advancing
// the byte cursor. ProcessLine panics once Resolve has been called.
func (a *Assembler) ProcessLine(raw string) {
	if a.resolved {
		panic("ProcessLine called after Resolve")
	}

	line := ClassifyLine(raw)

	switch line.Type {
	case LINE_LABEL:
		pos := a.position(line.Column, len(line.Body))

		if line.Body == "" {
			a.report(&InvalidLabelError{pos})
			break
		}

		if err := a.symbols.Define(line.Body, a.counter, pos); err != nil {
			a.report(err)
		} else {
			glog.V(1).Infof("label '%s' defined at %04X", line.Body, a.counter)
		}

	case LINE_INSTRUCTION:
		a.processInstruction(line)
	}

	consumed := len(raw)

	if !strings.HasSuffix(raw, "\n") {
		consumed++
	}

	a.cursor.Line++
	a.cursor.LineByte += int64(consumed)
	a.cursor.Byte = a.cursor.LineByte
}

// tokenize splits an instruction body into its mnemonic and comma separated
// operands, upper-casing every token.
func (a *Assembler) tokenize(line Line) (keyword Token, operands []Token) {
	body := line.Body

	end := strings.IndexFunc(body, unicode.IsSpace)
	if end == -1 {
		end = len(body)
	}

	keyword = Token{a.position(line.Column, end), strings.ToUpper(body[:end])}

	rest := body[end:]
	if strings.TrimSpace(rest) == "" {
		return
	}

	offset := end
	for _, field := range strings.Split(rest, ",") {
		value := strings.TrimSpace(field)
		lead := len(field) - len(strings.TrimLeftFunc(field, unicode.IsSpace))

		operands = append(operands, Token{
			a.position(line.Column+offset+lead, len(value)),
			strings.ToUpper(value),
		})

		offset += len(field) + 1
	}

	return
}

func (a *Assembler) processInstruction(line Line) {
	keyword, operands := a.tokenize(line)

	switch instruction := ParseInstruction(keyword.Value); instruction {
	case INSTRUCTION_MOV,
		INSTRUCTION_ADD,
		INSTRUCTION_SUB,
		INSTRUCTION_CMP:
		a.encodeArithmetic(instruction, &keyword, operands)

	case INSTRUCTION_JMP,
		INSTRUCTION_JE,
		INSTRUCTION_JNE:
		a.encodeJump(instruction, &keyword, operands)

	default:
		a.report(
			&UnimplementedInstructionError{keyword.Position, keyword.Value},
		)

		// Reserve the stub so later addresses keep the reference layout
		if a.Config.StubWidth > 0 {
			a.emit(bytes.Repeat([]byte{OPCODE_NOP}, int(a.Config.StubWidth))...)
		}
	}
}

// MOV  |89       |11 src dest|                 | Register to register
// MOV  |B8+dest  |imm32                        | Immediate to register
// ADD  |01       |11 src dest|                 |
// ADD  |81       |11 000 dest|imm32            |
// SUB  |29       |11 src dest|                 |
// SUB  |81       |11 101 dest|imm32            |
// CMP  |39       |11 src dest|                 |
// CMP  |81       |11 111 dest|imm32            |
func (a *Assembler) encodeArithmetic(
	instruction InstructionType, keyword *Token, operands []Token,
) {
	if count := len(operands); count != 2 {
		a.report(
			&InvalidNumArgumentsError{
				keyword.Position, keyword.Value, 2, count,
			},
		)

		return
	}

	dest, src := &operands[0], &operands[1]

	destReg, ok := ParseRegister(dest.Value)

	if !ok {
		a.report(
			&UnsupportedAddressingModeError{
				dest.Position,
				keyword.Value,
				[]string{dest.Value, src.Value},
			},
		)

		return
	}

	addr := a.counter

	if srcReg, ok := ParseRegister(src.Value); ok {
		var opcode uint8

		switch instruction {
		case INSTRUCTION_MOV:
			opcode = OPCODE_MOV_RM_R
		case INSTRUCTION_ADD:
			opcode = OPCODE_ADD_RM_R
		case INSTRUCTION_SUB:
			opcode = OPCODE_SUB_RM_R
		case INSTRUCTION_CMP:
			opcode = OPCODE_CMP_RM_R
		}

		a.emit(opcode, modRM(MODRM_MOD_REGISTER, uint8(srcReg), uint8(destReg)))

		glog.V(2).Infof(
			"%04X: %s %s, %s -> % X",
			addr, instruction, destReg, srcReg, a.code[addr:],
		)

		return
	}

	imm, err := encoding.DecodeImmediate(src.Value)

	if err != nil {
		a.report(&InvalidImmediateError{src.Position, src.Value})
		return
	}

	var imm32 [4]byte
	encoding.PutDisplacement(imm32[:], int64(imm), 4)

	switch instruction {
	case INSTRUCTION_MOV:
		a.emit(OPCODE_MOV_R_IMM + uint8(destReg))

	case INSTRUCTION_ADD:
		a.emit(OPCODE_GRP1_IMM32, modRM(MODRM_MOD_REGISTER, EXT_ADD, uint8(destReg)))

	case INSTRUCTION_SUB:
		a.emit(OPCODE_GRP1_IMM32, modRM(MODRM_MOD_REGISTER, EXT_SUB, uint8(destReg)))

	case INSTRUCTION_CMP:
		a.emit(OPCODE_GRP1_IMM32, modRM(MODRM_MOD_REGISTER, EXT_CMP, uint8(destReg)))
	}

	a.emit(imm32[:]...)

	glog.V(2).Infof(
		"%04X: %s %s, %#x -> % X",
		addr, instruction, destReg, imm, a.code[addr:],
	)
}

// JMP  |E9       |rel32                        | Relative jump
// JE   |74       |rel8                         | Jump if equal
// JNE  |75       |rel8                         | Jump if not equal
func (a *Assembler) encodeJump(
	instruction InstructionType, keyword *Token, operands []Token,
) {
	if count := len(operands); count != 1 {
		a.report(
			&InvalidNumArgumentsError{
				keyword.Position, keyword.Value, 1, count,
			},
		)

		return
	}

	label := &operands[0]

	var length uint32
	var width DisplacementWidth
	var scratch [LENGTH_JMP]byte

	switch instruction {
	case INSTRUCTION_JMP:
		scratch[0] = OPCODE_JMP_REL32
		length, width = LENGTH_JMP, DISPLACEMENT_REL32
	case INSTRUCTION_JE:
		scratch[0] = OPCODE_JE_REL8
		length, width = LENGTH_JCC, DISPLACEMENT_REL8
	case INSTRUCTION_JNE:
		scratch[0] = OPCODE_JNE_REL8
		length, width = LENGTH_JCC, DISPLACEMENT_REL8
	}

	addr := a.counter

	if target, exists := a.symbols.Lookup(label.Value); exists {
		displacement := int64(target) - int64(addr) - int64(length)

		a.checkDisplacement(label.Position, label.Value, displacement, width)
		encoding.PutDisplacement(scratch[1:], displacement, int(width))

		glog.V(2).Infof(
			"%04X: %s %s -> displacement %d",
			addr, instruction, label.Value, displacement,
		)
	} else {
		a.pending.Record(
			label.Value,
			Occurrence{
				Addr:        addr,
				PatchOffset: addr + 1,
				Length:      length,
				Width:       width,
				Position:    label.Position,
			},
		)

		glog.V(2).Infof(
			"%04X: %s %s -> pending", addr, instruction, label.Value,
		)
	}

	a.emit(scratch[:length]...)
}

func (a *Assembler) checkDisplacement(
	pos Cursor, label string, displacement int64, width DisplacementWidth,
) {
	bits := uint(width) * 8

	if !encoding.FitsSigned(displacement, bits) {
		a.report(
			&DisplacementRangeError{
				pos, label, int64(1) << (bits - 1), displacement,
			},
		)
	}
}

// Resolve patches every pending reference whose label is now defined and
// reports each label that never was. Calling it more than once has no
// further effect.
func (a *Assembler) Resolve() {
	if a.resolved {
		return
	}

	a.resolved = true

	for _, ref := range a.pending.refs {
		target, exists := a.symbols.Lookup(ref.Label)

		if !exists {
			a.report(
				&UnknownLabelError{
					ref.Occurrences[0].Position,
					ref.Label,
					len(ref.Occurrences),
				},
			)

			continue
		}

		for _, occurrence := range ref.Occurrences {
			displacement := int64(target) -
				int64(occurrence.Addr) -
				int64(occurrence.Length)

			a.checkDisplacement(
				occurrence.Position, ref.Label, displacement, occurrence.Width,
			)

			encoding.PutDisplacement(
				a.code[occurrence.PatchOffset:],
				displacement,
				int(occurrence.Width),
			)
		}

		glog.V(1).Infof(
			"resolved %d references to '%s' at %04X",
			len(ref.Occurrences), ref.Label, target,
		)
	}
}

// Program returns a snapshot of the run's code, tables and diagnostics.
func (a *Assembler) Program() *Program {
	code := make([]byte, len(a.code))
	copy(code, a.code)

	errs := make([]error, len(a.errs))
	copy(errs, a.errs)

	return &Program{
		Code:        code,
		Symbols:     a.symbols.Symbols(),
		References:  a.pending.References(),
		Diagnostics: errs,
	}
}

// scanRawLines splits like bufio.ScanLines but keeps each line terminator.
func scanRawLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// AssembleSource runs a full pass over input followed by Resolve. The
// returned error is non-nil only when input itself could not be read;
// assembly diagnostics are in Program.Diagnostics.
func AssembleSource(input io.Reader, config Config, sink Sink) (*Program, error) {
	asm := New(config, sink)
	scanner := bufio.NewScanner(input)
	scanner.Split(scanRawLines)

	for scanner.Scan() {
		asm.ProcessLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	asm.Resolve()

	return asm.Program(), nil
}
