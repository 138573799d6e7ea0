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
	"fmt"
	"strings"
)

type Cursor struct {
	Line     int
	Column   int
	Byte     int64
	Size     int64
	LineByte int64
}

// Line is one classified source line. Body holds the comment-stripped,
// trimmed text (the label name for LINE_LABEL) and Column its 1-based
// position inside the raw line.
type Line struct {
	Type   LineType
	Body   string
	Column int
}

// Token is an upper-cased mnemonic or operand with its source position.
type Token struct {
	Position Cursor
	Value    string
}

type Symbol struct {
	Label    string
	Addr     uint32
	Position Cursor
}

// Occurrence is one forward jump waiting for its label. PatchOffset is
// always Addr+1, the first displacement byte after the opcode.
type Occurrence struct {
	Addr        uint32
	PatchOffset uint32
	Length      uint32
	Width       DisplacementWidth
	Position    Cursor
}

type PendingRef struct {
	Label       string
	Occurrences []Occurrence
}

type Program struct {
	Code        []byte
	Symbols     []Symbol
	References  []PendingRef
	Diagnostics []error
}

type Config struct {
	// StubWidth is the number of NOP bytes reserved for a mnemonic the
	// assembler does not implement. Zero rejects the line without moving
	// the location counter.
	StubWidth uint32
}

// Sink receives diagnostics as soon as they are detected.
type Sink interface {
	Report(err error)
}

type SinkFunc func(err error)

func (fn SinkFunc) Report(err error) {
	fn(err)
}

type TokenError interface {
	GetPosition() Cursor
}

type Diagnostic interface {
	error
	TokenError
	Kind() DiagnosticKind
}

func (kind DiagnosticKind) String() string {
	switch kind {
	case DIAGNOSTIC_DUPLICATE_LABEL:
		return "DuplicateLabel"
	case DIAGNOSTIC_MALFORMED_INSTRUCTION:
		return "MalformedInstruction"
	case DIAGNOSTIC_INVALID_IMMEDIATE:
		return "InvalidImmediate"
	case DIAGNOSTIC_UNSUPPORTED_ADDRESSING_MODE:
		return "UnsupportedAddressingMode"
	case DIAGNOSTIC_UNIMPLEMENTED_MNEMONIC:
		return "UnimplementedMnemonic"
	case DIAGNOSTIC_UNDEFINED_LABEL:
		return "UndefinedLabel"
	case DIAGNOSTIC_INVALID_LABEL:
		return "InvalidLabel"
	case DIAGNOSTIC_DISPLACEMENT_RANGE:
		return "DisplacementRange"
	}

	return "<invalid>"
}

// IsWarning reports whether err is a diagnostic that leaves the emitted
// program usable.
func IsWarning(err error) bool {
	if diag, ok := err.(Diagnostic); ok {
		return diag.Kind() == DIAGNOSTIC_DISPLACEMENT_RANGE
	}

	return false
}

type InvalidNumArgumentsError struct {
	Position    Cursor
	Instruction string
	Required    int
	Received    int
}

func (err *InvalidNumArgumentsError) GetPosition() Cursor {
	return err.Position
}

func (err *InvalidNumArgumentsError) Kind() DiagnosticKind {
	return DIAGNOSTIC_MALFORMED_INSTRUCTION
}

func (err *InvalidNumArgumentsError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Invalid number of arguments for %s\n\twant:%d\n\thave:%d",
		err.Position.Line,
		err.Position.Column,
		err.Instruction,
		err.Required,
		err.Received,
	)
}

type InvalidImmediateError struct {
	Position Cursor
	Received string
}

func (err *InvalidImmediateError) GetPosition() Cursor {
	return err.Position
}

func (err *InvalidImmediateError) Kind() DiagnosticKind {
	return DIAGNOSTIC_INVALID_IMMEDIATE
}

func (err *InvalidImmediateError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Invalid immediate value '%s'",
		err.Position.Line,
		err.Position.Column,
		err.Received,
	)
}

type UnsupportedAddressingModeError struct {
	Position    Cursor
	Instruction string
	Operands    []string
}

func (err *UnsupportedAddressingModeError) GetPosition() Cursor {
	return err.Position
}

func (err *UnsupportedAddressingModeError) Kind() DiagnosticKind {
	return DIAGNOSTIC_UNSUPPORTED_ADDRESSING_MODE
}

func (err *UnsupportedAddressingModeError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Unsupported addressing mode\n\twant:%s reg, reg|imm\n\thave:%s %s",
		err.Position.Line,
		err.Position.Column,
		err.Instruction,
		err.Instruction,
		strings.Join(err.Operands, ", "),
	)
}

type UnimplementedInstructionError struct {
	Position Cursor
	Received string
}

func (err *UnimplementedInstructionError) GetPosition() Cursor {
	return err.Position
}

func (err *UnimplementedInstructionError) Kind() DiagnosticKind {
	return DIAGNOSTIC_UNIMPLEMENTED_MNEMONIC
}

func (err *UnimplementedInstructionError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Instruction '%s' is not implemented",
		err.Position.Line,
		err.Position.Column,
		err.Received,
	)
}

type RedeclaredLabelError struct {
	Position Cursor
	Received string
	Addr     uint32
}

func (err *RedeclaredLabelError) GetPosition() Cursor {
	return err.Position
}

func (err *RedeclaredLabelError) Kind() DiagnosticKind {
	return DIAGNOSTIC_DUPLICATE_LABEL
}

func (err *RedeclaredLabelError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Redeclaration of label '%s' (first declared at %04X)",
		err.Position.Line,
		err.Position.Column,
		err.Received,
		err.Addr,
	)
}

type InvalidLabelError struct {
	Position Cursor
}

func (err *InvalidLabelError) GetPosition() Cursor {
	return err.Position
}

func (err *InvalidLabelError) Kind() DiagnosticKind {
	return DIAGNOSTIC_INVALID_LABEL
}

func (err *InvalidLabelError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Empty label declaration",
		err.Position.Line,
		err.Position.Column,
	)
}

// UnknownLabelError is reported once per label, positioned at its first
// reference.
type UnknownLabelError struct {
	Position   Cursor
	Received   string
	References int
}

func (err *UnknownLabelError) GetPosition() Cursor {
	return err.Position
}

func (err *UnknownLabelError) Kind() DiagnosticKind {
	return DIAGNOSTIC_UNDEFINED_LABEL
}

func (err *UnknownLabelError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Unknown label '%s' (%d references)",
		err.Position.Line,
		err.Position.Column,
		err.Received,
		err.References,
	)
}

type DisplacementRangeError struct {
	Position Cursor
	Label    string
	Required int64
	Received int64
}

func (err *DisplacementRangeError) GetPosition() Cursor {
	return err.Position
}

func (err *DisplacementRangeError) Kind() DiagnosticKind {
	return DIAGNOSTIC_DISPLACEMENT_RANGE
}

func (err *DisplacementRangeError) Error() string {
	return fmt.Sprintf(
		"%02d:%02d: Label '%s' exceeds short jump distance, displacement truncated\n\twant:%d\n\thave:%d",
		err.Position.Line,
		err.Position.Column,
		err.Label,
		err.Required,
		err.Received,
	)
}
