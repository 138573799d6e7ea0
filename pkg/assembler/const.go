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

type Register uint8
type InstructionType uint
type LineType uint
type DiagnosticKind uint
type DisplacementWidth uint8

const (
	REGISTER_EAX Register = 0b000
	REGISTER_ECX Register = 0b001
	REGISTER_EDX Register = 0b010
	REGISTER_EBX Register = 0b011
)

const (
	LINE_EMPTY LineType = iota
	LINE_LABEL
	LINE_INSTRUCTION
)

const (
	INSTRUCTION_INVALID InstructionType = iota
	INSTRUCTION_MOV
	INSTRUCTION_ADD
	INSTRUCTION_SUB
	INSTRUCTION_CMP
	INSTRUCTION_JMP
	INSTRUCTION_JE
	INSTRUCTION_JNE
)

const (
	DIAGNOSTIC_DUPLICATE_LABEL DiagnosticKind = iota + 1
	DIAGNOSTIC_MALFORMED_INSTRUCTION
	DIAGNOSTIC_INVALID_IMMEDIATE
	DIAGNOSTIC_UNSUPPORTED_ADDRESSING_MODE
	DIAGNOSTIC_UNIMPLEMENTED_MNEMONIC
	DIAGNOSTIC_UNDEFINED_LABEL
	DIAGNOSTIC_INVALID_LABEL
	DIAGNOSTIC_DISPLACEMENT_RANGE
)

const (
	DISPLACEMENT_REL8  DisplacementWidth = 1
	DISPLACEMENT_REL32 DisplacementWidth = 4
)

const (
	// Register-to-register forms, followed by ModR/M
	OPCODE_MOV_RM_R uint8 = 0x89
	OPCODE_ADD_RM_R uint8 = 0x01
	OPCODE_SUB_RM_R uint8 = 0x29
	OPCODE_CMP_RM_R uint8 = 0x39

	// Immediate forms
	OPCODE_MOV_R_IMM  uint8 = 0xB8 // +r, imm32
	OPCODE_GRP1_IMM32 uint8 = 0x81 // /ext, imm32

	// Relative jumps
	OPCODE_JMP_REL32 uint8 = 0xE9
	OPCODE_JE_REL8   uint8 = 0x74
	OPCODE_JNE_REL8  uint8 = 0x75

	// Filler for stubbed mnemonics
	OPCODE_NOP uint8 = 0x90
)

// Group 1 /ext values carried in the ModR/M reg field
const (
	EXT_ADD uint8 = 0b000
	EXT_SUB uint8 = 0b101
	EXT_CMP uint8 = 0b111
)

const (
	MODRM_MOD_REGISTER uint8 = 0b11

	LENGTH_RM_R    uint32 = 2
	LENGTH_MOV_IMM uint32 = 5
	LENGTH_GRP1    uint32 = 6
	LENGTH_JMP     uint32 = 5
	LENGTH_JCC     uint32 = 2
)
