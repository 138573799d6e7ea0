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

package assembler_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/lassandro/goia32/pkg/assembler"
)

type testCase struct {
	Name   string
	Input  string
	Output []byte
}

type failCase struct {
	Name   string
	Input  string
	Error  error
	Output []byte
}

func assemble(t *testing.T, input string, config assembler.Config) *assembler.Program {
	program, err := assembler.AssembleSource(
		strings.NewReader(input), config, nil,
	)
	require.NoError(t, err)
	return program
}

// requireDecodes walks code with an independent decoder so every emitted
// instruction is checked to be well formed 32-bit machine code.
func requireDecodes(t *testing.T, code []byte) {
	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 32)
		require.NoError(t, err, "decoding at %#04x", pc)
		pc += inst.Len
	}
}

func requireCode(t *testing.T, want, have []byte) {
	if len(want) == 0 {
		require.Empty(t, have)
	} else {
		require.Equal(t, want, have)
	}
}

func testAssemblerSuccess(t *testing.T, test *testCase) {
	program := assemble(t, test.Input, assembler.Config{})

	require.Empty(t, program.Diagnostics)
	requireCode(t, test.Output, program.Code)
	requireDecodes(t, program.Code)
}

func testAssemblerFail(t *testing.T, test *failCase) {
	if test.Error == nil {
		panic("Fail case missing error value")
	}

	program := assemble(t, test.Input, assembler.Config{})

	require.Len(t, program.Diagnostics, 1, "%v", program.Diagnostics)
	require.IsType(t, test.Error, program.Diagnostics[0])
	requireCode(t, test.Output, program.Code)
}

func testSuccess(t *testing.T, tests []testCase) {
	t.Run("Success", func(t *testing.T) {
		for _, test := range tests {
			test := test
			t.Run(test.Name, func(t *testing.T) {
				testAssemblerSuccess(t, &test)
			})
		}
	})
}

func testFail(t *testing.T, tests []failCase) {
	t.Run("Fail", func(t *testing.T) {
		for _, test := range tests {
			test := test
			t.Run(test.Name, func(t *testing.T) {
				testAssemblerFail(t, &test)
			})
		}
	})
}

// MOV  |89       |11 src dest|
// MOV  |B8+dest  |imm32      |
func TestMov(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:   "MOV reg reg",
			Input:  `MOV EAX, ECX`,
			Output: []byte{0x89, 0b11_001_000},
		},
		{
			Name:   "MOV reg reg same",
			Input:  `MOV EAX, EAX`,
			Output: []byte{0x89, 0xC0},
		},
		{
			Name:   "MOV reg imm",
			Input:  `MOV EBX, 10`,
			Output: []byte{0xBB, 0x0A, 0x00, 0x00, 0x00},
		},
		{
			Name:   "MOV reg hex",
			Input:  `mov edx, 0x10`,
			Output: []byte{0xBA, 0x10, 0x00, 0x00, 0x00},
		},
		{
			Name:   "MOV reg negative",
			Input:  `MOV ECX, -1`,
			Output: []byte{0xB9, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			Name:   "MOV reg max",
			Input:  `MOV EAX, 0xFFFFFFFF`,
			Output: []byte{0xB8, 0xFF, 0xFF, 0xFF, 0xFF},
		},
	})

	testFail(t, []failCase{
		{
			Name:  "MOV Bad Argc",
			Input: `MOV EAX`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:  "MOV Bad Argc",
			Input: `MOV EAX, ECX, EDX`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:  "MOV No Operands",
			Input: `MOV`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:  "MOV Label Source",
			Input: `MOV EAX, FOO`,
			Error: &assembler.InvalidImmediateError{},
		},
		{
			Name:  "MOV Unknown Register Source",
			Input: `MOV EAX, ESI`,
			Error: &assembler.InvalidImmediateError{},
		},
		{
			Name:  "MOV Empty Source",
			Input: `MOV EAX,`,
			Error: &assembler.InvalidImmediateError{},
		},
		{
			Name:  "MOV Oversized Immediate",
			Input: `MOV EAX, 0x1FFFFFFFF`,
			Error: &assembler.InvalidImmediateError{},
		},
		{
			Name:  "MOV Immediate Destination",
			Input: `MOV 5, EAX`,
			Error: &assembler.UnsupportedAddressingModeError{},
		},
		{
			Name:  "MOV Two Immediates",
			Input: `MOV 5, 6`,
			Error: &assembler.UnsupportedAddressingModeError{},
		},
		{
			Name:  "MOV Unknown Register Destination",
			Input: `MOV ESI, EAX`,
			Error: &assembler.UnsupportedAddressingModeError{},
		},
	})
}

// ADD  |01       |11 src dest|
// ADD  |81       |11 000 dest|imm32
func TestAdd(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:   "ADD reg reg",
			Input:  `ADD ECX, EDX`,
			Output: []byte{0x01, 0b11_010_001},
		},
		{
			Name:   "ADD reg imm",
			Input:  `ADD EAX, 5`,
			Output: []byte{0x81, 0b11_000_000, 0x05, 0x00, 0x00, 0x00},
		},
		{
			Name:   "ADD reg hex",
			Input:  `ADD EBX, 0x12345678`,
			Output: []byte{0x81, 0b11_000_011, 0x78, 0x56, 0x34, 0x12},
		},
	})

	testFail(t, []failCase{
		{
			Name:  "ADD Bad Argc",
			Input: `ADD EAX`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:  "ADD Bad Immediate",
			Input: `ADD EAX, 1.5`,
			Error: &assembler.InvalidImmediateError{},
		},
		{
			Name:  "ADD Immediate Destination",
			Input: `ADD 1, EAX`,
			Error: &assembler.UnsupportedAddressingModeError{},
		},
	})
}

// SUB  |29       |11 src dest|
// SUB  |81       |11 101 dest|imm32
func TestSub(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:   "SUB reg reg",
			Input:  `SUB EAX, EBX`,
			Output: []byte{0x29, 0b11_011_000},
		},
		{
			Name:   "SUB reg imm",
			Input:  `SUB EBX, 0x100`,
			Output: []byte{0x81, 0b11_101_011, 0x00, 0x01, 0x00, 0x00},
		},
	})

	testFail(t, []failCase{
		{
			Name:  "SUB Bad Argc",
			Input: `SUB EAX, EBX, ECX`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
	})
}

// CMP  |39       |11 src dest|
// CMP  |81       |11 111 dest|imm32
func TestCmp(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:   "CMP reg reg",
			Input:  `CMP EDX, EAX`,
			Output: []byte{0x39, 0b11_000_010},
		},
		{
			Name:   "CMP reg imm",
			Input:  `CMP ECX, 0`,
			Output: []byte{0x81, 0b11_111_001, 0x00, 0x00, 0x00, 0x00},
		},
	})

	testFail(t, []failCase{
		{
			Name:  "CMP Bad Immediate",
			Input: `CMP ECX, ZERO`,
			Error: &assembler.InvalidImmediateError{},
		},
	})
}

// JMP  |E9       |rel32
// JE   |74       |rel8
// JNE  |75       |rel8
func TestJump(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:   "JMP Backwards",
			Input:  "LOOP:\nJMP LOOP",
			Output: []byte{0xE9, 0xFB, 0xFF, 0xFF, 0xFF},
		},
		{
			Name:   "JE Backwards",
			Input:  "LOOP:\nJE LOOP",
			Output: []byte{0x74, 0xFE},
		},
		{
			Name:   "JNE Backwards",
			Input:  "LOOP:\nMOV EAX, ECX\nJNE LOOP",
			Output: []byte{0x89, 0xC8, 0x75, 0xFC},
		},
		{
			Name:   "JMP Forwards",
			Input:  "JMP END\nMOV EAX, ECX\nEND:",
			Output: []byte{0xE9, 0x02, 0x00, 0x00, 0x00, 0x89, 0xC8},
		},
		{
			Name:   "JE Forwards",
			Input:  "JE END\nMOV EAX, ECX\nEND:",
			Output: []byte{0x74, 0x02, 0x89, 0xC8},
		},
		{
			Name:   "JNE Forwards Next",
			Input:  "JNE NEXT\nNEXT:",
			Output: []byte{0x75, 0x00},
		},
		{
			Name: "Forwards Multiple",
			Input: `
			JMP DONE
			JNE DONE
			MOV EAX, 1
			DONE:
			`,
			Output: []byte{
				0xE9, 0x07, 0x00, 0x00, 0x00, // JMP +7
				0x75, 0x05, // JNE +5
				0xB8, 0x01, 0x00, 0x00, 0x00, // MOV EAX, 1
			},
		},
		{
			Name: "Forwards And Backwards",
			Input: `
			START:
				JMP TARGET
				MOV EBX, 10
			TARGET:
				JE START
			`,
			Output: []byte{
				0xE9, 0x05, 0x00, 0x00, 0x00, // JMP TARGET (10 - 0 - 5)
				0xBB, 0x0A, 0x00, 0x00, 0x00, // MOV EBX, 10
				0x74, 0xF4, // JE START (0 - 10 - 2)
			},
		},
	})

	testFail(t, []failCase{
		{
			Name:  "JMP Bad Argc",
			Input: `JMP`,
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:  "JE Bad Argc",
			Input: "L:\nJE L, L",
			Error: &assembler.InvalidNumArgumentsError{},
		},
		{
			Name:   "JMP Unknown Label",
			Input:  `JMP NOWHERE`,
			Error:  &assembler.UnknownLabelError{},
			Output: []byte{0xE9, 0x00, 0x00, 0x00, 0x00},
		},
		{
			Name:   "JE Unknown Label",
			Input:  `JE NOWHERE`,
			Error:  &assembler.UnknownLabelError{},
			Output: []byte{0x74, 0x00},
		},
		{
			Name:   "JMP Register Is A Label",
			Input:  `JMP EAX`,
			Error:  &assembler.UnknownLabelError{},
			Output: []byte{0xE9, 0x00, 0x00, 0x00, 0x00},
		},
	})
}

func TestJumpLong(t *testing.T) {
	body := strings.Repeat("ADD EAX, 1\n", 50)

	t.Run("Forwards", func(t *testing.T) {
		program := assemble(t, "JMP END\n"+body+"END:\n", assembler.Config{})
		require.Empty(t, program.Diagnostics)

		// 300 bytes of ADD: 0x12C. Patching only the low displacement byte
		// would leave 0x2C 0x00 here.
		require.Equal(t, []byte{0xE9, 0x2C, 0x01, 0x00, 0x00}, program.Code[:5])
		require.Len(t, program.Code, 305)
		requireDecodes(t, program.Code)
	})

	t.Run("Backwards", func(t *testing.T) {
		program := assemble(t, "TOP:\n"+body+"JMP TOP\n", assembler.Config{})
		require.Empty(t, program.Diagnostics)

		// 0 - 300 - 5 = -305
		require.Equal(
			t, []byte{0xE9, 0xCF, 0xFE, 0xFF, 0xFF}, program.Code[300:],
		)
	})

	t.Run("Short Out Of Range", func(t *testing.T) {
		for _, input := range []string{
			"JE FAR\n" + body + "FAR:\n",
			"FAR:\n" + body + "JNE FAR\n",
		} {
			program := assemble(t, input, assembler.Config{})

			require.Len(t, program.Diagnostics, 1)
			require.IsType(
				t, &assembler.DisplacementRangeError{}, program.Diagnostics[0],
			)
			require.True(t, assembler.IsWarning(program.Diagnostics[0]))
			require.Len(t, program.Code, 302)
		}
	})
}

func TestDecodeCrossCheck(t *testing.T) {
	for _, tc := range []struct {
		input string
		op    x86asm.Op
		args  []x86asm.Arg
	}{
		{"MOV EAX, ECX", x86asm.MOV, []x86asm.Arg{x86asm.EAX, x86asm.ECX}},
		{"MOV EBX, 10", x86asm.MOV, []x86asm.Arg{x86asm.EBX, x86asm.Imm(10)}},
		{"ADD EAX, 5", x86asm.ADD, []x86asm.Arg{x86asm.EAX, x86asm.Imm(5)}},
		{"ADD ECX, EDX", x86asm.ADD, []x86asm.Arg{x86asm.ECX, x86asm.EDX}},
		{"SUB EDX, EBX", x86asm.SUB, []x86asm.Arg{x86asm.EDX, x86asm.EBX}},
		{"SUB EBX, 0x100", x86asm.SUB, []x86asm.Arg{x86asm.EBX, x86asm.Imm(0x100)}},
		{"CMP ECX, 0x20", x86asm.CMP, []x86asm.Arg{x86asm.ECX, x86asm.Imm(0x20)}},
		{"CMP EAX, EBX", x86asm.CMP, []x86asm.Arg{x86asm.EAX, x86asm.EBX}},
		{"L:\nJMP L", x86asm.JMP, []x86asm.Arg{x86asm.Rel(-5)}},
		{"L:\nJE L", x86asm.JE, []x86asm.Arg{x86asm.Rel(-2)}},
		{"L:\nJNE L", x86asm.JNE, []x86asm.Arg{x86asm.Rel(-2)}},
	} {
		t.Run(strings.ReplaceAll(tc.input, "\n", " "), func(t *testing.T) {
			program := assemble(t, tc.input, assembler.Config{})
			require.Empty(t, program.Diagnostics)

			inst, err := x86asm.Decode(program.Code, 32)
			require.NoError(t, err)
			require.Equal(t, len(program.Code), inst.Len)
			require.Equal(t, tc.op, inst.Op)

			for i, arg := range tc.args {
				require.Equal(t, arg, inst.Args[i])
			}
			require.Nil(t, inst.Args[len(tc.args)])
		})
	}
}

func TestComment(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:  "Comment Only",
			Input: `; nothing here`,
		},
		{
			Name:  "Blank Lines",
			Input: "\n   \n\t\n",
		},
		{
			Name:   "Trailing Comment",
			Input:  `MOV EAX, ECX ; copy ECX`,
			Output: []byte{0x89, 0xC8},
		},
		{
			Name:   "Label Comment",
			Input:  "JMP END\nEND: ; done",
			Output: []byte{0xE9, 0x00, 0x00, 0x00, 0x00},
		},
		{
			Name:   "Comment Hides Label Colon",
			Input:  "L:\nJE L ; not a label:",
			Output: []byte{0x74, 0xFE},
		},
	})
}

func TestLabel(t *testing.T) {
	t.Run("Zero Width", func(t *testing.T) {
		program := assemble(t, "A:\nB:\nMOV EAX, ECX\nC:\n", assembler.Config{})

		require.Empty(t, program.Diagnostics)
		require.Len(t, program.Symbols, 3)

		for i, want := range []struct {
			label string
			addr  uint32
		}{{"A", 0}, {"B", 0}, {"C", 2}} {
			require.Equal(t, want.label, program.Symbols[i].Label)
			require.Equal(t, want.addr, program.Symbols[i].Addr)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		program := assemble(
			t, "L:\nMOV EAX, ECX\nL:\nJMP L\n", assembler.Config{},
		)

		require.Len(t, program.Diagnostics, 1)

		redeclared, ok := program.Diagnostics[0].(*assembler.RedeclaredLabelError)
		require.True(t, ok)
		require.Equal(t, "L", redeclared.Received)
		require.Equal(t, uint32(0), redeclared.Addr)
		require.Equal(t, 3, redeclared.Position.Line)

		require.Len(t, program.Symbols, 1)
		require.Equal(t, uint32(0), program.Symbols[0].Addr)

		// JMP at 2 targets the first binding: 0 - 2 - 5
		require.Equal(t, []byte{0xE9, 0xF9, 0xFF, 0xFF, 0xFF}, program.Code[2:])
	})

	t.Run("Spaced Colon", func(t *testing.T) {
		program := assemble(t, "  LOOP :\nJMP LOOP", assembler.Config{})

		require.Empty(t, program.Diagnostics)
		require.Equal(t, "LOOP", program.Symbols[0].Label)
	})

	testFail(t, []failCase{
		{
			Name:  "Empty Label",
			Input: `:`,
			Error: &assembler.InvalidLabelError{},
		},
		{
			// Jump operands are upper-cased, declarations are not
			Name:   "Lowercase Label",
			Input:  "loop:\nJMP loop",
			Error:  &assembler.UnknownLabelError{},
			Output: []byte{0xE9, 0x00, 0x00, 0x00, 0x00},
		},
	})
}

func TestUndefinedLabel(t *testing.T) {
	program := assemble(t, `
	JMP X
	JE X
	JNE X
	JMP Y
	`, assembler.Config{})

	require.Len(t, program.Diagnostics, 2)

	x, ok := program.Diagnostics[0].(*assembler.UnknownLabelError)
	require.True(t, ok)
	require.Equal(t, "X", x.Received)
	require.Equal(t, 3, x.References)
	require.Equal(t, 2, x.Position.Line)

	y, ok := program.Diagnostics[1].(*assembler.UnknownLabelError)
	require.True(t, ok)
	require.Equal(t, "Y", y.Received)

	require.Equal(t, []byte{
		0xE9, 0x00, 0x00, 0x00, 0x00,
		0x74, 0x00,
		0x75, 0x00,
		0xE9, 0x00, 0x00, 0x00, 0x00,
	}, program.Code)

	// Every forward reference is listed, resolved or not
	require.Len(t, program.References, 2)
	require.Len(t, program.References[0].Occurrences, 3)
	require.Equal(t, uint32(5), program.References[0].Occurrences[1].Addr)
	require.Equal(t, uint32(6), program.References[0].Occurrences[1].PatchOffset)
}

func TestReferences(t *testing.T) {
	program := assemble(t, `
	JMP A
	B:
	JE A
	JNE B
	A:
	`, assembler.Config{})

	require.Empty(t, program.Diagnostics)
	require.Len(t, program.References, 1)

	ref := program.References[0]
	require.Equal(t, "A", ref.Label)
	require.Equal(t, []assembler.Occurrence{
		{
			Addr: 0, PatchOffset: 1, Length: 5,
			Width:    assembler.DISPLACEMENT_REL32,
			Position: ref.Occurrences[0].Position,
		},
		{
			Addr: 5, PatchOffset: 6, Length: 2,
			Width:    assembler.DISPLACEMENT_REL8,
			Position: ref.Occurrences[1].Position,
		},
	}, ref.Occurrences)

	for _, occurrence := range ref.Occurrences {
		require.Equal(
			t, occurrence.Addr+1, occurrence.PatchOffset,
		)
	}
}

func TestUnimplemented(t *testing.T) {
	testFail(t, []failCase{
		{
			Name:  "No Operands",
			Input: `NOP`,
			Error: &assembler.UnimplementedInstructionError{},
		},
		{
			Name:  "With Operands",
			Input: `PUSH EAX`,
			Error: &assembler.UnimplementedInstructionError{},
		},
		{
			Name:  "Label And Instruction",
			Input: `START: MOV EAX, ECX`,
			Error: &assembler.UnimplementedInstructionError{},
		},
	})

	t.Run("Stub Width", func(t *testing.T) {
		program := assemble(
			t, "JMP END\nNOP\nEND:\nMOV EAX, ECX",
			assembler.Config{StubWidth: 2},
		)

		require.Len(t, program.Diagnostics, 1)
		require.Equal(t, []byte{
			0xE9, 0x02, 0x00, 0x00, 0x00,
			0x90, 0x90,
			0x89, 0xC8,
		}, program.Code)
		require.Equal(t, uint32(7), program.Symbols[0].Addr)
		requireDecodes(t, program.Code)
	})

	t.Run("Counter", func(t *testing.T) {
		asm := assembler.New(assembler.Config{}, nil)
		asm.ProcessLine("HLT")
		require.Equal(t, uint32(0), asm.Counter())

		asm = assembler.New(assembler.Config{StubWidth: 2}, nil)
		asm.ProcessLine("HLT")
		require.Equal(t, uint32(2), asm.Counter())
		require.Len(t, asm.Program().Code, 2)
	})
}

func TestPosition(t *testing.T) {
	program := assemble(t, "; header\n  MOV EAX, FOO\n", assembler.Config{})

	require.Len(t, program.Diagnostics, 1)

	diag, ok := program.Diagnostics[0].(assembler.Diagnostic)
	require.True(t, ok)
	require.Equal(t, assembler.DIAGNOSTIC_INVALID_IMMEDIATE, diag.Kind())
	require.Equal(t, assembler.Cursor{
		Line:     2,
		Column:   12,
		Byte:     9 + 11,
		Size:     3,
		LineByte: 9,
	}, diag.GetPosition())
}

func TestPositionCRLF(t *testing.T) {
	program := assemble(
		t, "MOV EAX, ECX\r\nMOV EAX, FOO\r\n", assembler.Config{},
	)

	require.Len(t, program.Diagnostics, 1)
	require.Equal(t, []byte{0x89, 0xC8}, program.Code)

	diag := program.Diagnostics[0].(assembler.Diagnostic)
	require.Equal(t, assembler.Cursor{
		Line:     2,
		Column:   10,
		Byte:     14 + 9,
		Size:     3,
		LineByte: 14,
	}, diag.GetPosition())
}

func TestPositionProcessLine(t *testing.T) {
	asm := assembler.New(assembler.Config{}, nil)

	asm.ProcessLine("L:\r\n")
	asm.ProcessLine("; no terminator")
	asm.ProcessLine("JMP X\n")
	asm.Resolve()

	program := asm.Program()
	require.Len(t, program.Diagnostics, 1)

	diag := program.Diagnostics[0].(assembler.Diagnostic)
	require.Equal(t, assembler.DIAGNOSTIC_UNDEFINED_LABEL, diag.Kind())
	require.Equal(t, 3, diag.GetPosition().Line)
	require.Equal(t, int64(4+16), diag.GetPosition().LineByte)
}

func TestSink(t *testing.T) {
	var reported []error

	program, err := assembler.AssembleSource(
		strings.NewReader("L:\nL:\nMOV EAX\nJMP NOWHERE\nRET\n"),
		assembler.Config{},
		assembler.SinkFunc(func(err error) {
			reported = append(reported, err)
		}),
	)
	require.NoError(t, err)
	require.Equal(t, program.Diagnostics, reported)

	kinds := make([]assembler.DiagnosticKind, 0, len(reported))
	for _, err := range reported {
		kinds = append(kinds, err.(assembler.Diagnostic).Kind())
	}

	require.Equal(t, []assembler.DiagnosticKind{
		assembler.DIAGNOSTIC_DUPLICATE_LABEL,
		assembler.DIAGNOSTIC_MALFORMED_INSTRUCTION,
		assembler.DIAGNOSTIC_UNIMPLEMENTED_MNEMONIC,
		assembler.DIAGNOSTIC_UNDEFINED_LABEL,
	}, kinds)

	for _, err := range reported {
		require.False(t, assembler.IsWarning(err))
	}
}

func TestDeterminism(t *testing.T) {
	const input = `
	START:
		MOV ECX, 3
	LOOP:
		SUB ECX, 1
		CMP ECX, 0
		JNE LOOP
		JMP DONE
		JMP MISSING
		NOP
		START:
	DONE:
	`

	first := assemble(t, input, assembler.Config{})
	second := assemble(t, input, assembler.Config{})

	require.NotEmpty(t, first.Diagnostics)
	require.Equal(t, first.Code, second.Code)
	require.Equal(t, first.Diagnostics, second.Diagnostics)
	require.Equal(t, first.Symbols, second.Symbols)
	require.Equal(t, first.References, second.References)
}

func TestResolve(t *testing.T) {
	asm := assembler.New(assembler.Config{}, nil)
	asm.ProcessLine("JMP X")
	asm.ProcessLine("MOV EAX, ECX")
	asm.ProcessLine("X:")

	// Placeholder until the sweep
	require.Equal(
		t, []byte{0xE9, 0, 0, 0, 0, 0x89, 0xC8}, asm.Program().Code,
	)
	require.Equal(t, 1, asm.Pending().Len())

	asm.Resolve()
	asm.Resolve()

	program := asm.Program()
	require.Empty(t, program.Diagnostics)
	require.Equal(t, []byte{0xE9, 2, 0, 0, 0, 0x89, 0xC8}, program.Code)

	require.Panics(t, func() { asm.ProcessLine("MOV EAX, ECX") })
}

func TestProgramSnapshot(t *testing.T) {
	asm := assembler.New(assembler.Config{}, nil)
	asm.ProcessLine("MOV EAX, ECX")

	program := asm.Program()
	program.Code[0] = 0x00

	require.Equal(t, byte(0x89), asm.Program().Code[0])
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device gone")
}

func TestSourceReadError(t *testing.T) {
	program, err := assembler.AssembleSource(
		failingReader{}, assembler.Config{}, nil,
	)

	require.Error(t, err)
	require.Nil(t, program)
}

func TestClassifyLine(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want assembler.Line
	}{
		{"", assembler.Line{Type: assembler.LINE_EMPTY}},
		{"   ; comment", assembler.Line{Type: assembler.LINE_EMPTY}},
		{"LOOP:", assembler.Line{Type: assembler.LINE_LABEL, Body: "LOOP", Column: 1}},
		{"\tLOOP :  ; x", assembler.Line{Type: assembler.LINE_LABEL, Body: "LOOP", Column: 2}},
		{"  mov eax, 1", assembler.Line{Type: assembler.LINE_INSTRUCTION, Body: "mov eax, 1", Column: 3}},
		{"JE L ; L:", assembler.Line{Type: assembler.LINE_INSTRUCTION, Body: "JE L", Column: 1}},
	} {
		require.Equal(t, tc.want, assembler.ClassifyLine(tc.in), tc.in)
	}
}

func TestParseRegister(t *testing.T) {
	for name, want := range map[string]assembler.Register{
		"EAX": assembler.REGISTER_EAX,
		"ecx": assembler.REGISTER_ECX,
		"EDX": assembler.REGISTER_EDX,
		"EbX": assembler.REGISTER_EBX,
	} {
		have, ok := assembler.ParseRegister(name)
		require.True(t, ok, name)
		require.Equal(t, want, have)
		require.Equal(t, strings.ToUpper(name), have.String())
	}

	for _, name := range []string{"ESI", "EDI", "ESP", "EBP", "AX", "R0", ""} {
		_, ok := assembler.ParseRegister(name)
		require.False(t, ok, name)
	}
}
