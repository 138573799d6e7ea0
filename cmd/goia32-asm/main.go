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
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/lassandro/goia32/pkg/assembler"
	"github.com/lassandro/goia32/pkg/listing"
)

var outvar string
var stubvar uint32
var hexvar int
var disasmvar bool
var stdoutvar bool
var dumpvar bool

var exitcode int

var rootCmd = &cobra.Command{
	Use:   "goia32-asm [flags] file|-",
	Short: "Assembles a subset of IA-32 into raw machine code",
	Long: `goia32-asm translates MOV, ADD, SUB, CMP, JMP, JE and JNE over the
EAX, ECX, EDX and EBX registers into 32-bit machine code in a single pass.

The assembled bytes are written to <out>.bin, with a hex dump in <out>.hex,
the symbol listing in <out>.sym and the forward reference listing in
<out>.ref. Source is read from stdin when the file is '-' or when input is
piped and no file is given.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		exitcode = goia32_asm(cmd, args)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(
		&outvar, "out", "o", "",
		"Base name for the output files, overriding the one derived "+
			"from the input filename",
	)
	flags.Uint32Var(
		&stubvar, "stub-width", 0,
		"Reserves this many NOP bytes for each unimplemented mnemonic "+
			"instead of rejecting the line",
	)
	flags.IntVar(
		&hexvar, "hex-width", 0,
		"Bytes per hex dump line. 0 fits the terminal for --stdout "+
			"and uses 16 otherwise",
	)
	flags.BoolVar(&disasmvar, "disasm", false, "Also writes a disassembly listing to <out>.lst")
	flags.BoolVar(&stdoutvar, "stdout", false, "Prints the hex dump to stdout")
	flags.BoolVar(&dumpvar, "dump", false, "Pretty-prints the assembled program")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func underline(source []byte, err error) string {
	tokenErr, ok := err.(assembler.TokenError)

	if !ok {
		return err.Error()
	}

	cursor := tokenErr.GetPosition()

	if cursor.Line == 0 || cursor.LineByte >= int64(len(source)) {
		return err.Error()
	}

	line, _ := bufio.NewReader(
		bytes.NewReader(source[cursor.LineByte:]),
	).ReadString('\n')

	size := int(cursor.Size)

	if size < 1 {
		size = 1
	}

	underlinefmt := fmt.Sprintf(
		"%% %ds%s",
		int(cursor.Byte-cursor.LineByte)+1,
		strings.Repeat("~", size-1),
	)

	return fmt.Sprintf(
		"%s\n%s\n\033[31m%s\033[0m",
		err,
		strings.TrimRight(line, "\r\n"),
		fmt.Sprintf(underlinefmt, "^"),
	)
}

func writeArtifact(filename string, write func(io.Writer) error) error {
	file, err := os.Create(filename)

	if err != nil {
		return xerrors.Errorf("creating %s: %w", filename, err)
	}

	if err := write(file); err != nil {
		file.Close()
		return xerrors.Errorf("writing %s: %w", filename, err)
	}

	if err := file.Close(); err != nil {
		return xerrors.Errorf("closing %s: %w", filename, err)
	}

	return nil
}

func readInput(args []string) (name string, source []byte, err error) {
	if len(args) == 0 || args[0] == "-" {
		if len(args) == 0 {
			stat, err := os.Stdin.Stat()

			if err != nil {
				return "", nil, xerrors.Errorf("stdin: %w", err)
			}

			if stat.Mode()&os.ModeCharDevice != 0 {
				return "", nil, xerrors.New("No input file")
			}
		}

		source, err = io.ReadAll(os.Stdin)

		if err != nil {
			return "", nil, xerrors.Errorf("reading stdin: %w", err)
		}

		return "<stdin>", source, nil
	}

	file, err := os.Open(args[0])

	if err != nil {
		return "", nil, err
	}

	defer file.Close()

	name = filepath.Base(file.Name())

	if stat, err := file.Stat(); err != nil {
		return "", nil, err
	} else if stat.IsDir() {
		return "", nil, xerrors.Errorf("%s is not a valid assembly file", name)
	}

	if source, err = io.ReadAll(file); err != nil {
		return "", nil, xerrors.Errorf("reading %s: %w", name, err)
	}

	return name, source, nil
}

func goia32_asm(cmd *cobra.Command, args []string) int {
	name, source, err := readInput(args)

	if err != nil {
		glog.Error(err)
		fmt.Fprintln(os.Stderr, cmd.UseLine())
		return 1
	}

	if outvar == "" {
		if name == "<stdin>" {
			outvar = "out"
		} else {
			outvar = strings.TrimSuffix(name, filepath.Ext(name))
		}
	} else {
		outvar = strings.TrimSuffix(outvar, filepath.Ext(outvar))
	}

	failed := false

	sink := assembler.SinkFunc(func(err error) {
		if assembler.IsWarning(err) {
			glog.Warningf("%s:%s", name, underline(source, err))
		} else {
			failed = true
			glog.Errorf("%s:%s", name, underline(source, err))
		}
	})

	program, err := assembler.AssembleSource(
		bytes.NewReader(source), assembler.Config{StubWidth: stubvar}, sink,
	)

	if err != nil {
		glog.Errorf("%s: %v", name, err)
		return 1
	}

	glog.V(1).Infof(
		"%s: %d bytes, %d symbols, %d diagnostics",
		name, len(program.Code), len(program.Symbols), len(program.Diagnostics),
	)

	fileHexWidth := hexvar

	if fileHexWidth <= 0 {
		fileHexWidth = listing.DefaultHexWidth
	}

	artifacts := []struct {
		ext   string
		write func(io.Writer) error
	}{
		{".bin", func(w io.Writer) error {
			_, err := w.Write(program.Code)
			return err
		}},
		{".hex", func(w io.Writer) error {
			return listing.WriteHex(w, program.Code, fileHexWidth)
		}},
		{".sym", func(w io.Writer) error {
			return listing.WriteSymbols(w, program.Symbols)
		}},
		{".ref", func(w io.Writer) error {
			return listing.WriteReferences(w, program.References)
		}},
	}

	if disasmvar {
		artifacts = append(artifacts, struct {
			ext   string
			write func(io.Writer) error
		}{".lst", func(w io.Writer) error {
			return listing.WriteDisassembly(w, program.Code, program.Symbols)
		}})
	}

	for _, artifact := range artifacts {
		if err := writeArtifact(outvar+artifact.ext, artifact.write); err != nil {
			glog.Error(err)
			return 1
		}
	}

	if stdoutvar {
		if err := listing.WriteHex(os.Stdout, program.Code, stdoutHexWidth()); err != nil {
			glog.Error(err)
			return 1
		}
	}

	if dumpvar {
		pp.Println(program)
	}

	if failed {
		return 1
	}

	return 0
}

// stdoutHexWidth fits as many 8-byte groups as the terminal allows.
func stdoutHexWidth() int {
	if hexvar > 0 {
		return hexvar
	}

	if columns, ok := terminalColumns(os.Stdout); ok {
		if width := (columns / 3) &^ 7; width > 0 {
			return width
		}
	}

	return listing.DefaultHexWidth
}

func main() {
	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)

	if err := rootCmd.Execute(); err != nil {
		exitcode = 1
	}

	glog.Flush()
	os.Exit(exitcode)
}
