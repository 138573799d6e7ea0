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
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/lassandro/goia32/pkg/debugger"
	"github.com/lassandro/goia32/pkg/listing"
	"github.com/lassandro/goia32/pkg/machine"
)

var symbolsvar string
var breakvar []string
var tracevar bool
var stepsvar uint
var dumpvar bool
var debugvar bool

var exitcode int

var rootCmd = &cobra.Command{
	Use:   "goia32 [flags] file.bin",
	Short: "Runs code produced by goia32-asm",
	Long: `goia32 loads a raw binary at address 0 and executes it until the
instruction pointer leaves the loaded code, then prints the registers.

Breakpoints may name an address or a label. Labels are resolved through
the symbol listing, which defaults to the .sym file next to the binary.

With --debug the program stops before its first instruction and at every
breakpoint in an interactive prompt; Ctrl+C breaks into the prompt.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		exitcode = goia32(args[0])
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(
		&symbolsvar, "symbols", "",
		"Symbol listing used to resolve labels, overriding the one "+
			"derived from the binary filename",
	)
	flags.StringSliceVar(&breakvar, "break", nil, "Reports machine state at these addresses or labels")
	flags.BoolVar(&tracevar, "trace", false, "Prints each instruction before it executes")
	flags.UintVar(&stepsvar, "steps", machine.DefaultStepLimit, "Maximum number of instructions to execute")
	flags.BoolVar(&dumpvar, "dump", false, "Pretty-prints the final machine state")
	flags.BoolVar(&debugvar, "debug", false, "Runs the machine in an interactive debugger")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func loadSymbols(dbg *debugger.Debugger, binfile string) error {
	filename := symbolsvar

	if filename == "" {
		filename = strings.TrimSuffix(binfile, filepath.Ext(binfile)) + ".sym"

		if _, err := os.Stat(filename); err != nil {
			glog.V(1).Infof("No symbol listing at %s", filename)
			return nil
		}
	}

	file, err := os.Open(filename)

	if err != nil {
		return xerrors.Errorf("loading symbols: %w", err)
	}

	defer file.Close()

	if dbg.Symbols, err = listing.ReadSymbols(file); err != nil {
		return xerrors.Errorf("loading symbols from %s: %w", filename, err)
	}

	return nil
}

func handleBreak(dbg *debugger.Debugger, mc *machine.Machine) {
	fmt.Println("\033[1mbreak\033[0m")
	dbg.PrintInstruction(os.Stdout, mc)
	dbg.PrintState(os.Stdout, mc)
}

func handleStep(dbg *debugger.Debugger, mc *machine.Machine) {
	dbg.PrintInstruction(os.Stdout, mc)
}

func goia32(binfile string) int {
	file, err := os.Open(binfile)

	if err != nil {
		glog.Error(err)
		return 1
	}

	defer file.Close()

	var mc machine.Machine
	var dbg debugger.Debugger

	mc.Config.StepLimit = stepsvar
	mc.Debugger = &dbg

	if err := loadSymbols(&dbg, binfile); err != nil {
		glog.Error(err)
		return 1
	}

	for _, target := range breakvar {
		if err := dbg.AddBreakpoint(target); err != nil {
			glog.Error(err)
			return 1
		}
	}

	if tracevar {
		dbg.HandleStep = handleStep
	}

	if err := mc.LoadBin(file); err != nil {
		glog.Errorf("loading %s: %v", binfile, err)
		return 1
	}

	var ctx context.Context

	if debugvar {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		defer cancel()

		code := append([]byte(nil), mc.State.Memory...)
		session := newDebugSession(os.Stdin, os.Stdout, code, cancel)

		dbg.HandleBreak = session.HandleBreak
		dbg.Break = true

		c := make(chan os.Signal, 1)
		defer func() {
			signal.Stop(c)
			close(c)
		}()

		signal.Notify(c, os.Interrupt)
		go func() {
			for range c {
				fmt.Println()
				dbg.Break = true
			}
		}()
	} else {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		dbg.HandleBreak = handleBreak
	}

	result := 0

	if err := mc.RunContext(ctx); err != nil && !(debugvar && xerrors.Is(err, context.Canceled)) {
		glog.Errorf("%s: %v", filepath.Base(binfile), err)
		result = 1
	}

	dbg.PrintState(os.Stdout, &mc)

	if dumpvar {
		pp.Println(mc.State)
	}

	return result
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
