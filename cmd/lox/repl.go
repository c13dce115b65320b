package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterh/liner"

	"github.com/lox-lang/lox/compiler"
	"github.com/lox-lang/lox/manifest"
	"github.com/lox-lang/lox/vm"
)

const historyFile = ".lox_history"

// runREPL reads lines, compiles each as a program and runs it on a single
// VM, so globals persist across inputs. Errors are reported and the session
// continues.
func runREPL(mf *manifest.Manifest) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	machine := vm.New(vm.Options{StackSize: mf.Run.StackSize})
	fmt.Println("Lox REPL (ctrl-d to exit)")

	for {
		line, err := ln.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			// EOF or a terminal error ends the session.
			fmt.Println()
			return exitOK
		}
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		chunk, err := compiler.Compile(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := machine.Interpret(chunk); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
