// Lox CLI - compiles and runs Lox programs on the bytecode VM.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/lox-lang/lox/cache"
	"github.com/lox-lang/lox/chunkfile"
	"github.com/lox-lang/lox/compiler"
	"github.com/lox-lang/lox/manifest"
	"github.com/lox-lang/lox/vm"
)

// Exit codes follow the sysexits convention the test suite expects.
const (
	exitOK         = 0
	exitUsage      = 1
	exitCompileErr = 65
	exitRuntimeErr = 70
)

var log = commonlog.GetLogger("lox")

func main() {
	interactive := flag.Bool("i", false, "Start interactive REPL")
	trace := flag.Bool("trace", false, "Trace each instruction during execution")
	disasm := flag.Bool("disasm", false, "Disassemble instead of executing")
	output := flag.String("o", "", "Compile to the given .loxc file instead of executing")
	useCache := flag.Bool("cache", false, "Use the compile cache configured in lox.toml")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lox [options] [file.lox|file.loxc]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the given Lox source or compiled chunk. With no file, runs the\n")
		fmt.Fprintf(os.Stderr, "entry point from lox.toml if one is found.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lox -i                    # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  lox script.lox            # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  lox -o script.loxc script.lox  # Compile only\n")
		fmt.Fprintf(os.Stderr, "  lox --disasm script.lox   # Show bytecode\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(1, nil)
	}

	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	if mf == nil {
		mf = manifest.Default()
	} else {
		log.Infof("using manifest in %s", mf.Dir)
	}

	if *interactive {
		os.Exit(runREPL(mf))
	}

	path := flag.Arg(0)
	if path == "" {
		if mf.Dir == "" {
			flag.Usage()
			os.Exit(exitUsage)
		}
		path = mf.EntryPath()
	}

	os.Exit(run(mf, path, options{
		trace:    *trace || mf.Run.Trace,
		disasm:   *disasm,
		output:   *output,
		useCache: *useCache,
	}))
}

type options struct {
	trace    bool
	disasm   bool
	output   string
	useCache bool
}

// run loads, compiles and executes one file, returning the process exit code.
func run(mf *manifest.Manifest, path string, opts options) int {
	chunk, code := loadChunk(mf, path, opts)
	if chunk == nil {
		return code
	}

	if opts.output != "" {
		f, err := chunkfile.WriteFile(opts.output, chunk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
		log.Infof("wrote %s (build %s)", opts.output, f.BuildID)
		return exitOK
	}

	if opts.disasm {
		fmt.Print(vm.Disassemble(chunk, path))
		return exitOK
	}

	machine := vm.New(vm.Options{
		StackSize: mf.Run.StackSize,
		Trace:     traceWriter(opts.trace),
	})
	if err := machine.Interpret(chunk); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeErr
	}
	return exitOK
}

// loadChunk produces a chunk from a .lox source or .loxc container. A nil
// chunk means failure; the exit code is the second return.
func loadChunk(mf *manifest.Manifest, path string, opts options) (*vm.Chunk, int) {
	if strings.HasSuffix(path, ".loxc") {
		f, err := chunkfile.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return nil, exitUsage
		}
		log.Infof("loaded %s (build %s)", path, f.BuildID)
		return f.Chunk, exitOK
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, exitUsage
	}
	source := string(data)

	var store *cache.Store
	if opts.useCache {
		store, err = cache.Open(mf.CachePath())
		if err != nil {
			log.Errorf("compile cache unavailable: %v", err)
		} else {
			defer store.Close()
			if chunk, err := store.Get(source); err == nil {
				log.Infof("compile cache hit for %s", path)
				return chunk, exitOK
			} else if !errors.Is(err, cache.ErrMiss) {
				log.Errorf("compile cache lookup: %v", err)
			}
		}
	}

	chunk, err := compiler.Compile(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, exitCompileErr
	}

	if store != nil {
		if err := store.Put(source, chunk); err != nil {
			log.Errorf("compile cache store: %v", err)
		}
	}
	return chunk, exitOK
}

// traceWriter returns an untyped nil when tracing is off so the VM's nil
// check still works through the interface.
func traceWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stderr
	}
	return nil
}
