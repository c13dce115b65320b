package vm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/lox-lang/lox/compiler"
	"github.com/lox-lang/lox/vm"
)

// interpret compiles and runs source on a fresh VM, returning stdout and
// the execution error, if any.
func interpret(t *testing.T, source string) (string, error) {
	t.Helper()
	chunk, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	var out bytes.Buffer
	machine := vm.New(vm.Options{Stdout: &out})
	runErr := machine.Interpret(chunk)
	return out.String(), runErr
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestInterpretPrograms(t *testing.T) {
	tests := []struct {
		name   string
		source string
		stdout string
	}{
		{"arithmetic", "print 1 + 2;", "3\n"},
		{"concatenation", `print "ab" + "cd";`, "abcd\n"},
		{"globals", "var x = 10; x = x + 5; print x;", "15\n"},
		{"precedence", "print 1 + 2 * 3;", "7\n"},
		{"grouping", "print (1 + 2) * 3;", "9\n"},
		{"unary", "print -(1 + 2);", "-3\n"},
		{"not", "print !nil;", "true\n"},
		{"comparison chain", "print 1 < 2 == true;", "true\n"},
		{"not equal", "print 1 != 2;", "true\n"},
		{"string equality", `print "a" + "b" == "ab";`, "true\n"},
		{"mixed equality is false", `print 1 == "1";`, "false\n"},
		{"division", "print 10 / 4;", "2.5\n"},
		{"uninitialized var", "var x; print x;", "nil\n"},
		{"reassignment", "var a = 1; a = 2; print a;", "2\n"},
		{"assignment is expression", "var a = 1; print a = 3;", "3\n"},
		{"and true path", "print true and 7;", "7\n"},
		{"and short circuit", "print false and 7;", "false\n"},
		{"and nil short circuit", "print nil and 7;", "nil\n"},
		{"or short circuit", "print 1 or 2;", "1\n"},
		{"or false path", "print false or 2;", "2\n"},
		{"and or chain", "print nil or false and 1 or 9;", "9\n"},
		{"return stops execution", "print 1; return; print 2;", "1\n"},
		{"return with value", "print 1; return 2;", "1\n"},
		{"empty program", "", ""},
		{"expression statement", "1 + 2;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := interpret(t, tt.source)
			if err != nil {
				t.Fatalf("runtime error: %v", err)
			}
			if out != tt.stdout {
				t.Errorf("stdout = %q, want %q", out, tt.stdout)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
		line    int
	}{
		{"undefined get", "print y;", "Undefined variable 'y'.", 1},
		{"undefined set", "y = 1;", "Undefined variable 'y'.", 1},
		{"add number and string", `print 1 + "x";`, "Operands must be two numbers or two strings.", 1},
		{"subtract strings", `print "a" - "b";`, "Operands must be numbers.", 1},
		{"compare string", `print 1 < "2";`, "Operands must be numbers.", 1},
		{"negate string", `print -"a";`, "Operand must be a number.", 1},
		{"line reported", "var a = 1;\nprint a + nil;", "Operands must be two numbers or two strings.", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := interpret(t, tt.source)
			if err == nil {
				t.Fatal("expected runtime error")
			}

			var rerr *vm.RuntimeError
			if !errors.As(err, &rerr) {
				t.Fatalf("error type %T", err)
			}
			if rerr.Message != tt.message {
				t.Errorf("message = %q, want %q", rerr.Message, tt.message)
			}
			if rerr.Line != tt.line {
				t.Errorf("line = %d, want %d", rerr.Line, tt.line)
			}
			if out != "" {
				t.Errorf("stdout = %q, want empty", out)
			}
		})
	}
}

func TestRuntimeErrorFormat(t *testing.T) {
	_, err := interpret(t, "print y;")
	if err == nil {
		t.Fatal("expected runtime error")
	}
	want := "[line 1] Error: Undefined variable 'y'."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestStackOverflow(t *testing.T) {
	// Right-nested additions keep every intermediate on the stack.
	depth := vm.DefaultStackSize + 8
	var sb strings.Builder
	sb.WriteString("print 0")
	for i := 0; i < depth; i++ {
		sb.WriteString(" + (0")
	}
	sb.WriteString(strings.Repeat(")", depth))
	sb.WriteString(";")

	_, err := interpret(t, sb.String())
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected stack overflow, got %v", err)
	}
	if rerr.Message != "Stack overflow." {
		t.Errorf("message = %q", rerr.Message)
	}
}

// ---------------------------------------------------------------------------
// VM state behavior
// ---------------------------------------------------------------------------

func TestGlobalsPersistAcrossInterpret(t *testing.T) {
	var out bytes.Buffer
	machine := vm.New(vm.Options{Stdout: &out})

	for _, source := range []string{"var x = 41;", "x = x + 1; print x;"} {
		chunk, err := compiler.Compile(source)
		if err != nil {
			t.Fatal(err)
		}
		if err := machine.Interpret(chunk); err != nil {
			t.Fatalf("%q: %v", source, err)
		}
	}

	if out.String() != "42\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "42\n")
	}
	if got := machine.Globals()["x"]; !got.Equals(vm.NumberValue(42)) {
		t.Errorf("x = %s, want 42", got)
	}
}

func TestDefineOverwrites(t *testing.T) {
	out, err := interpret(t, "var a = 1; var a = 2; print a;")
	if err != nil {
		t.Fatal(err)
	}
	if out != "2\n" {
		t.Errorf("stdout = %q, want %q", out, "2\n")
	}
}

func TestNdfGlobalOverwrites(t *testing.T) {
	out, err := interpret(t, "var a = 1; var a; print a;")
	if err != nil {
		t.Fatal(err)
	}
	if out != "nil\n" {
		t.Errorf("stdout = %q, want %q", out, "nil\n")
	}
}

func TestTraceOutput(t *testing.T) {
	chunk, err := compiler.Compile("print 1;")
	if err != nil {
		t.Fatal(err)
	}

	var out, trace bytes.Buffer
	machine := vm.New(vm.Options{Stdout: &out, Trace: &trace})
	if err := machine.Interpret(chunk); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(trace.String(), "CONSTANT_8") {
		t.Errorf("trace missing disassembly:\n%s", trace.String())
	}
	if !strings.Contains(trace.String(), "[ 1 ]") {
		t.Errorf("trace missing stack dump:\n%s", trace.String())
	}
}

func TestWideConstantExecution(t *testing.T) {
	// Force the 16-bit constant form by spilling 300 literals, then make
	// sure the VM decodes the wide operand correctly.
	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("7;")
	}
	sb.WriteString("print 9;")

	out, err := interpret(t, sb.String())
	if err != nil {
		t.Fatal(err)
	}
	if out != "9\n" {
		t.Errorf("stdout = %q, want %q", out, "9\n")
	}
}
