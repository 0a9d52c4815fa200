package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJackCompiler(t *testing.T) {
	t.Run("a function with no statements but a bare return", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Main.jack")
		source := "class Main {\n  function void main() {\n    return;\n  }\n}\n"
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("error writing input fixture: %v", err)
		}

		if status := Handler([]string{input}, nil); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		if err != nil {
			t.Fatalf("error reading compiled output: %v", err)
		}
		if got, want := string(compiled), "function Main.main 0\npush constant 0\nreturn\n"; got != want {
			t.Errorf("expected:\n%s\ngot:\n%s", want, got)
		}

		trace, err := os.ReadFile(filepath.Join(dir, "MainT.xml"))
		if err != nil {
			t.Fatalf("error reading token trace output: %v", err)
		}
		if !strings.Contains(string(trace), "<keyword> class </keyword>") {
			t.Errorf("expected a token trace containing the leading 'class' keyword, got:\n%s", trace)
		}
	})

	t.Run("a constructor allocates its fields and a method resolves them through 'this'", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Point.jack")
		source := strings.Join([]string{
			"class Point {",
			"  field int x, y;",
			"",
			"  constructor Point new(int ax, int ay) {",
			"    let x = ax;",
			"    let y = ay;",
			"    return this;",
			"  }",
			"",
			"  method int getX() {",
			"    return x;",
			"  }",
			"}",
			"",
		}, "\n")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("error writing input fixture: %v", err)
		}

		if status := Handler([]string{input}, nil); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(filepath.Join(dir, "Point.vm"))
		if err != nil {
			t.Fatalf("error reading compiled output: %v", err)
		}
		vmText := string(compiled)

		// The constructor allocates exactly as many words as declared fields, then sets 'this'.
		if !strings.Contains(vmText, "push constant 2\ncall Memory.alloc 1\npop pointer 0\n") {
			t.Errorf("expected the constructor prelude to allocate 2 fields, got:\n%s", vmText)
		}
		// Assigning to a field writes through the 'this' segment, not 'local'/'argument'.
		if !strings.Contains(vmText, "pop this 0") || !strings.Contains(vmText, "pop this 1") {
			t.Errorf("expected field assignments to target the 'this' segment, got:\n%s", vmText)
		}
		// 'return this' pushes the pointer segment, not a literal.
		if !strings.Contains(vmText, "push pointer 0\nreturn") {
			t.Errorf("expected 'return this' to push the object pointer, got:\n%s", vmText)
		}
		// The method prelude repositions 'this' from the implicit first argument.
		if !strings.Contains(vmText, "function Point.getX 0\npush argument 0\npop pointer 0\n") {
			t.Errorf("expected the method prelude to reposition 'this' from argument 0, got:\n%s", vmText)
		}
	})

	t.Run("a cross-class constructor and method call resolve with the stdlib ABI enabled", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Main.jack")
		source := strings.Join([]string{
			"class Main {",
			"  function void main() {",
			"    var String s;",
			"    let s = String.new(3);",
			"    do s.appendChar(65);",
			"    return;",
			"  }",
			"}",
			"",
		}, "\n")
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("error writing input fixture: %v", err)
		}

		if status := Handler([]string{input}, map[string]string{"stdlib": "true"}); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		if err != nil {
			t.Fatalf("error reading compiled output: %v", err)
		}
		vmText := string(compiled)

		if !strings.Contains(vmText, "call String.new 1") {
			t.Errorf("expected a resolved call to the stdlib constructor 'String.new', got:\n%s", vmText)
		}
		if !strings.Contains(vmText, "call String.appendChar 2") {
			t.Errorf("expected a resolved method call to 'String.appendChar' with the implicit receiver, got:\n%s", vmText)
		}
		// The stdlib classes themselves must not leak into the compiled output files.
		if _, err := os.Stat(filepath.Join(dir, "String.vm")); !os.IsNotExist(err) {
			t.Errorf("expected no 'String.vm' to be emitted for the stdlib ABI, got one")
		}
	})
}
