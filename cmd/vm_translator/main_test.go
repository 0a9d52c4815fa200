package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVMTranslator(t *testing.T) {
	t.Run("single file translation includes the bootstrap and the module's operations", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Main.vm")
		source := "function Main.main 0\npush constant 7\npush constant 8\nadd\npop temp 0\nlabel END\ngoto END\n"
		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("error writing input fixture: %v", err)
		}

		output := filepath.Join(dir, "Main.asm")
		if status := Handler([]string{input}, map[string]string{"output": output}); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}
		asmText := string(compiled)

		// The bootstrap always comes first: SP = 256 then a call into Sys.init.
		if !strings.HasPrefix(asmText, "@256\nD=A\n@SP\nM=D\n") {
			t.Errorf("expected bootstrap sequence at the start of the output, got:\n%s", firstLines(asmText, 6))
		}
		if !strings.Contains(asmText, "@Sys.init") {
			t.Errorf("expected the bootstrap to call into 'Sys.init', got none")
		}

		// 'add' reads both pushed operands off the stack and folds them with M=D+M.
		if !strings.Contains(asmText, "M=D+M") {
			t.Errorf("expected the lowered 'add' to compute 'M=D+M', got none")
		}

		// The function's label is namespaced by its own name, not the module's file stem.
		if !strings.Contains(asmText, "(Main.main)") {
			t.Errorf("expected a '(Main.main)' label for the declared function, got none")
		}
	})

	t.Run("directory mode discovers every .vm file and emits one combined output", func(t *testing.T) {
		dir := t.TempDir()
		files := map[string]string{
			"Sys.vm":  "function Sys.init 0\ncall Main.main 0\npop temp 0\nlabel END\ngoto END\n",
			"Main.vm": "function Main.main 0\npush constant 7\npush constant 8\nadd\nreturn\n",
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
				t.Fatalf("error writing input fixture '%s': %v", name, err)
			}
		}

		if status := Handler([]string{dir}, nil); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		expected := filepath.Join(dir, filepath.Base(dir)+".asm")
		compiled, err := os.ReadFile(expected)
		if err != nil {
			t.Fatalf("expected combined output '%s', got error: %v", expected, err)
		}

		asmText := string(compiled)
		if !strings.Contains(asmText, "(Sys.init)") || !strings.Contains(asmText, "(Main.main)") {
			t.Errorf("expected labels for both discovered functions, got:\n%s", asmText)
		}
	})
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
