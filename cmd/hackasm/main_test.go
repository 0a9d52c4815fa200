package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHackAssembler(t *testing.T) {
	test := func(t *testing.T, source string, expected []string) {
		dir := t.TempDir()
		input, output := filepath.Join(dir, "test.asm"), filepath.Join(dir, "test.hack")

		if err := os.WriteFile(input, []byte(source), 0644); err != nil {
			t.Fatalf("error writing input fixture: %v", err)
		}

		if status := Handler([]string{input, output}, nil); status != 0 {
			t.Fatalf("unexpected exit status code: expected 0 got: %d", status)
		}

		compiled, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("error reading output file: %v", err)
		}

		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")
		if len(lines) != len(expected) {
			t.Fatalf("expected %d lines, got %d: %v", len(expected), len(lines), lines)
		}
		for i := range expected {
			if lines[i] != expected[i] {
				t.Errorf("line %d: expected %s got %s", i, expected[i], lines[i])
			}
		}
	}

	t.Run("arithmetic program without labels", func(t *testing.T) {
		source := "@2\nD=A\n@3\nD=D+A\n@0\nM=D\n"
		expected := []string{
			"0000000000000010",
			"1110110000010000",
			"0000000000000011",
			"1110000010010000",
			"0000000000000000",
			"1110001100001000",
		}
		test(t, source, expected)
	})

	t.Run("predefined symbol KBD", func(t *testing.T) {
		source := "@KBD\nD=A\n"
		expected := []string{
			"0110000000000000",
			"1110110000010000",
		}
		test(t, source, expected)
	})

	t.Run("labels contribute no word and variables allocate from 16", func(t *testing.T) {
		source := "(LOOP)\n@i\nM=0\n@LOOP\n0;JMP\n"
		expected := []string{
			"0000000000010000",
			"1110101010001000",
			"0000000000000000",
			"1110101010000111",
		}
		test(t, source, expected)
	})
}
