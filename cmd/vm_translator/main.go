package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hmny-labs/n2t-toolchain/pkg/asm"
	"github.com/hmny-labs/n2t-toolchain/pkg/vm"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .vm file, or a single directory
	WithArg(cli.NewArg("inputs", "The bytecode (.vm) file(s) or directory to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled binary output (.asm), defaults next to the input").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	// Directory mode: a single directory argument discovers every '.vm' file inside it
	// and emits one combined '<dirname>.asm' file, matching multi-file Jack projects.
	TUs, outputPath := []string{}, options["output"]

	if info, err := os.Stat(args[0]); len(args) == 1 && err == nil && info.IsDir() {
		dir := strings.TrimRight(args[0], string(os.PathSeparator))
		filepath.Walk(dir, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(p) != ".vm" {
				return nil
			}
			TUs = append(TUs, p)
			return nil
		})
		if outputPath == "" {
			outputPath = filepath.Join(dir, fmt.Sprintf("%s.asm", filepath.Base(dir)))
		}
	} else {
		TUs = args
		if outputPath == "" {
			extension := path.Ext(TUs[0])
			outputPath = fmt.Sprintf("%s.asm", strings.TrimSuffix(TUs[0], extension))
		}
	}

	output, err := os.Create(outputPath)
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	// Allocates a 'vm.Program' struct to save all the parsed translation unit
	// (the .vm files) that will be parsed and lowered independently and then
	// sent to the codegen phases (that will create a monolithic compiled output).
	program := vm.Program{}

	// For every file provided by the user we do the following things
	for _, input := range TUs {
		content, err := os.ReadFile(input)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		// Instantiate a parser for the Vm program
		parser := vm.NewParser(bytes.NewReader(content))
		// Removes root directory and file extension to use as module name, keeping it
		// consistent with the static-variable namespace the lowerer derives from it.
		filename, extension := path.Base(input), path.Ext(input)
		// Parses the input file content and extract an AST (as a 'vm.Module') from it.
		program[strings.TrimSuffix(filename, extension)], err = parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass: %s\n", err)
			return -1
		}
	}

	// Instantiate a lowerer to convert the program from Vm to Asm. The bootstrap sequence
	// (SP = 256, call Sys.init 0) is always emitted by the lowerer itself, so there is no
	// opt-in flag here: every translated program starts from the same known-good state.
	lowerer := vm.NewLowerer(program)
	// Lowers the vm.Program to an in-memory/IR representation of its Asm counterpart 'asm.Program'.
	asmProgram, err := lowerer.Lowerer()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}

	// Now, instantiates a code generator for the Asm (compiled) program
	codegen := asm.NewCodeGenerator(asmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	for _, comp := range compiled {
		line := fmt.Sprintf("%s\n", comp)
		output.Write([]byte(line))
	}

	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
