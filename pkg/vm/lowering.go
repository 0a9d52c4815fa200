package vm

import (
	"fmt"
	"sort"

	"github.com/hmny-labs/n2t-toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one Module per source file) and produces its
// 'asm.Program' counterpart, implementing the stack machine, memory segments and
// function call convention on top of the two-register Hack architecture.
//
// Modules are lowered in alphabetical order of their key (the VM source file's stem)
// rather than map iteration order: the internal label counter must be monotonic and
// reproducible across runs, and Go intentionally randomizes map iteration.
type Lowerer struct {
	program Program

	counter         uint    // Monotonically increasing id, used to generate unique internal labels
	currentModule   string  // File stem of the module currently being lowered (fallback label scope)
	currentFunction string  // Name of the function currently being lowered (primary label scope), "" if none
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process. Emits the Sys.init bootstrap first, then lowers each
// module (in deterministic, sorted order) by walking its operations one by one, much
// like a recursive descent parser but in reverse (IR -> assembly).
func (l *Lowerer) Lowerer() (asm.Program, error) {
	if l.program == nil || len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty")
	}

	modules := make([]string, 0, len(l.program))
	for name := range l.program {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	program := append([]asm.Instruction{}, l.bootstrap()...)

	for _, name := range modules {
		l.currentModule, l.currentFunction = name, ""

		for _, operation := range l.program[name] {
			instructions, err := l.HandleOperation(operation)
			if err != nil {
				return nil, fmt.Errorf("error lowering module '%s': %w", name, err)
			}
			program = append(program, instructions...)
		}
	}

	return program, nil
}

// Dispatches a single VM operation to its specialized handler based on its concrete type.
func (l *Lowerer) HandleOperation(operation Operation) ([]asm.Instruction, error) {
	switch tOperation := operation.(type) {
	case MemoryOp:
		return l.HandleMemoryOp(tOperation)
	case ArithmeticOp:
		return l.HandleArithmeticOp(tOperation)
	case LabelDecl:
		return l.HandleLabelDecl(tOperation)
	case GotoOp:
		return l.HandleGotoOp(tOperation)
	case FuncDecl:
		return l.HandleFuncDecl(tOperation)
	case FuncCallOp:
		return l.HandleFuncCallOp(tOperation)
	case ReturnOp:
		return l.HandleReturnOp(tOperation)
	default:
		return nil, fmt.Errorf("unrecognized operation '%T'", operation)
	}
}

// Returns the namespace prefix labels declared 'here' should use: the enclosing function's
// name if any, else the current module's file stem.
func (l *Lowerer) scope() string {
	if l.currentFunction != "" {
		return l.currentFunction
	}
	return l.currentModule
}

// Returns a fresh, globally unique internal label for compiler-generated branches (comparison
// results, if-goto fallthroughs, call return addresses). Namespaced separately from VM-sourced
// labels (which are always 'scope$label') so the two can never collide.
func (l *Lowerer) internalLabel(kind string) string {
	l.counter++
	return fmt.Sprintf("INTERNAL.%s.%d", kind, l.counter)
}

// ----------------------------------------------------------------------------
// Memory segments

// Specialized function to convert a 'MemoryOp' (push/pop) to its assembly instructions.
func (l *Lowerer) HandleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	if op.Operation == Pop && op.Segment == Constant {
		return nil, fmt.Errorf("'pop constant' is invalid, 'constant' has no writable storage")
	}

	if op.Operation == Push {
		return l.pushSegment(op.Segment, op.Offset)
	}
	return l.popSegment(op.Segment, op.Offset)
}

// Returns the base-pointer register backing an addressed segment (argument/local/this/that).
func basePointer(segment SegmentType) (string, bool) {
	switch segment {
	case Argument:
		return "ARG", true
	case Local:
		return "LCL", true
	case This:
		return "THIS", true
	case That:
		return "THAT", true
	default:
		return "", false
	}
}

func (l *Lowerer) pushSegment(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	loadD, err := l.loadSegmentIntoD(segment, offset)
	if err != nil {
		return nil, err
	}

	return append(loadD,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	), nil
}

// Loads the value addressed by 'segment i' into the D register, without touching SP.
func (l *Lowerer) loadSegmentIntoD(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	switch segment {
	case Constant:
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, nil

	case Static:
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.currentModule, offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Temp:
		if offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", offset)
		}
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(5 + offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Pointer:
		location, err := pointerLocation(offset)
		if err != nil {
			return nil, err
		}
		return []asm.Instruction{
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	default:
		base, ok := basePointer(segment)
		if !ok {
			return nil, fmt.Errorf("unrecognized segment '%s'", segment)
		}
		return []asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	}
}

func pointerLocation(offset uint16) (string, error) {
	switch offset {
	case 0:
		return "THIS", nil
	case 1:
		return "THAT", nil
	default:
		return "", fmt.Errorf("invalid 'pointer' offset, got %d (only 0/1 allowed)", offset)
	}
}

func (l *Lowerer) popSegment(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	switch segment {
	case Static:
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.currentModule, offset)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Temp:
		if offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", offset)
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(5 + offset)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Pointer:
		location, err := pointerLocation(offset)
		if err != nil {
			return nil, err
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	default:
		base, ok := basePointer(segment)
		if !ok {
			return nil, fmt.Errorf("unrecognized segment '%s'", segment)
		}
		// Addressed segments have no scratch register of their own: we stash the target
		// address in R13 before popping, since popping overwrites D with the stack's value.
		return []asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil
	}
}

// ----------------------------------------------------------------------------
// Arithmetic / logic

// Specialized function to convert an 'ArithmeticOp' to its assembly instructions.
func (l *Lowerer) HandleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Neg:
		return unaryOp("-M"), nil
	case Not:
		return unaryOp("!M"), nil
	case Add:
		return binaryOp("D+M"), nil
	case Sub:
		return binaryOp("M-D"), nil
	case And:
		return binaryOp("D&M"), nil
	case Or:
		return binaryOp("D|M"), nil
	case Eq:
		return l.comparisonOp("JEQ"), nil
	case Gt:
		return l.comparisonOp("JGT"), nil
	case Lt:
		return l.comparisonOp("JLT"), nil
	default:
		return nil, fmt.Errorf("unrecognized arithmetic operation '%s'", op.Operation)
	}
}

func unaryOp(comp string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

func binaryOp(comp string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

func (l *Lowerer) comparisonOp(jump string) []asm.Instruction {
	trueLabel, endLabel := l.internalLabel("COMP"), l.internalLabel("COMP")

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: trueLabel},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: endLabel},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: trueLabel},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.LabelDecl{Name: endLabel},
	}
}

// ----------------------------------------------------------------------------
// Control flow

// Specialized function to convert a 'LabelDecl' to its assembly instructions.
func (l *Lowerer) HandleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty label declaration")
	}

	return []asm.Instruction{
		asm.LabelDecl{Name: fmt.Sprintf("%s$%s", l.scope(), op.Name)},
	}, nil
}

// Specialized function to convert a 'GotoOp' (goto/if-goto) to its assembly instructions.
func (l *Lowerer) HandleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to produce empty jump label")
	}

	target := fmt.Sprintf("%s$%s", l.scope(), op.Label)

	if op.Jump == Unconditional {
		return []asm.Instruction{
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}

	// 'if-goto' jumps only if the popped value is non-zero. We implement this as an
	// inverted JEQ over a fresh fallthrough label, since the Hack ALU has no 'jump if
	// non-zero' comp/jump combination.
	skip := l.internalLabel("IFGOTO")
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: skip},
		asm.CInstruction{Comp: "D", Jump: "JEQ"},
		asm.AInstruction{Location: target},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: skip},
	}, nil
}

// ----------------------------------------------------------------------------
// Functions

// Specialized function to convert a 'FuncDecl' to its assembly instructions: the label
// itself plus 'n' zero-initialized locals.
func (l *Lowerer) HandleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function declaration")
	}

	l.currentFunction = op.Name
	instructions := []asm.Instruction{asm.LabelDecl{Name: op.Name}}

	for i := uint8(0); i < op.NLocal; i++ {
		instructions = append(instructions,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
		)
	}

	return instructions, nil
}

// Specialized function to convert a 'FuncCallOp' to the full call-convention sequence:
// push a fresh return label, save the caller's LCL/ARG/THIS/THAT, reposition ARG/LCL,
// then jump to the callee.
func (l *Lowerer) HandleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function call")
	}

	returnLabel := l.internalLabel("CALL")
	instructions := []asm.Instruction{
		asm.AInstruction{Location: returnLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	instructions = append(instructions, pushD()...)

	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		instructions = append(instructions, asm.AInstruction{Location: reg}, asm.CInstruction{Dest: "D", Comp: "M"})
		instructions = append(instructions, pushD()...)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: fmt.Sprint(op.NArgs)},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "D", Comp: "D+A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	)

	return instructions, nil
}

// Pushes the current D register value onto the stack, advancing SP.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// Specialized function to convert a 'ReturnOp' to the frame-restore sequence: recovers the
// return address and the caller's saved segment pointers from the callee's frame, repositions
// SP just past the returned value, then jumps back to the caller.
func (l *Lowerer) HandleReturnOp(op ReturnOp) ([]asm.Instruction, error) {
	restore := func(reg string) []asm.Instruction {
		return []asm.Instruction{
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
	}

	instructions := []asm.Instruction{
		// R13 = FRAME = LCL
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// R14 = RET = *(FRAME-5)
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// *ARG = pop()
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// SP = ARG+1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	// THAT, THIS, ARG, LCL restored in this order from *(FRAME-1..-4), each decrementing R13.
	for _, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		instructions = append(instructions, restore(reg)...)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	return instructions, nil
}

// ----------------------------------------------------------------------------
// Bootstrap

// Emits the fixed prelude prepended to every assembled program: initializes SP to 256
// (the first usable RAM address past the reserved segment-pointer registers) then performs
// a full call to 'Sys.init' with 0 arguments so the Jack OS initializes before 'main' runs.
func (l *Lowerer) bootstrap() []asm.Instruction {
	instructions := []asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	l.currentModule, l.currentFunction = "Bootstrap", ""
	call, err := l.HandleFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})
	if err != nil {
		// Unreachable: the literal above always has a non-empty Name.
		panic(err)
	}

	return append(instructions, call...)
}
