package jack

import "fmt"

// ----------------------------------------------------------------------------
// Jack Type Checker

// The TypeChecker walks a 'jack.Program' and verifies the structural boundary the spec
// requires: every referenced variable resolves to a declared scope entry, and every
// subroutine call targets a known class/subroutine with a matching argument count.
//
// It deliberately stops there: no expression type inference, no return-type checking.
// That's Jack's actual semantic surface per the "Non-goals" in the spec this mirrors.
type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one
}

func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program}
}

func (tc *TypeChecker) Check() (bool, error) {
	if tc.program == nil || len(tc.program) == 0 {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		if _, err := tc.HandleClass(class); err != nil {
			return false, fmt.Errorf("error handling class '%s': %w", name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		tc.scopes.RegisterVariable(field)
	}

	for _, subroutine := range class.Subroutines.Entries() {
		if _, err := tc.HandleSubroutine(subroutine); err != nil {
			return false, fmt.Errorf("error handling subroutine '%s' in class '%s': %w", subroutine.Name, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "this", Type: Parameter, DataType: Object})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments.Entries() {
		tc.scopes.RegisterVariable(arg)
	}

	for _, stmt := range subroutine.Statements {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling nested statement %T: %w", stmt, err)
		}
	}

	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch tStmt := stmt.(type) {
	case VarStmt:
		for _, v := range tStmt.Vars {
			tc.scopes.RegisterVariable(v)
		}
		return true, nil

	case LetStmt:
		if _, err := tc.HandleExpression(tStmt.Lhs); err != nil {
			return false, fmt.Errorf("error resolving LHS of 'let': %w", err)
		}
		if _, err := tc.HandleExpression(tStmt.Rhs); err != nil {
			return false, fmt.Errorf("error resolving RHS of 'let': %w", err)
		}
		return true, nil

	case IfStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return false, fmt.Errorf("error resolving 'if' condition: %w", err)
		}
		for _, s := range tStmt.ThenBlock {
			if _, err := tc.HandleStatement(s); err != nil {
				return false, err
			}
		}
		for _, s := range tStmt.ElseBlock {
			if _, err := tc.HandleStatement(s); err != nil {
				return false, err
			}
		}
		return true, nil

	case WhileStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return false, fmt.Errorf("error resolving 'while' condition: %w", err)
		}
		for _, s := range tStmt.Block {
			if _, err := tc.HandleStatement(s); err != nil {
				return false, err
			}
		}
		return true, nil

	case DoStmt:
		if _, err := tc.HandleExpression(tStmt.FuncCall); err != nil {
			return false, fmt.Errorf("error resolving 'do' call: %w", err)
		}
		return true, nil

	case ReturnStmt:
		if tStmt.Expr == nil {
			return true, nil
		}
		if _, err := tc.HandleExpression(tStmt.Expr); err != nil {
			return false, fmt.Errorf("error resolving 'return' expression: %w", err)
		}
		return true, nil

	default:
		return false, fmt.Errorf("unrecognized statement: %T", stmt)
	}
}

// Generalized function to type-check multiple expression types, resolving every
// variable reference against the current scope and every subroutine call against
// the program's class/subroutine table (checking arity, not return types).
func (tc *TypeChecker) HandleExpression(expr Expression) (bool, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		if tExpr.Var == "this" {
			return true, nil
		}
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return true, nil

	case LiteralExpr:
		return true, nil

	case ArrayExpr:
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return tc.HandleExpression(tExpr.Index)

	case UnaryExpr:
		return tc.HandleExpression(tExpr.Rhs)

	case BinaryExpr:
		if _, err := tc.HandleExpression(tExpr.Lhs); err != nil {
			return false, err
		}
		return tc.HandleExpression(tExpr.Rhs)

	case FuncCallExpr:
		return tc.HandleFuncCallExpr(tExpr)

	default:
		return false, fmt.Errorf("unrecognized expression: %T", expr)
	}
}

// Resolves a 'jack.FuncCallExpr' to a concrete subroutine and checks its arity.
// Mirrors the three-way call resolution the lowerer performs: unqualified calls
// target the current class, qualified calls target either an object's class (when
// the receiver is a known variable) or a class name directly (static/constructor).
func (tc *TypeChecker) HandleFuncCallExpr(call FuncCallExpr) (bool, error) {
	for _, arg := range call.Arguments {
		if _, err := tc.HandleExpression(arg); err != nil {
			return false, fmt.Errorf("error resolving call argument: %w", err)
		}
	}

	className := call.Var

	if !call.IsExtCall {
		className = tc.scopes.GetScope()
		if idx := indexOfByte(className, '.'); idx >= 0 {
			className = className[:idx]
		}
	} else if _, variable, err := tc.scopes.ResolveVariable(call.Var); err == nil {
		if variable.DataType != Object {
			return false, fmt.Errorf("variable '%s' is not an object, cannot call '%s' on it", call.Var, call.FuncName)
		}
		className = variable.ClassName
	}

	class, exists := tc.program[className]
	if !exists {
		return false, fmt.Errorf("class '%s' not found", className)
	}

	routine, exists := class.Subroutines.Get(call.FuncName)
	if !exists {
		return false, fmt.Errorf("subroutine '%s' not found in class '%s'", call.FuncName, className)
	}

	// 'Subroutine.Arguments' never lists the implicit 'this' of a method, so it
	// matches the call-site argument list one to one.
	expected := routine.Arguments.Size()
	if len(call.Arguments) != expected {
		return false, fmt.Errorf("subroutine '%s.%s' expects %d argument(s), got %d", className, call.FuncName, expected, len(call.Arguments))
	}

	return true, nil
}

func indexOfByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
