package jack

import (
	"fmt"
	"io"

	"github.com/hmny-labs/n2t-toolchain/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser

// ParseError reports a structural grammar violation: an unexpected token, a
// missing symbol, or an unrecognized keyword in a position that requires one
// of a known set. Parsing is not resumable past one: the first error aborts
// the whole translation unit.
type ParseError struct{ Message string }

func (e ParseError) Error() string { return e.Message }

// Parser is a hand-written recursive-descent parser over a Token stream, with a
// small lookahead buffer (peek up to 2 tokens ahead of the cursor) as required to
// disambiguate a bare identifier from a qualified/unqualified subroutine call.
type Parser struct {
	reader io.Reader

	tokens []Token
	cursor int
}

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Tokens returns the token stream produced by the last call to Parse, in source
// order. Used downstream to emit the auxiliary token-trace XML document.
func (p *Parser) Tokens() []Token { return p.tokens }

// Parse reads the whole reader, tokenizes it and parses a single Jack 'Class' out
// of the resulting stream.
func (p *Parser) Parse() (Class, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return Class{}, fmt.Errorf("cannot read from 'io.Reader': %s", err)
	}

	tokens, err := NewTokenizer(content).Tokenize()
	if err != nil {
		return Class{}, fmt.Errorf("error tokenizing input: %w", err)
	}

	p.tokens, p.cursor = tokens, 0
	return p.parseClass()
}

// ----------------------------------------------------------------------------
// Token stream helpers

func (p *Parser) peek(k int) (Token, bool) {
	if p.cursor+k >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.cursor+k], true
}

func (p *Parser) advance() (Token, bool) {
	tok, ok := p.peek(0)
	if ok {
		p.cursor++
	}
	return tok, ok
}

func (p *Parser) peekIsKeyword(kw string) bool {
	tok, ok := p.peek(0)
	return ok && tok.Type == TokenKeyword && tok.Value == kw
}

func (p *Parser) peekIsSymbol(sym string) bool {
	tok, ok := p.peek(0)
	return ok && tok.Type == TokenSymbol && tok.Value == sym
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.peekIsKeyword(kw) {
		return ParseError{fmt.Sprintf("expected keyword '%s', got %s", kw, p.describeNext())}
	}
	p.advance()
	return nil
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.peekIsSymbol(sym) {
		return ParseError{fmt.Sprintf("expected symbol '%s', got %s", sym, p.describeNext())}
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdentifier() (string, error) {
	tok, ok := p.peek(0)
	if !ok || tok.Type != TokenIdentifier {
		return "", ParseError{fmt.Sprintf("expected identifier, got %s", p.describeNext())}
	}
	p.advance()
	return tok.Value, nil
}

func (p *Parser) describeNext() string {
	tok, ok := p.peek(0)
	if !ok {
		return "end of input"
	}
	return fmt.Sprintf("%s '%s'", tok.Type, tok.Value)
}

// ----------------------------------------------------------------------------
// Grammar

func (p *Parser) parseClass() (Class, error) {
	if err := p.expectKeyword("class"); err != nil {
		return Class{}, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return Class{}, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return Class{}, err
	}

	class := Class{Name: name, Fields: utils.OrderedMap[string, Variable]{}, Subroutines: utils.OrderedMap[string, Subroutine]{}}

	for !p.peekIsSymbol("}") {
		switch {
		case p.peekIsKeyword("static") || p.peekIsKeyword("field"):
			vars, err := p.parseClassVarDec()
			if err != nil {
				return Class{}, err
			}
			for _, v := range vars {
				class.Fields.Set(v.Name, v)
			}

		case p.peekIsKeyword("constructor") || p.peekIsKeyword("function") || p.peekIsKeyword("method"):
			sub, err := p.parseSubroutine()
			if err != nil {
				return Class{}, err
			}
			class.Subroutines.Set(sub.Name, sub)

		default:
			return Class{}, ParseError{fmt.Sprintf("expected class member declaration, got %s", p.describeNext())}
		}
	}

	if err := p.expectSymbol("}"); err != nil {
		return Class{}, err
	}

	return class, nil
}

func (p *Parser) parseClassVarDec() ([]Variable, error) {
	kindTok, _ := p.advance() // 'static' | 'field', guarded by the caller
	varType := Field
	if kindTok.Value == "static" {
		varType = Static
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return nil, err
	}

	names, err := p.parseIdentifierList()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, Variable{Name: name, Type: varType, DataType: dataType, ClassName: className})
	}
	return vars, nil
}

// Parses a comma-separated list of at least one identifier (used both by variable
// declarations, which may declare several names at once, e.g. 'field int x, y;').
func (p *Parser) parseIdentifierList() ([]string, error) {
	first, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	names := []string{first}

	for p.peekIsSymbol(",") {
		p.advance()
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, nil
}

// Parses a Jack type: one of the four primitives, 'void' (return types only) or a
// class name. Returns the class name alongside the DataType when the latter is Object.
func (p *Parser) parseType() (DataType, string, error) {
	tok, ok := p.advance()
	if !ok {
		return "", "", ParseError{"expected a type, got end of input"}
	}

	switch {
	case tok.Type == TokenKeyword && tok.Value == "int":
		return Int, "", nil
	case tok.Type == TokenKeyword && tok.Value == "char":
		return Char, "", nil
	case tok.Type == TokenKeyword && tok.Value == "boolean":
		return Bool, "", nil
	case tok.Type == TokenKeyword && tok.Value == "void":
		return Void, "", nil
	case tok.Type == TokenIdentifier:
		return Object, tok.Value, nil
	default:
		return "", "", ParseError{fmt.Sprintf("expected a type, got %s '%s'", tok.Type, tok.Value)}
	}
}

func (p *Parser) parseSubroutine() (Subroutine, error) {
	kindTok, _ := p.advance() // 'constructor' | 'function' | 'method', guarded by the caller
	subType := Function
	switch kindTok.Value {
	case "constructor":
		subType = Constructor
	case "method":
		subType = Method
	}

	returnType, _, err := p.parseType()
	if err != nil {
		return Subroutine{}, err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return Subroutine{}, err
	}

	arguments, err := p.parseParameterList()
	if err != nil {
		return Subroutine{}, err
	}

	if err := p.expectSymbol("{"); err != nil {
		return Subroutine{}, err
	}

	statements, err := p.parseSubroutineBody()
	if err != nil {
		return Subroutine{}, err
	}

	if err := p.expectSymbol("}"); err != nil {
		return Subroutine{}, err
	}

	return Subroutine{Name: name, Type: subType, Return: returnType, Arguments: arguments, Statements: statements}, nil
}

func (p *Parser) parseParameterList() (utils.OrderedMap[string, Variable], error) {
	arguments := utils.OrderedMap[string, Variable]{}

	if err := p.expectSymbol("("); err != nil {
		return arguments, err
	}

	for !p.peekIsSymbol(")") {
		dataType, className, err := p.parseType()
		if err != nil {
			return arguments, err
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return arguments, err
		}
		arguments.Set(name, Variable{Name: name, Type: Parameter, DataType: dataType, ClassName: className})

		if p.peekIsSymbol(",") {
			p.advance()
			continue
		}
		break
	}

	return arguments, p.expectSymbol(")")
}

// Parses the 'varDec* statement*' body of a subroutine. Local variable declarations
// are folded into the statement list as VarStmt nodes, in declaration order.
func (p *Parser) parseSubroutineBody() ([]Statement, error) {
	statements := []Statement{}

	for p.peekIsKeyword("var") {
		varStmt, err := p.parseVarDec()
		if err != nil {
			return nil, err
		}
		statements = append(statements, varStmt)
	}

	rest, err := p.parseStatements()
	if err != nil {
		return nil, err
	}

	return append(statements, rest...), nil
}

func (p *Parser) parseVarDec() (VarStmt, error) {
	if err := p.expectKeyword("var"); err != nil {
		return VarStmt{}, err
	}
	dataType, className, err := p.parseType()
	if err != nil {
		return VarStmt{}, err
	}
	names, err := p.parseIdentifierList()
	if err != nil {
		return VarStmt{}, err
	}
	if err := p.expectSymbol(";"); err != nil {
		return VarStmt{}, err
	}

	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, Variable{Name: name, Type: Local, DataType: dataType, ClassName: className})
	}
	return VarStmt{Vars: vars}, nil
}

// Parses statements until the enclosing '}' is reached; the closing brace itself
// is left unconsumed for the caller to verify.
func (p *Parser) parseStatements() ([]Statement, error) {
	statements := []Statement{}

	for !p.peekIsSymbol("}") {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	return statements, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.peekIsKeyword("let"):
		return p.parseLetStmt()
	case p.peekIsKeyword("if"):
		return p.parseIfStmt()
	case p.peekIsKeyword("while"):
		return p.parseWhileStmt()
	case p.peekIsKeyword("do"):
		return p.parseDoStmt()
	case p.peekIsKeyword("return"):
		return p.parseReturnStmt()
	default:
		return nil, ParseError{fmt.Sprintf("expected a statement, got %s", p.describeNext())}
	}
}

func (p *Parser) parseLetStmt() (Statement, error) {
	if err := p.expectKeyword("let"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	var lhs Expression = VarExpr{Var: name}
	if p.peekIsSymbol("[") {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		lhs = ArrayExpr{Var: name, Index: index}
	}

	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseIfStmt() (Statement, error) {
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	var elseBlock []Statement
	if p.peekIsKeyword("else") {
		p.advance()
		if err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		elseBlock, err = p.parseStatements()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

func (p *Parser) parseWhileStmt() (Statement, error) {
	if err := p.expectKeyword("while"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	block, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	return WhileStmt{Condition: cond, Block: block}, nil
}

func (p *Parser) parseDoStmt() (Statement, error) {
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	expr, err := p.finishIdentifierExpr(name)
	if err != nil {
		return nil, err
	}
	call, ok := expr.(FuncCallExpr)
	if !ok {
		return nil, ParseError{"'do' statement must be a subroutine call"}
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}

	return DoStmt{FuncCall: call}, nil
}

func (p *Parser) parseReturnStmt() (Statement, error) {
	if err := p.expectKeyword("return"); err != nil {
		return nil, err
	}

	var expr Expression
	if !p.peekIsSymbol(";") {
		var err error
		expr, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return ReturnStmt{Expr: expr}, nil
}

// Maps the Jack grammar's binary-operator symbols to their ExprType.
var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

// Expressions are strictly left-to-right with no operator precedence: at most one
// top-level binary operator, further nesting requires parentheses around a Term.
func (p *Parser) parseExpression() (Expression, error) {
	lterm, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	tok, ok := p.peek(0)
	if !ok || tok.Type != TokenSymbol {
		return lterm, nil
	}
	opType, isBinaryOp := binaryOps[tok.Value]
	if !isBinaryOp {
		return lterm, nil
	}

	p.advance()
	rterm, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	return BinaryExpr{Type: opType, Lhs: lterm, Rhs: rterm}, nil
}

func (p *Parser) parseTerm() (Expression, error) {
	tok, ok := p.peek(0)
	if !ok {
		return nil, ParseError{"expected an expression term, got end of input"}
	}

	switch tok.Type {
	case TokenIntConst:
		p.advance()
		return LiteralExpr{Type: Int, Value: tok.Value}, nil

	case TokenStrConst:
		p.advance()
		return LiteralExpr{Type: String, Value: tok.Value}, nil

	case TokenKeyword:
		switch tok.Value {
		case "true", "false":
			p.advance()
			return LiteralExpr{Type: Bool, Value: tok.Value}, nil
		case "null":
			p.advance()
			return LiteralExpr{Type: Null, Value: tok.Value}, nil
		case "this":
			p.advance()
			return VarExpr{Var: "this"}, nil
		default:
			return nil, ParseError{fmt.Sprintf("unexpected keyword '%s' in expression", tok.Value)}
		}

	case TokenSymbol:
		switch tok.Value {
		case "(":
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			return expr, p.expectSymbol(")")
		case "-":
			p.advance()
			rhs, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return UnaryExpr{Type: Minus, Rhs: rhs}, nil
		case "~":
			p.advance()
			rhs, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil
		default:
			return nil, ParseError{fmt.Sprintf("unexpected symbol '%s' in expression", tok.Value)}
		}

	case TokenIdentifier:
		p.advance()
		return p.finishIdentifierExpr(tok.Value)

	default:
		return nil, ParseError{fmt.Sprintf("unexpected token %s '%s' in expression", tok.Type, tok.Value)}
	}
}

// finishIdentifierExpr disambiguates a consumed identifier into a qualified call
// ('.' follows), an unqualified call ('(' follows), an array subscript ('[' follows)
// or a bare variable reference, per the one-token lookahead the grammar requires.
func (p *Parser) finishIdentifierExpr(name string) (Expression, error) {
	switch {
	case p.peekIsSymbol("."):
		p.advance()
		funcName, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: true, Var: name, FuncName: funcName, Arguments: args}, nil

	case p.peekIsSymbol("("):
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: false, FuncName: name, Arguments: args}, nil

	case p.peekIsSymbol("["):
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return ArrayExpr{Var: name, Index: index}, p.expectSymbol("]")

	default:
		return VarExpr{Var: name}, nil
	}
}

func (p *Parser) parseArgList() ([]Expression, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	args := []Expression{}
	for !p.peekIsSymbol(")") {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.peekIsSymbol(",") {
			p.advance()
			continue
		}
		break
	}

	return args, p.expectSymbol(")")
}
