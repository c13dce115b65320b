package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lox-lang/lox/vm"
)

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// Diagnostic is a single scan or parse error, reported against the offending
// token's line and lexeme.
type Diagnostic struct {
	Line    int
	Where   string // " at 'x'", " at end", or empty for scan errors
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", d.Line, d.Where, d.Message)
}

// ErrorList aggregates every diagnostic from one compile so the user sees
// many errors at once.
type ErrorList []*Diagnostic

func (e ErrorList) Error() string {
	msgs := make([]string, len(e))
	for i, d := range e {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n")
}

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt parser emitting bytecode
// ---------------------------------------------------------------------------

// Compiler converts source text into a chunk in a single forward pass: a
// scanner produces tokens on demand and the parser emits bytecode directly,
// with no intermediate tree.
type Compiler struct {
	scanner *Scanner
	chunk   *vm.Chunk

	current  Token
	previous Token

	errors    ErrorList
	hadError  bool
	panicMode bool
}

// Compile translates a whole program into a fresh chunk. On failure the
// returned error is an ErrorList with one entry per diagnostic and the chunk
// is nil; a flagged compile must never execute.
func Compile(source string) (*vm.Chunk, error) {
	c := &Compiler{
		scanner: NewScanner(source),
		chunk:   vm.NewChunk(),
	}

	c.advance()
	for !c.match(TokenEOF) {
		c.declaration()
	}
	c.emit(vm.OpReturn)

	if c.hadError {
		return nil, c.errors
	}
	return c.chunk, nil
}

// ---------------------------------------------------------------------------
// Precedence levels
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < <= > >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is keyed by the token that triggers the rule. Populated in init to
// let the handlers reference the table recursively.
var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLParen:       {prefix: (*Compiler).grouping},
		TokenMinus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, prec: precTerm},
		TokenPlus:         {infix: (*Compiler).binary, prec: precTerm},
		TokenSlash:        {infix: (*Compiler).binary, prec: precFactor},
		TokenStar:         {infix: (*Compiler).binary, prec: precFactor},
		TokenBang:         {prefix: (*Compiler).unary},
		TokenBangEqual:    {infix: (*Compiler).binary, prec: precEquality},
		TokenEqualEqual:   {infix: (*Compiler).binary, prec: precEquality},
		TokenGreater:      {infix: (*Compiler).binary, prec: precComparison},
		TokenGreaterEqual: {infix: (*Compiler).binary, prec: precComparison},
		TokenLess:         {infix: (*Compiler).binary, prec: precComparison},
		TokenLessEqual:    {infix: (*Compiler).binary, prec: precComparison},
		TokenIdentifier:   {prefix: (*Compiler).variable},
		TokenString:       {prefix: (*Compiler).stringLiteral},
		TokenNumber:       {prefix: (*Compiler).number},
		TokenAnd:          {infix: (*Compiler).and, prec: precAnd},
		TokenOr:           {infix: (*Compiler).or, prec: precOr},
		TokenNil:          {prefix: (*Compiler).literal},
		TokenTrue:         {prefix: (*Compiler).literal},
		TokenFalse:        {prefix: (*Compiler).literal},
	}
}

func ruleFor(t TokenType) parseRule {
	return rules[t]
}

// ---------------------------------------------------------------------------
// Token plumbing
// ---------------------------------------------------------------------------

// advance moves to the next real token, reporting any error tokens the
// scanner hands back along the way.
func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != TokenError {
			return
		}
		c.scanError(c.current)
	}
}

func (c *Compiler) consume(t TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(t TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

// ---------------------------------------------------------------------------
// Error reporting and panic-mode recovery
// ---------------------------------------------------------------------------

func (c *Compiler) scanError(tok Token) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errors = append(c.errors, &Diagnostic{Line: tok.Line, Message: tok.Lexeme})
}

func (c *Compiler) errorAt(tok Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := fmt.Sprintf(" at '%s'", tok.Lexeme)
	if tok.Type == TokenEOF {
		where = " at end"
	}
	c.errors = append(c.errors, &Diagnostic{Line: tok.Line, Where: where, Message: message})
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) errorAtPrevious(message string) {
	c.errorAt(c.previous, message)
}

// synchronize discards tokens until a statement boundary so one mistake does
// not cascade into a wall of follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != TokenEOF {
		if c.previous.Type == TokenSemicolon {
			return
		}
		switch c.current.Type {
		case TokenVar, TokenPrint, TokenReturn:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op vm.Opcode) {
	c.chunk.Write(op, c.previous.Line)
}

// makeConstant appends v to the constant pool, reporting pool exhaustion as
// a parse error against the previous (just consumed) token.
func (c *Compiler) makeConstant(v vm.Value) int {
	idx, err := c.chunk.AddConstant(v)
	if err != nil {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (c *Compiler) emitConstant(v vm.Value) {
	idx := c.makeConstant(v)
	c.chunk.WriteConstantOp(vm.OpConstant8, idx, c.previous.Line)
}

// identifierConstant interns the identifier's name in the constant pool.
func (c *Compiler) identifierConstant(tok Token) int {
	return c.makeConstant(vm.StringValue(tok.Lexeme))
}

// emitJump writes op with a placeholder offset and returns the operand
// position for patchJump.
func (c *Compiler) emitJump(op vm.Opcode) int {
	c.emit(op)
	c.chunk.WriteOperand(0xFF, c.previous.Line)
	c.chunk.WriteOperand(0xFF, c.previous.Line)
	return len(c.chunk.Code) - 2
}

// patchJump backfills a forward jump to land on the next instruction. The
// offset is relative to the byte after the 16-bit operand.
func (c *Compiler) patchJump(operandPos int) {
	jump := len(c.chunk.Code) - (operandPos + 2)
	if jump > math.MaxInt16 {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.chunk.Code[operandPos] = byte(jump)
	c.chunk.Code[operandPos+1] = byte(jump >> 8)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	if c.match(TokenVar) {
		c.varDeclaration()
	} else {
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

// varDeclaration parses `var IDENT (= expression)? ;`. Without an
// initializer the variable is defined as nil.
func (c *Compiler) varDeclaration() {
	c.consume(TokenIdentifier, "Expect variable name.")
	name := c.previous
	nameIdx := c.identifierConstant(name)

	if c.match(TokenEqual) {
		c.expression()
		c.chunk.WriteConstantOp(vm.OpDefineGlobal8, nameIdx, name.Line)
	} else {
		c.chunk.WriteConstantOp(vm.OpDefineGlobalNil8, nameIdx, name.Line)
	}

	c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokenPrint):
		c.printStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after value.")
	c.emit(vm.OpPrint)
}

// returnStatement accepts an optional expression; the VM discards the stack
// when the chunk terminates, so the value only matters to tooling.
func (c *Compiler) returnStatement() {
	if !c.match(TokenSemicolon) {
		c.expression()
		c.consume(TokenSemicolon, "Expect ';' after return value.")
	}
	c.emit(vm.OpReturn)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after expression.")
	c.emit(vm.OpPOP)
}

// ---------------------------------------------------------------------------
// Expressions: precedence climbing
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// parsePrecedence parses everything at the given precedence or tighter. The
// canAssign flag threads down to variable so `a = b` only compiles as an
// assignment when the target can actually receive one.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := ruleFor(c.previous.Type)
	if rule.prefix == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= ruleFor(c.current.Type).prec {
		c.advance()
		ruleFor(c.previous.Type).infix(c, canAssign)
	}

	if canAssign && c.match(TokenEqual) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) number(bool) {
	f, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.errorAtPrevious("Invalid number literal.")
		return
	}
	c.emitConstant(vm.NumberValue(f))
}

func (c *Compiler) stringLiteral(bool) {
	// Trim the surrounding quotes; Lox strings have no escapes.
	text := c.previous.Lexeme[1 : len(c.previous.Lexeme)-1]
	c.emitConstant(vm.StringValue(text))
}

func (c *Compiler) literal(bool) {
	switch c.previous.Type {
	case TokenNil:
		c.emit(vm.OpNil)
	case TokenTrue:
		c.emit(vm.OpTrue)
	case TokenFalse:
		c.emit(vm.OpFalse)
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(TokenRParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(bool) {
	op := c.previous.Type
	line := c.previous.Line

	c.parsePrecedence(precUnary)

	switch op {
	case TokenMinus:
		c.chunk.Write(vm.OpNegate, line)
	case TokenBang:
		c.chunk.Write(vm.OpNot, line)
	}
}

func (c *Compiler) binary(bool) {
	op := c.previous.Type
	line := c.previous.Line

	c.parsePrecedence(ruleFor(op).prec + 1)

	var emit vm.Opcode
	switch op {
	case TokenPlus:
		emit = vm.OpAdd
	case TokenMinus:
		emit = vm.OpSubtract
	case TokenStar:
		emit = vm.OpMultiply
	case TokenSlash:
		emit = vm.OpDivide
	case TokenEqualEqual:
		emit = vm.OpEqual
	case TokenBangEqual:
		emit = vm.OpNotEqual
	case TokenLess:
		emit = vm.OpLess
	case TokenLessEqual:
		emit = vm.OpLessEqual
	case TokenGreater:
		emit = vm.OpGreater
	case TokenGreaterEqual:
		emit = vm.OpGreaterEqual
	default:
		return
	}
	c.chunk.Write(emit, line)
}

// variable compiles a bare identifier: a get, or a set when an '=' follows
// in assignment position. The assigned value stays on the stack so that
// assignment is itself an expression.
func (c *Compiler) variable(canAssign bool) {
	name := c.previous
	nameIdx := c.identifierConstant(name)

	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.chunk.WriteConstantOp(vm.OpSetGlobal8, nameIdx, name.Line)
	} else {
		c.chunk.WriteConstantOp(vm.OpGetGlobal8, nameIdx, name.Line)
	}
}

// and short-circuits: when the left side is falsy it stays on the stack as
// the result and the right side is skipped.
func (c *Compiler) and(bool) {
	end := c.emitJump(vm.OpJumpIfFalse)
	c.emit(vm.OpPOP)
	c.parsePrecedence(precAnd)
	c.patchJump(end)
}

// or short-circuits: a truthy left side is the result.
func (c *Compiler) or(bool) {
	end := c.emitJump(vm.OpJumpIfTrue)
	c.emit(vm.OpPOP)
	c.parsePrecedence(precOr)
	c.patchJump(end)
}
