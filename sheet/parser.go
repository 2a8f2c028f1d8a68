package sheet

import "strconv"

// Parser parses tokens into an AST. The grammar is a precedence
// ladder, loosest binding first:
//
//	comparison:     = <> < <= > >=
//	concatenation:  &
//	addition:       + -
//	multiplication: * /
//	power:          ^
//	unary:          + -
//	primary:        literals, references, calls, parentheses
//
// All binary levels are left-associative, including ^.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser over a scanned token stream
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens, pos: 0}
}

// Parse parses a formula source string into an AST. A leading = is
// accepted and stripped. Structural problems return a *SyntaxError;
// runtime problems (bad references, type mismatches) are deferred to
// evaluation.
func Parse(source string) (Node, *SyntaxError) {
	tokens, err := ScanFormula(source)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// Parse parses the token stream into a single expression
func (p *Parser) Parse() (Node, *SyntaxError) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty formula"}
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	// the expression must consume everything up to EOF
	if tok := p.current(); tok.Type != TokenEOF {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected token after expression: " + tok.Value}
	}

	return node, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, Pos: p.endPos()}
	}
	return p.tokens[p.pos]
}

func (p *Parser) endPos() int {
	if len(p.tokens) == 0 {
		return 0
	}
	return p.tokens[len(p.tokens)-1].Pos
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (Node, *SyntaxError) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "=":
			op = BinOpEqual
		case "<>":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}

		left = &BinaryNode{
			Op:    op,
			Left:  left,
			Right: right,
			Pos:   NodePosition{Start: left.Position().Start, End: right.Position().End},
		}
	}

	return left, nil
}

// parseConcatenation handles the string concatenation operator
func (p *Parser) parseConcatenation() (Node, *SyntaxError) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp || tok.Value != "&" {
			break
		}

		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}

		left = &BinaryNode{
			Op:    BinOpConcat,
			Left:  left,
			Right: right,
			Pos:   NodePosition{Start: left.Position().Start, End: right.Position().End},
		}
	}

	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (Node, *SyntaxError) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}

		left = &BinaryNode{
			Op:    op,
			Left:  left,
			Right: right,
			Pos:   NodePosition{Start: left.Position().Start, End: right.Position().End},
		}
	}

	return left, nil
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (Node, *SyntaxError) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}

		left = &BinaryNode{
			Op:    op,
			Left:  left,
			Right: right,
			Pos:   NodePosition{Start: left.Position().Start, End: right.Position().End},
		}
	}

	return left, nil
}

// parsePower handles exponentiation. Left-associative like the other
// binary levels, so 2^3^2 groups as (2^3)^2.
func (p *Parser) parsePower() (Node, *SyntaxError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp || tok.Value != "^" {
			break
		}

		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &BinaryNode{
			Op:    BinOpPower,
			Left:  left,
			Right: right,
			Pos:   NodePosition{Start: left.Position().Start, End: right.Position().End},
		}
	}

	return left, nil
}

// parseUnary handles prefix + and -
func (p *Parser) parseUnary() (Node, *SyntaxError) {
	tok := p.current()

	if tok.Type == TokenUnaryOp {
		var op UnaryOp
		switch tok.Value {
		case "+":
			op = UnaryOpPlus
		case "-":
			op = UnaryOpMinus
		default:
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected operator: " + tok.Value}
		}

		startPos := tok.Pos
		p.pos++
		operand, err := p.parseUnary() // recurse for chained unary operators
		if err != nil {
			return nil, err
		}

		return &UnaryNode{
			Op:      op,
			Operand: operand,
			Pos:     NodePosition{Start: startPos, End: operand.Position().End},
		}, nil
	}

	return p.parsePrimary()
}

// parsePrimary handles primary expressions (literals, references,
// function calls, parentheses)
func (p *Parser) parsePrimary() (Node, *SyntaxError) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "invalid number: " + tok.Value}
		}
		return &NumberNode{
			Value: val,
			Pos:   NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenString:
		p.pos++
		return &StringNode{
			Value: tok.Value,
			Pos:   NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value) + 2}, // +2 for quotes
		}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{
			Value: tok.Value == "TRUE",
			Pos:   NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenCell:
		p.pos++
		return &CellNode{
			Ref: tok.Value,
			Pos: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenRange:
		p.pos++
		return &RangeNode{
			Ref: tok.Value,
			Pos: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		if closing := p.current(); closing.Type != TokenRightParen {
			return nil, &SyntaxError{Pos: closing.Pos, Msg: "expected closing parenthesis"}
		}
		p.pos++

		return node, nil

	case TokenEOF:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected end of expression"}

	default:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected token: " + tok.Value}
	}
}

// parseFunctionCall parses a function name and its argument list.
// Unknown names parse fine; they surface as #NAME? at evaluation.
func (p *Parser) parseFunctionCall() (Node, *SyntaxError) {
	funcTok := p.current()
	funcName := funcTok.Value
	startPos := funcTok.Pos
	p.pos++

	// expect opening parenthesis
	if open := p.current(); open.Type != TokenLeftParen {
		return nil, &SyntaxError{Pos: open.Pos, Msg: "expected '(' after function name"}
	}
	p.pos++

	args := []Node{}

	// empty argument list
	if closing := p.current(); closing.Type == TokenRightParen {
		p.pos++
		return &CallNode{
			Name: funcName,
			Args: args,
			Pos:  NodePosition{Start: startPos, End: closing.Pos + 1},
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.current()
		if tok.Type == TokenRightParen {
			p.pos++
			return &CallNode{
				Name: funcName,
				Args: args,
				Pos:  NodePosition{Start: startPos, End: tok.Pos + 1},
			}, nil
		}

		if tok.Type != TokenComma {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "expected ',' or ')' in function arguments"}
		}
		p.pos++
	}
}
