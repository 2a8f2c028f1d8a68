package sheet

import "fmt"

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenWhitespace
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charDollar     = '$'
)

// SyntaxError reports a structural problem in formula source. It is a
// Go error returned from parsing, distinct from *CellError values that
// formulas produce at evaluation time.
type SyntaxError struct {
	Pos int // rune position in the formula body, after any leading =
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// scanState tracks what token types are valid next
type scanState int

const (
	stateStart scanState = iota
	stateAfterValue
	stateAfterOperator
	stateAfterLeftParen
	stateAfterRightParen
	stateAfterComma
)

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[scanState]map[TokenType]bool{
	stateStart: {
		TokenUnaryOp:   true, // unary +/-
		TokenNumber:    true,
		TokenString:    true,
		TokenBoolean:   true,
		TokenCell:      true,
		TokenRange:     true,
		TokenFunction:  true,
		TokenLeftParen: true,
	},
	stateAfterValue: { // after number, string, boolean, cell, range
		TokenBinaryOp:   true,
		TokenRightParen: true,
		TokenComma:      true, // only if in function
		TokenEOF:        true,
		// whitespace is significant - no consecutive values
	},
	stateAfterOperator: {
		TokenNumber:    true,
		TokenString:    true,
		TokenBoolean:   true,
		TokenCell:      true,
		TokenRange:     true,
		TokenFunction:  true,
		TokenLeftParen: true,
		TokenUnaryOp:   true, // only unary after binary
	},
	stateAfterLeftParen: {
		TokenNumber:     true,
		TokenString:     true,
		TokenBoolean:    true,
		TokenCell:       true,
		TokenRange:      true, // ranges as function arguments
		TokenFunction:   true,
		TokenLeftParen:  true, // nested
		TokenUnaryOp:    true,
		TokenRightParen: true, // empty parens for arg-less functions like PI()
	},
	stateAfterRightParen: {
		TokenBinaryOp:   true,
		TokenRightParen: true, // if nested
		TokenComma:      true, // if in function
		TokenEOF:        true,
	},
	stateAfterComma: { // only valid in function context
		TokenNumber:    true,
		TokenString:    true,
		TokenBoolean:   true,
		TokenCell:      true,
		TokenRange:     true,
		TokenFunction:  true,
		TokenLeftParen: true,
		TokenUnaryOp:   true,
	},
}

// Scanner tokenizes spreadsheet formula expressions
type Scanner struct {
	runes      []rune // UTF-8 aware representation
	pos        int
	state      scanState
	parenDepth int
	tokens     []Token
}

// NewScanner creates a scanner for a formula body. Callers strip any
// leading = before constructing the scanner; Tokenize positions are
// relative to the body it receives.
func NewScanner(input string) *Scanner {
	return &Scanner{
		runes:  []rune(input), // runes for UTF-8 support. could do without but a real pain
		pos:    0,
		state:  stateStart,
		tokens: []Token{},
	}
}

// ScanFormula strips the optional leading = from source and tokenizes
// the remaining expression body.
func ScanFormula(source string) ([]Token, *SyntaxError) {
	body := source
	if len(body) > 0 && body[0] == charEqual {
		body = body[1:]
	}
	return NewScanner(body).Tokenize()
}

// Tokenize tokenizes the entire input and returns tokens and any error
func (s *Scanner) Tokenize() ([]Token, *SyntaxError) {
	for s.pos < len(s.runes) {
		tok := s.nextToken()
		if tok.Type == TokenError {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: tok.Value}
		}
		if tok.Type == TokenWhitespace {
			continue
		}
		// validate state transition
		if !s.validateTransition(tok.Type) {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected token: " + tok.Value}
		}
		s.tokens = append(s.tokens, tok)
		s.updateState(tok.Type)
	}

	if s.parenDepth > 0 {
		return nil, &SyntaxError{Pos: s.pos, Msg: "unbalanced parentheses: missing closing parenthesis"}
	}

	if !s.validateTransition(TokenEOF) {
		return nil, &SyntaxError{Pos: s.pos, Msg: "unexpected end of formula"}
	}

	s.tokens = append(s.tokens, Token{Type: TokenEOF, Pos: s.pos})
	return s.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (s *Scanner) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[s.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the scanner state based on the token type
func (s *Scanner) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenString, TokenBoolean, TokenCell, TokenRange:
		s.state = stateAfterValue
	case TokenUnaryOp, TokenBinaryOp:
		s.state = stateAfterOperator
	case TokenFunction:
		// a function token is always immediately followed by its paren
		s.state = stateStart
	case TokenLeftParen:
		s.state = stateAfterLeftParen
	case TokenRightParen:
		s.state = stateAfterRightParen
	case TokenComma:
		s.state = stateAfterComma
	}
}

// nextToken returns the next token from the input
func (s *Scanner) nextToken() Token {
	s.skipWhitespace()

	if s.pos >= len(s.runes) {
		return Token{Type: TokenEOF, Pos: s.pos}
	}

	startPos := s.pos
	ch := s.current()

	// string literals
	if ch == charQuote {
		return s.scanString()
	}

	// single-quoted worksheet references
	if ch == charApostrophe {
		return s.scanQuotedSheetRef()
	}

	// numbers
	if isDigit(ch) || (ch == charPeriod && isDigit(s.peek(1))) {
		return s.scanNumber()
	}

	// operators and special characters
	switch ch {
	case charLParen:
		s.pos++
		s.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		s.pos++
		s.parenDepth--
		if s.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma:
		s.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return s.scanUnaryOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand, charLess, charGreater:
		return s.scanBinaryOp()
	case charEqual:
		// the formula prefix = never reaches the scanner, so this is
		// always the comparison operator
		s.pos++
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	}

	// identifiers, functions, cells, ranges, booleans
	if isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return s.scanReferenceOrName()
	}

	// unknown character
	s.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (s *Scanner) substring(start, end int) string {
	if start < 0 || end > len(s.runes) || start > end {
		return ""
	}
	return string(s.runes[start:end])
}

func (s *Scanner) current() rune {
	if s.pos >= len(s.runes) {
		return charNull
	}
	return s.runes[s.pos]
}

func (s *Scanner) peek(offset int) rune {
	pos := s.pos + offset
	if pos >= len(s.runes) || pos < 0 {
		return charNull
	}
	return s.runes[pos]
}

func (s *Scanner) skipWhitespace() {
	for s.pos < len(s.runes) {
		ch := s.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			s.pos++
		} else {
			break
		}
	}
}

// peekNonSpace returns the first rune at or after the cursor that is
// not whitespace, without moving the cursor.
func (s *Scanner) peekNonSpace() rune {
	for pos := s.pos; pos < len(s.runes); pos++ {
		ch := s.runes[pos]
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			continue
		}
		return ch
	}
	return charNull
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isAlphaNumeric(ch rune) bool {
	return isAlpha(ch) || isDigit(ch)
}

// isRefRune reports whether ch can appear inside an unquoted cell or
// range reference, including the $ absolute marker.
func isRefRune(ch rune) bool {
	return isAlphaNumeric(ch) || ch == charDollar
}

// isNameRune reports whether ch can appear in an unquoted name head:
// reference runes plus underscore and period, so sheet names like
// Data.2024 scan without quoting.
func isNameRune(ch rune) bool {
	return isRefRune(ch) || ch == charUnderscore || ch == charPeriod
}

// scanNumber scans a number token including decimals and scientific notation
func (s *Scanner) scanNumber() Token {
	startPos := s.pos

	// integer part
	for s.pos < len(s.runes) && isDigit(s.current()) {
		s.pos++
	}

	// decimal part
	if s.current() == charPeriod {
		s.pos++ // consume '.'
		for s.pos < len(s.runes) && isDigit(s.current()) {
			s.pos++
		}
	}

	// scientific notation (e or E)
	if s.current() == 'e' || s.current() == 'E' {
		savedPos := s.pos
		s.pos++ // consume 'e' or 'E'

		// optional + or - sign
		if s.current() == charPlus || s.current() == charMinus {
			s.pos++
		}

		// must have at least one digit after e/E
		if !isDigit(s.current()) {
			// not scientific notation, restore position
			s.pos = savedPos
		} else {
			for s.pos < len(s.runes) && isDigit(s.current()) {
				s.pos++
			}
		}
	}

	value := s.substring(startPos, s.pos)
	return Token{Type: TokenNumber, Value: value, Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (s *Scanner) scanString() Token {
	startPos := s.pos
	s.pos++ // consume opening quote

	var result []rune

	for s.pos < len(s.runes) {
		ch := s.current()

		if ch == charQuote {
			// doubled quote is an escaped quote
			if s.peek(1) == charQuote {
				result = append(result, charQuote)
				s.pos += 2 // consume both quotes
			} else {
				s.pos++ // consume closing quote
				return Token{Type: TokenString, Value: string(result), Pos: startPos}
			}
		} else {
			result = append(result, ch)
			s.pos++
		}
	}

	return Token{Type: TokenError, Value: "unclosed string literal", Pos: startPos}
}

// scanReferenceOrName scans functions, cells, ranges, and booleans
func (s *Scanner) scanReferenceOrName() Token {
	startPos := s.pos

	// collect the leading reference/name characters
	for s.pos < len(s.runes) && isNameRune(s.current()) {
		s.pos++
	}

	value := s.substring(startPos, s.pos)
	upperValue := asciiUpper(value)

	// boolean literals
	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	// worksheet-qualified reference (name followed by !)
	if s.current() == charExclaim {
		return s.scanSheetRefTail(startPos)
	}

	// cell reference, possibly the head of a range
	if isCellRef(value) {
		if s.current() == charColon {
			savedPos := s.pos
			s.pos++ // consume ':'

			cellStart := s.pos
			for s.pos < len(s.runes) && isRefRune(s.current()) {
				s.pos++
			}

			secondCell := s.substring(cellStart, s.pos)
			if isCellRef(secondCell) {
				rangeValue := s.substring(startPos, s.pos)
				return Token{Type: TokenRange, Value: rangeValue, Pos: startPos}
			}
			// not a valid range, restore position and return just the cell
			s.pos = savedPos
		}
		return Token{Type: TokenCell, Value: value, Pos: startPos}
	}

	// function name: followed by an open paren, whitespace allowed in
	// between. only the name is consumed; the paren scans on its own.
	if s.peekNonSpace() == charLParen {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	// bare names are not values here. named ranges are unsupported, so
	// reject at scan time rather than leaving the parser to guess.
	return Token{Type: TokenError, Value: "unrecognized name: " + value, Pos: startPos}
}

// isCellRef checks if a string is a valid A1-style cell reference,
// allowing $ absolute markers (e.g. A1, $B$12, C$3)
func isCellRef(ref string) bool {
	runes := []rune(ref)
	i := 0

	if i < len(runes) && runes[i] == charDollar {
		i++
	}

	letterStart := i
	for i < len(runes) && isAlpha(runes[i]) {
		i++
	}
	if i == letterStart {
		return false
	}

	if i < len(runes) && runes[i] == charDollar {
		i++
	}

	digitStart := i
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i == digitStart {
		return false
	}

	return i == len(runes)
}

// asciiUpper converts a string to uppercase
func asciiUpper(value string) string {
	result := make([]rune, 0, len(value))
	for _, ch := range value {
		if ch >= 'a' && ch <= 'z' {
			ch -= 32
		}
		result = append(result, ch)
	}
	return string(result)
}

// scanQuotedSheetRef scans a worksheet reference starting with a single
// quote, e.g. 'My Sheet'!A1
func (s *Scanner) scanQuotedSheetRef() Token {
	startPos := s.pos
	s.pos++ // consume opening single quote

	for s.pos < len(s.runes) && s.current() != charApostrophe {
		s.pos++
	}

	if s.pos >= len(s.runes) {
		return Token{Type: TokenError, Value: "unclosed worksheet name", Pos: startPos}
	}

	s.pos++ // consume closing single quote

	if s.current() != charExclaim {
		return Token{Type: TokenError, Value: "expected ! after worksheet name", Pos: startPos}
	}

	return s.scanSheetRefTail(startPos)
}

// scanSheetRefTail scans the !cell or !cell:cell part of a worksheet
// reference whose sheet name begins at startPos
func (s *Scanner) scanSheetRefTail(startPos int) Token {
	if s.current() != charExclaim {
		return Token{Type: TokenError, Value: "expected ! after worksheet name", Pos: startPos}
	}

	s.pos++ // consume !

	cellStart := s.pos
	for s.pos < len(s.runes) && isRefRune(s.current()) {
		s.pos++
	}

	cellRef := s.substring(cellStart, s.pos)
	if !isCellRef(cellRef) {
		return Token{Type: TokenError, Value: "invalid cell reference after worksheet name", Pos: startPos}
	}

	// check for range
	if s.current() == charColon {
		s.pos++ // consume ':'
		rangeStart := s.pos
		for s.pos < len(s.runes) && isRefRune(s.current()) {
			s.pos++
		}

		secondCell := s.substring(rangeStart, s.pos)
		if !isCellRef(secondCell) {
			return Token{Type: TokenError, Value: "invalid range reference", Pos: startPos}
		}
		fullRef := s.substring(startPos, s.pos)
		return Token{Type: TokenRange, Value: fullRef, Pos: startPos}
	}

	fullRef := s.substring(startPos, s.pos)
	return Token{Type: TokenCell, Value: fullRef, Pos: startPos}
}

// scanUnaryOrBinaryOp scans + and - which can be either unary prefix
// or binary
func (s *Scanner) scanUnaryOrBinaryOp() Token {
	startPos := s.pos
	ch := s.current()
	s.pos++

	if s.isUnaryContext() {
		return Token{Type: TokenUnaryOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators
func (s *Scanner) scanBinaryOp() Token {
	startPos := s.pos
	ch := s.current()

	// two-character operators first
	if ch == charLess {
		s.pos++
		if s.current() == charEqual {
			s.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		} else if s.current() == charGreater {
			s.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	}

	if ch == charGreater {
		s.pos++
		if s.current() == charEqual {
			s.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	}

	// single character binary operators
	switch ch {
	case charAsterisk:
		s.pos++
		return Token{Type: TokenBinaryOp, Value: "*", Pos: startPos}
	case charSlash:
		s.pos++
		return Token{Type: TokenBinaryOp, Value: "/", Pos: startPos}
	case charCaret:
		s.pos++
		return Token{Type: TokenBinaryOp, Value: "^", Pos: startPos}
	case charAmpersand:
		s.pos++
		return Token{Type: TokenBinaryOp, Value: "&", Pos: startPos}
	}

	return Token{Type: TokenError, Value: "unknown operator", Pos: startPos}
}

// isUnaryContext checks if the current context allows unary operators
func (s *Scanner) isUnaryContext() bool {
	// unary operators are allowed at the start of an expression, after
	// another operator, after a left paren, and after a comma
	switch s.state {
	case stateStart, stateAfterOperator, stateAfterLeftParen, stateAfterComma:
		return true
	default:
		return false
	}
}
