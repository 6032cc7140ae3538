package xtemplate

import (
	"fmt"
	"strings"
)

// TokenType represents the different types of tokens in an expression.
type TokenType int

const (
	TokenNumber TokenType = iota
	TokenString
	TokenKeyword    // true, false, null, undefined
	TokenIdentifier // a, a.b, this, ../a
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
	TokenComma
	TokenColon
	TokenEOF
)

// Token is a lexical token of an expression. Position is a byte offset into
// the expression text.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of expression"
	}
	return fmt.Sprintf("'%s'", t.Value)
}

// operatorPrecedence maps binary operators to their binding strength; a
// higher number binds tighter.
var operatorPrecedence = map[string]int{
	"||":  10,
	"&&":  20,
	"===": 30, "!==": 30,
	"<": 40, "<=": 40, ">": 40, ">=": 40,
	"+": 50, "-": 50,
	"*": 60, "/": 60, "%": 60,
}

var keywords = map[string]struct{}{
	"true":      {},
	"false":     {},
	"null":      {},
	"undefined": {},
}

// Lexer breaks one expression into tokens.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer instance.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// lexError carries the offset of a lexical or syntax problem inside the
// expression so the template parser can map it back to the source.
type lexError struct {
	pos int
	msg string
}

func (e *lexError) Error() string { return fmt.Sprintf("%s at position %d", e.msg, e.pos) }

func errorAt(pos int, format string, args ...interface{}) *lexError {
	return &lexError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// Tokenize breaks the input string into tokens, ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	estimatedCapacity := len(l.input) / 3
	if estimatedCapacity < 8 {
		estimatedCapacity = 8
	}
	l.tokens = make([]Token, 0, estimatedCapacity)
	l.pos = 0

	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}

		switch c {
		case '(':
			l.addToken(TokenLeftParen, "(")
			continue
		case ')':
			l.addToken(TokenRightParen, ")")
			continue
		case '[':
			l.addToken(TokenLeftBracket, "[")
			continue
		case ']':
			l.addToken(TokenRightBracket, "]")
			continue
		case '{':
			l.addToken(TokenLeftBrace, "{")
			continue
		case '}':
			l.addToken(TokenRightBrace, "}")
			continue
		case ',':
			l.addToken(TokenComma, ",")
			continue
		case ':':
			l.addToken(TokenColon, ":")
			continue
		case '\'', '"':
			if err := l.tokenizeString(); err != nil {
				return nil, err
			}
			continue
		}

		if isDigit(c) {
			l.tokenizeNumber()
			continue
		}

		if strings.HasPrefix(l.input[l.pos:], "../") || isIdentStart(c) {
			if err := l.tokenizeIdentifierOrKeyword(); err != nil {
				return nil, err
			}
			continue
		}

		if l.tryTokenizeOperator() {
			continue
		}

		return nil, errorAt(l.pos, "unexpected character '%c'", c)
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Position: len(l.input)})
	return l.tokens, nil
}

func (l *Lexer) addToken(tokenType TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: tokenType, Value: value, Position: l.pos})
	l.pos += len(value)
}

// tokenizeString scans a quoted literal and stores its unescaped value.
func (l *Lexer) tokenizeString() error {
	quoteChar := l.input[l.pos]
	start := l.pos
	l.pos++

	for l.pos < len(l.input) && l.input[l.pos] != quoteChar {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			l.pos += 2
		} else {
			l.pos++
		}
	}
	if l.pos >= len(l.input) {
		return errorAt(start, "unterminated string literal")
	}

	value := unescapeStringLiteral(l.input[start+1 : l.pos])
	l.pos++
	l.tokens = append(l.tokens, Token{Type: TokenString, Value: value, Position: start})
	return nil
}

// tokenizeNumber scans digits with an optional fraction and exponent.
func (l *Lexer) tokenizeNumber() {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		p := l.pos + 1
		if p < len(l.input) && (l.input[p] == '+' || l.input[p] == '-') {
			p++
		}
		if p < len(l.input) && isDigit(l.input[p]) {
			for p < len(l.input) && isDigit(l.input[p]) {
				p++
			}
			l.pos = p
		}
	}
	l.tokens = append(l.tokens, Token{Type: TokenNumber, Value: l.input[start:l.pos], Position: start})
}

// tryTokenizeOperator matches the longest operator at the current position.
func (l *Lexer) tryTokenizeOperator() bool {
	rest := l.input[l.pos:]
	for _, op := range []string{"===", "!==", "&&", "||", "<=", ">="} {
		if strings.HasPrefix(rest, op) {
			l.addToken(TokenOperator, op)
			return true
		}
	}
	switch rest[0] {
	case '+', '-', '*', '/', '%', '<', '>', '!':
		l.addToken(TokenOperator, rest[:1])
		return true
	}
	return false
}

// tokenizeIdentifierOrKeyword scans the longest identifier path, including
// leading "../" hops and ".name" segments. Only a whole word equal to a
// keyword becomes a keyword, so trueX stays an identifier.
func (l *Lexer) tokenizeIdentifierOrKeyword() error {
	start := l.pos
	for strings.HasPrefix(l.input[l.pos:], "../") {
		l.pos += 3
	}
	if l.pos >= len(l.input) || !isIdentStart(l.input[l.pos]) {
		return errorAt(l.pos, "expected identifier after '../'")
	}
	for {
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isIdentStart(l.input[l.pos+1]) {
			l.pos++
			continue
		}
		break
	}

	word := l.input[start:l.pos]
	if _, found := keywords[word]; found {
		l.tokens = append(l.tokens, Token{Type: TokenKeyword, Value: word, Position: start})
		return nil
	}
	l.tokens = append(l.tokens, Token{Type: TokenIdentifier, Value: word, Position: start})
	return nil
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentStart(c byte) bool {
	return isAlpha(c) || c == '_' || c == '$'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// unescapeStringLiteral resolves backslash escapes. Unknown escapes keep the
// escaped character and drop the backslash.
func unescapeStringLiteral(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i+1])
			}
			i++
		} else {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
