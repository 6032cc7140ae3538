package xtemplate

/*
Expressions are handled in three phases:

 1. Lexical analysis (lexer.go) turns the text between the delimiters into
    tokens, matching identifiers and keywords by longest match.
 2. Syntactic analysis (this file) builds an ExprNode tree by precedence
    climbing: prefix operators and primaries first, then binary operators
    while their precedence is at least the current minimum.
 3. Evaluation (evaluator.go) walks the tree against a Scope.
*/

import (
	"fmt"
	"strconv"
	"strings"
)

// ExprNodeType represents the type of an expression AST node.
type ExprNodeType int

const (
	ExprLiteral    ExprNodeType = iota
	ExprIdentifier              // Path, UpLevels
	ExprArray                   // Children are the elements
	ExprObject                  // Keys[i] maps to Children[i]
	ExprUnary                   // Operator, Children[0]
	ExprBinary                  // Operator, Children[0], Children[1]
	ExprLogical                 // "&&" or "||", evaluated lazily
	ExprCall                    // Name, Children are the arguments
	ExprSubscript               // Children[0][Children[1]]
)

var exprNodeTypeNames = [...]string{
	ExprLiteral:    "literal",
	ExprIdentifier: "identifier",
	ExprArray:      "array",
	ExprObject:     "object",
	ExprUnary:      "unary",
	ExprBinary:     "binary",
	ExprLogical:    "logical",
	ExprCall:       "call",
	ExprSubscript:  "subscript",
}

func (t ExprNodeType) String() string {
	if int(t) < len(exprNodeTypeNames) {
		return exprNodeTypeNames[t]
	}
	return fmt.Sprintf("ExprNodeType(%d)", int(t))
}

// ExprNode is a node of the expression AST. Nodes are immutable once parsed.
type ExprNode struct {
	Type     ExprNodeType
	Value    interface{} // literal value
	Operator string
	Name     string   // command name for calls
	Path     []string // identifier segments, e.g. ["user", "name"]
	UpLevels int      // leading "../" count of an identifier
	Keys     []string // object literal keys
	Children []*ExprNode
	Pos      int // byte offset inside the expression text
}

// String renders the node back as expression source, normalised with
// explicit parentheses around operators.
func (n *ExprNode) String() string {
	switch n.Type {
	case ExprLiteral:
		if s, ok := n.Value.(string); ok {
			return strconv.Quote(s)
		}
		if n.Value == nil {
			return "null"
		}
		return jsString(n.Value)
	case ExprIdentifier:
		return strings.Repeat("../", n.UpLevels) + strings.Join(n.Path, ".")
	case ExprArray:
		return "[" + joinNodes(n.Children) + "]"
	case ExprObject:
		parts := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			parts[i] = strconv.Quote(k) + ": " + n.Children[i].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ExprUnary:
		return n.Operator + n.Children[0].String()
	case ExprBinary, ExprLogical:
		return "(" + n.Children[0].String() + " " + n.Operator + " " + n.Children[1].String() + ")"
	case ExprCall:
		return n.Name + "(" + joinNodes(n.Children) + ")"
	case ExprSubscript:
		return n.Children[0].String() + "[" + n.Children[1].String() + "]"
	}
	return "?"
}

func joinNodes(nodes []*ExprNode) string {
	parts := make([]string, len(nodes))
	for i, c := range nodes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// ExprParser turns a token stream into an ExprNode tree.
type ExprParser struct {
	tokens []Token
	pos    int
}

// NewExprParser creates a new parser over tokens produced by Lexer.Tokenize.
func NewExprParser(tokens []Token) *ExprParser {
	return &ExprParser{tokens: tokens}
}

// ParseExpression lexes and parses one complete expression.
func ParseExpression(expr string) (*ExprNode, error) {
	tokens, err := NewLexer(expr).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewExprParser(tokens).Parse()
}

// Parse parses a single expression and requires that all tokens are used.
func (p *ExprParser) Parse() (*ExprNode, error) {
	if p.peek().Type == TokenEOF {
		return nil, errorAt(p.peek().Position, "empty expression")
	}
	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, errorAt(tok.Position, "unexpected token %s", tok)
	}
	return node, nil
}

func (p *ExprParser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *ExprParser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *ExprParser) expect(tokenType TokenType, what string) error {
	tok := p.peek()
	if tok.Type != tokenType {
		return errorAt(tok.Position, "expected '%s', found %s", what, tok)
	}
	p.pos++
	return nil
}

// parseExpression parses an expression whose binary operators all bind at
// least as tightly as minPrecedence. A binary operator is only recognised
// after a complete operand, which is what makes `n-1` a subtraction.
func (p *ExprParser) parseExpression(minPrecedence int) (*ExprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenOperator {
			break
		}
		prec, ok := operatorPrecedence[tok.Value]
		if !ok || prec < minPrecedence {
			break
		}
		p.pos++

		// prec+1 makes every level left-associative.
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}

		nodeType := ExprBinary
		if tok.Value == "&&" || tok.Value == "||" {
			nodeType = ExprLogical
		}
		left = &ExprNode{
			Type:     nodeType,
			Operator: tok.Value,
			Children: []*ExprNode{left, right},
			Pos:      tok.Position,
		}
	}
	return left, nil
}

// parseUnary handles the prefix operators `!`, `-` and `+`.
func (p *ExprParser) parseUnary() (*ExprNode, error) {
	tok := p.peek()
	if tok.Type == TokenOperator && (tok.Value == "!" || tok.Value == "-" || tok.Value == "+") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ExprNode{
			Type:     ExprUnary,
			Operator: tok.Value,
			Children: []*ExprNode{operand},
			Pos:      tok.Position,
		}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any number of `[key]` subscripts.
func (p *ExprParser) parsePostfix() (*ExprNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenLeftBracket {
		open := p.next()
		key, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRightBracket, "]"); err != nil {
			return nil, err
		}
		node = &ExprNode{Type: ExprSubscript, Children: []*ExprNode{node, key}, Pos: open.Position}
	}
	return node, nil
}

func (p *ExprParser) parsePrimary() (*ExprNode, error) {
	tok := p.next()
	switch tok.Type {
	case TokenNumber:
		return p.parseNumber(tok)
	case TokenString:
		return &ExprNode{Type: ExprLiteral, Value: tok.Value, Pos: tok.Position}, nil
	case TokenKeyword:
		return p.parseKeyword(tok), nil
	case TokenIdentifier:
		if p.peek().Type == TokenLeftParen {
			return p.parseCall(tok)
		}
		return parseIdentifier(tok), nil
	case TokenLeftParen:
		return p.parseGrouping()
	case TokenLeftBracket:
		return p.parseArrayLiteral(tok)
	case TokenLeftBrace:
		return p.parseObjectLiteral(tok)
	case TokenEOF:
		return nil, errorAt(tok.Position, "unexpected end of expression")
	}
	return nil, errorAt(tok.Position, "unexpected token %s", tok)
}

func (p *ExprParser) parseNumber(tok Token) (*ExprNode, error) {
	f, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, errorAt(tok.Position, "invalid number literal '%s'", tok.Value)
	}
	return &ExprNode{Type: ExprLiteral, Value: f, Pos: tok.Position}, nil
}

func (p *ExprParser) parseKeyword(tok Token) *ExprNode {
	var value interface{}
	switch tok.Value {
	case "true":
		value = true
	case "false":
		value = false
	case "null":
		value = nil
	default:
		value = Undefined
	}
	return &ExprNode{Type: ExprLiteral, Value: value, Pos: tok.Position}
}

// parseIdentifier splits "../../a.b" into UpLevels 2 and Path [a b].
func parseIdentifier(tok Token) *ExprNode {
	name := tok.Value
	up := 0
	for strings.HasPrefix(name, "../") {
		up++
		name = name[3:]
	}
	return &ExprNode{
		Type:     ExprIdentifier,
		Path:     strings.Split(name, "."),
		UpLevels: up,
		Pos:      tok.Position,
	}
}

func (p *ExprParser) parseGrouping() (*ExprNode, error) {
	expr, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRightParen, ")"); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseCall parses `name(arg, ...)`. Command names are plain or dotted
// identifiers; a "../" prefix is not meaningful for a command.
func (p *ExprParser) parseCall(name Token) (*ExprNode, error) {
	if strings.HasPrefix(name.Value, "../") {
		return nil, errorAt(name.Position, "command name '%s' cannot use '../'", name.Value)
	}
	p.pos++ // '('
	args, err := p.parseList(TokenRightParen, ")")
	if err != nil {
		return nil, err
	}
	return &ExprNode{Type: ExprCall, Name: name.Value, Children: args, Pos: name.Position}, nil
}

func (p *ExprParser) parseArrayLiteral(open Token) (*ExprNode, error) {
	items, err := p.parseList(TokenRightBracket, "]")
	if err != nil {
		return nil, err
	}
	return &ExprNode{Type: ExprArray, Children: items, Pos: open.Position}, nil
}

// parseList parses comma separated expressions up to and including the
// closing token.
func (p *ExprParser) parseList(closing TokenType, closingText string) ([]*ExprNode, error) {
	var items []*ExprNode
	if p.peek().Type == closing {
		p.pos++
		return items, nil
	}
	for {
		item, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		tok := p.next()
		switch tok.Type {
		case closing:
			return items, nil
		case TokenComma:
			continue
		case TokenEOF:
			return nil, errorAt(tok.Position, "unexpected end of expression, expected '%s' or ','", closingText)
		default:
			return nil, errorAt(tok.Position, "expected ',' or '%s', found %s", closingText, tok)
		}
	}
}

// parseObjectLiteral parses `{key: value, ...}` where keys are bare
// identifiers, quoted strings or numbers.
func (p *ExprParser) parseObjectLiteral(open Token) (*ExprNode, error) {
	node := &ExprNode{Type: ExprObject, Pos: open.Position}
	if p.peek().Type == TokenRightBrace {
		p.pos++
		return node, nil
	}
	for {
		keyTok := p.next()
		var key string
		switch keyTok.Type {
		case TokenString:
			key = keyTok.Value
		case TokenIdentifier, TokenKeyword:
			if strings.ContainsAny(keyTok.Value, "./") {
				return nil, errorAt(keyTok.Position, "invalid object key '%s'", keyTok.Value)
			}
			key = keyTok.Value
		case TokenNumber:
			f, err := strconv.ParseFloat(keyTok.Value, 64)
			if err != nil {
				return nil, errorAt(keyTok.Position, "invalid object key '%s'", keyTok.Value)
			}
			key = FormatNumber(f)
		case TokenEOF:
			return nil, errorAt(keyTok.Position, "unexpected end of expression, expected '}'")
		default:
			return nil, errorAt(keyTok.Position, "expected object key, found %s", keyTok)
		}

		if err := p.expect(TokenColon, ":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		node.Keys = append(node.Keys, key)
		node.Children = append(node.Children, value)

		tok := p.next()
		switch tok.Type {
		case TokenRightBrace:
			return node, nil
		case TokenComma:
			continue
		case TokenEOF:
			return nil, errorAt(tok.Position, "unexpected end of expression, expected '}' or ','")
		default:
			return nil, errorAt(tok.Position, "expected ',' or '}', found %s", tok)
		}
	}
}
