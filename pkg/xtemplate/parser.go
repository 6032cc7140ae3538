package xtemplate

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType defines the category of a parsed Node.
type NodeType int

const (
	NodeText       NodeType = iota // literal text
	NodeExpression                 // {{ expr }} or {{{ expr }}}
	NodeBlock                      // {{#name(...)}} ... {{/name}}
)

// BlockKind identifies the block construct of a NodeBlock.
type BlockKind int

const (
	BlockIf BlockKind = iota
	BlockEach
	BlockWith
	BlockCommand // any other name, dispatched to the command registry
)

func (k BlockKind) String() string {
	switch k {
	case BlockIf:
		return "if"
	case BlockEach:
		return "each"
	case BlockWith:
		return "with"
	}
	return "command"
}

// BlockInfo holds the parts of a block construct.
type BlockInfo struct {
	Kind    BlockKind
	Name    string
	Subject *ExprNode // test for #if, collection for #each, subject for #with, call for commands
	Body    []*Node
	Else    []*Node // nil unless the block has an {{else}}
	HasElse bool
}

// Node represents a parsed element of the template tree.
type Node struct {
	Type    NodeType
	Content string    // text content, or the source of an expression
	Expr    *ExprNode // NodeExpression
	Raw     bool      // NodeExpression emitted without HTML escaping
	Block   *BlockInfo
	Pos     int // byte offset in the template source
}

// openBlock is an entry of the parser's block stack.
type openBlock struct {
	node   *Node
	inElse bool
}

// Parser builds the node tree of one template.
type Parser struct {
	name  string
	input string
	root  []*Node
	stack []*openBlock
}

// NewParser creates a Parser for the given template source. name is only
// used in error messages.
func NewParser(name, input string) *Parser {
	return &Parser{name: name, input: input}
}

// ParseAll parses the entire template into a tree of nodes, enforcing that
// block tags are balanced.
func (p *Parser) ParseAll() ([]*Node, error) {
	segments, err := tokenize(p.name, p.input)
	if err != nil {
		return nil, err
	}

	for _, seg := range segments {
		if seg.segmentType == literalText {
			p.appendNode(&Node{Type: NodeText, Content: seg.content, Pos: seg.pos})
			continue
		}
		if err := p.parseTag(seg); err != nil {
			return nil, err
		}
	}

	if n := len(p.stack); n > 0 {
		open := p.stack[n-1].node
		return nil, p.errorf(open.Pos, "unclosed block '{{#%s}}', missing '{{/%s}}'", open.Block.Name, open.Block.Name)
	}
	return p.root, nil
}

// appendNode adds n to the body currently being filled.
func (p *Parser) appendNode(n *Node) {
	if len(p.stack) == 0 {
		p.root = append(p.root, n)
		return
	}
	top := p.stack[len(p.stack)-1]
	if top.inElse {
		top.node.Block.Else = append(top.node.Block.Else, n)
	} else {
		top.node.Block.Body = append(top.node.Block.Body, n)
	}
}

// parseTag dispatches one expression segment: block open, {{else}}, block
// close or a plain expression.
func (p *Parser) parseTag(seg segment) error {
	trimmed := strings.TrimSpace(seg.content)
	offset := seg.pos + strings.Index(seg.content, trimmed)

	if !seg.raw {
		switch {
		case strings.HasPrefix(trimmed, "#"):
			return p.parseBlockOpen(trimmed[1:], offset+1)
		case strings.HasPrefix(trimmed, "/"):
			return p.parseBlockClose(strings.TrimSpace(trimmed[1:]), offset)
		case trimmed == "else":
			return p.parseElse(offset)
		}
	}

	expr, err := p.parseExpressionAt(seg.content, seg.pos)
	if err != nil {
		return err
	}
	p.appendNode(&Node{Type: NodeExpression, Content: trimmed, Expr: expr, Raw: seg.raw, Pos: seg.pos})
	return nil
}

// parseBlockOpen parses the text after '#', e.g. "each (items)" or
// " with({x: 2}) ".
func (p *Parser) parseBlockOpen(text string, offset int) error {
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n"))
	text, offset = text[lead:], offset+lead

	n := 0
	for n < len(text) && (isIdentPart(text[n]) || text[n] == '.') {
		n++
	}
	name := text[:n]
	if name == "" {
		return p.errorf(offset, "expected block name after '{{#'")
	}
	rest := text[n:]

	block := &BlockInfo{Name: name}
	switch name {
	case "if":
		block.Kind = BlockIf
	case "each":
		block.Kind = BlockEach
	case "with":
		block.Kind = BlockWith
	default:
		block.Kind = BlockCommand
	}

	if block.Kind == BlockCommand {
		if strings.TrimSpace(rest) == "" {
			rest = "()"
		}
		call, err := p.parseExpressionAt(name+rest, offset)
		if err != nil {
			return err
		}
		if call.Type != ExprCall {
			return p.errorf(offset, "block '{{#%s}}' must be a command call, e.g. {{#%s(arg)}}", name, name)
		}
		block.Subject = call
	} else {
		if strings.TrimSpace(rest) == "" {
			return p.errorf(offset, "block '{{#%s}}' requires an expression, e.g. {{#%s(value)}}", name, name)
		}
		subject, err := p.parseExpressionAt(rest, offset+n)
		if err != nil {
			return err
		}
		block.Subject = subject
	}

	node := &Node{Type: NodeBlock, Content: name + rest, Block: block, Pos: offset}
	p.appendNode(node)
	p.stack = append(p.stack, &openBlock{node: node})
	return nil
}

func (p *Parser) parseElse(offset int) error {
	if len(p.stack) == 0 {
		return p.errorf(offset, "unexpected '{{else}}' outside of a block")
	}
	top := p.stack[len(p.stack)-1]
	if top.inElse {
		return p.errorf(offset, "duplicate '{{else}}' in block '{{#%s}}'", top.node.Block.Name)
	}
	top.inElse = true
	top.node.Block.HasElse = true
	top.node.Block.Else = []*Node{}
	return nil
}

func (p *Parser) parseBlockClose(name string, offset int) error {
	if len(p.stack) == 0 {
		return p.errorf(offset, "unexpected '{{/%s}}' without a matching open tag", name)
	}
	top := p.stack[len(p.stack)-1]
	if top.node.Block.Name != name {
		return p.errorf(offset, "'{{/%s}}' does not match open block '{{#%s}}'", name, top.node.Block.Name)
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

// parseExpressionAt parses expr and maps lexer and parser errors to a
// position in the template, given that expr starts at offset.
func (p *Parser) parseExpressionAt(expr string, offset int) (*ExprNode, error) {
	node, err := ParseExpression(expr)
	if err != nil {
		var le *lexError
		if errors.As(err, &le) {
			return nil, p.errorf(offset+le.pos, "%s", le.msg)
		}
		return nil, p.errorf(offset, "%v", err)
	}
	return node, nil
}

func (p *Parser) errorf(offset int, format string, args ...interface{}) error {
	return newSyntaxError(p.name, p.input, offset, "%s", fmt.Sprintf(format, args...))
}
