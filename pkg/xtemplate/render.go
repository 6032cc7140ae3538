package xtemplate

import (
	"fmt"
	"html"
	"strings"
)

// renderer walks a node tree. One renderer serves one Render call.
type renderer struct {
	eval *Evaluator
}

func newRenderer(commands Commands) *renderer {
	r := &renderer{}
	r.eval = &Evaluator{commands: commands, renderer: r}
	return r
}

func (r *renderer) renderToString(nodes []*Node, scope *Scope) (string, error) {
	var sb strings.Builder
	if err := r.renderNodes(nodes, scope, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// renderNodes renders nodes in order into sb.
func (r *renderer) renderNodes(nodes []*Node, scope *Scope, sb *strings.Builder) error {
	for _, node := range nodes {
		switch node.Type {
		case NodeText:
			sb.WriteString(node.Content)

		case NodeExpression:
			val, err := r.eval.Evaluate(node.Expr, scope)
			if err != nil {
				return fmt.Errorf("error evaluating expression '{{ %s }}': %w", node.Content, err)
			}
			writeValue(sb, val, node.Raw)

		case NodeBlock:
			if err := r.renderBlock(node.Block, scope, sb); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown node type encountered during rendering: %v", node.Type)
		}
	}
	return nil
}

func writeValue(sb *strings.Builder, val interface{}, raw bool) {
	s := ToString(val)
	if raw {
		sb.WriteString(s)
		return
	}
	sb.WriteString(html.EscapeString(s))
}

// renderBlock evaluates the block's controlling expression once and renders
// the matching body.
func (r *renderer) renderBlock(block *BlockInfo, scope *Scope, sb *strings.Builder) error {
	switch block.Kind {
	case BlockIf:
		test, err := r.eval.Evaluate(block.Subject, scope)
		if err != nil {
			return fmt.Errorf("error evaluating condition for if '%s': %w", block.Subject, err)
		}
		if IsTruthy(test) {
			return r.renderNodes(block.Body, scope, sb)
		}
		return r.renderNodes(block.Else, scope, sb)

	case BlockEach:
		collection, err := r.eval.Evaluate(block.Subject, scope)
		if err != nil {
			return fmt.Errorf("error evaluating collection for each '%s': %w", block.Subject, err)
		}
		entries := iterate(collection)
		if len(entries) == 0 {
			return r.renderNodes(block.Else, scope, sb)
		}
		for _, e := range entries {
			if err := r.renderNodes(block.Body, scope.pushItem(e.value, e.key, len(entries)), sb); err != nil {
				return err
			}
		}
		return nil

	case BlockWith:
		subject, err := r.eval.Evaluate(block.Subject, scope)
		if err != nil {
			return fmt.Errorf("error evaluating subject for with '%s': %w", block.Subject, err)
		}
		if !IsTruthy(subject) {
			return r.renderNodes(block.Else, scope, sb)
		}
		return r.renderNodes(block.Body, scope.push(subject), sb)

	case BlockCommand:
		result, err := r.eval.evaluateCall(block.Subject, scope, block)
		if err != nil {
			return fmt.Errorf("error in block command '%s': %w", block.Name, err)
		}
		writeValue(sb, result, true)
		return nil
	}
	return fmt.Errorf("unhandled block kind: %s", block.Kind)
}
