package xtemplate

import (
	"fmt"
)

// Evaluator evaluates expression trees against a scope using a fixed
// command registry. It holds no per-call state and is safe for concurrent use.
// Use NewEvaluator; the zero value has no commands.
type Evaluator struct {
	commands Commands
	renderer *renderer // renders Fn/Inverse bodies for block commands
}

// NewEvaluator returns an Evaluator that calls commands from the given
// registry. A nil registry means Builtins.
func NewEvaluator(commands Commands) *Evaluator {
	if commands == nil {
		commands = Builtins()
	}
	return newRenderer(commands).eval
}

// Evaluate evaluates node in scope.
func (e *Evaluator) Evaluate(node *ExprNode, scope *Scope) (interface{}, error) {
	if node == nil {
		return nil, fmt.Errorf("cannot evaluate nil node")
	}

	switch node.Type {
	case ExprLiteral:
		return node.Value, nil

	case ExprIdentifier:
		return scope.Resolve(node.Path, node.UpLevels), nil

	case ExprArray:
		items := make([]interface{}, 0, len(node.Children))
		for _, child := range node.Children {
			item, err := e.Evaluate(child, scope)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil

	case ExprObject:
		obj := NewObject(len(node.Keys))
		for i, key := range node.Keys {
			value, err := e.Evaluate(node.Children[i], scope)
			if err != nil {
				return nil, err
			}
			obj.Set(key, value)
		}
		return obj, nil

	case ExprUnary:
		operand, err := e.Evaluate(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		switch node.Operator {
		case "!":
			return !IsTruthy(operand), nil
		case "-":
			return -ToNumber(operand), nil
		case "+":
			return ToNumber(operand), nil
		}
		return nil, fmt.Errorf("unknown unary operator: %s", node.Operator)

	case ExprLogical:
		return e.evaluateLogical(node, scope)

	case ExprBinary:
		left, err := e.Evaluate(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		right, err := e.Evaluate(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		return binary(node.Operator, left, right)

	case ExprSubscript:
		obj, err := e.Evaluate(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		key, err := e.Evaluate(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if v, ok := property(obj, propertyKey(key)); ok {
			return v, nil
		}
		return Undefined, nil

	case ExprCall:
		return e.evaluateCall(node, scope, nil)
	}
	return nil, fmt.Errorf("unknown node type: %v", node.Type)
}

// evaluateLogical evaluates the right operand only when the left one does
// not decide the result. The result is the deciding operand itself.
func (e *Evaluator) evaluateLogical(node *ExprNode, scope *Scope) (interface{}, error) {
	left, err := e.Evaluate(node.Children[0], scope)
	if err != nil {
		return nil, err
	}
	switch node.Operator {
	case "&&":
		if !IsTruthy(left) {
			return left, nil
		}
	case "||":
		if IsTruthy(left) {
			return left, nil
		}
	default:
		return nil, fmt.Errorf("unknown logical operator: %s", node.Operator)
	}
	return e.Evaluate(node.Children[1], scope)
}

func binary(op string, left, right interface{}) (interface{}, error) {
	switch op {
	case "+":
		return add(left, right), nil
	case "-", "*", "/", "%":
		return arithmetic(op, left, right), nil
	case "<", "<=", ">", ">=":
		return compare(op, left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	}
	return nil, fmt.Errorf("unknown binary operator: %s", op)
}

// evaluateCall evaluates the arguments left to right, then invokes the
// command. block is non-nil when the call heads a block command.
func (e *Evaluator) evaluateCall(node *ExprNode, scope *Scope, block *BlockInfo) (interface{}, error) {
	params := make([]interface{}, 0, len(node.Children))
	for _, arg := range node.Children {
		v, err := e.Evaluate(arg, scope)
		if err != nil {
			return nil, err
		}
		params = append(params, v)
	}

	cmd, ok := e.commands.Lookup(node.Name)
	if !ok {
		return nil, &UnknownCommandError{Name: node.Name, Suggestion: closestCommand(node.Name, e.commands)}
	}

	option := &Option{Name: node.Name, Params: params}
	if block != nil && e.renderer != nil {
		r := e.renderer
		option.Fn = func(s *Scope) (string, error) { return r.renderToString(block.Body, s) }
		if block.HasElse {
			option.Inverse = func(s *Scope) (string, error) { return r.renderToString(block.Else, s) }
		}
	}

	result, err := cmd(scope, option)
	if err != nil {
		return nil, &CommandError{Name: node.Name, Err: err}
	}
	if result == nil {
		// A command without a result yields undefined, not null.
		return Undefined, nil
	}
	return result, nil
}
