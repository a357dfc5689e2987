// src/transform/expression.go
package transform

import (
	"encoding/json"
	"fmt"
)

// MaxExpressionDepth bounds how deeply nested a transform expression may be.
// Expressions come from the admin mapping UI, so the parser refuses anything
// pathological instead of trusting the author.
const MaxExpressionDepth = 100

// Expr is one node of a parsed transform expression. Exactly three shapes
// exist: FieldRef, Literal and Operation. The wire format is decoded once,
// up front, so evaluation never has to re-inspect raw JSON.
type Expr interface {
	exprNode()
}

// FieldRef names a field to look up in the input data at evaluation time.
type FieldRef struct {
	Name string
}

// Literal is a fixed numeric value.
type Literal struct {
	Value float64
}

// Operation applies a named operator or function to its evaluated arguments.
type Operation struct {
	Op   string
	Args []Expr
}

func (FieldRef) exprNode()  {}
func (Literal) exprNode()   {}
func (Operation) exprNode() {}

// InvalidExpressionError reports a node that matches none of the three
// recognized shapes, or a structurally unacceptable tree.
type InvalidExpressionError struct {
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid expression: %s", e.Reason)
}

// UnknownFieldError reports a field reference that is absent from the
// evaluation data.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %q not found in data", e.Field)
}

// UnknownOperatorError reports an operation naming an operator outside the
// supported set.
type UnknownOperatorError struct {
	Op string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operation: %q", e.Op)
}

// ArityError reports an operator or function given the wrong number of
// arguments.
type ArityError struct {
	Op   string
	Want string
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("operation %q requires %s argument(s), got %d", e.Op, e.Want, e.Got)
}

// rawExpr mirrors the wire format. Key priority when several keys are
// present follows the original engine: field, then value, then op.
type rawExpr struct {
	Field *string           `json:"field"`
	Value *float64          `json:"value"`
	Op    *string           `json:"op"`
	Args  []json.RawMessage `json:"args"`
}

// ParseExpression decodes the JSON wire format of a transform expression
// into an Expr tree. The three shapes are made mutually exclusive here, so
// the evaluator can match exhaustively.
func ParseExpression(data []byte) (Expr, error) {
	return parseExpr(data, 0)
}

func parseExpr(data []byte, depth int) (Expr, error) {
	if depth > MaxExpressionDepth {
		return nil, &InvalidExpressionError{Reason: fmt.Sprintf("nesting exceeds maximum depth %d", MaxExpressionDepth)}
	}

	var raw rawExpr
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidExpressionError{Reason: fmt.Sprintf("expression must be a JSON object: %v", err)}
	}

	switch {
	case raw.Field != nil:
		if *raw.Field == "" {
			return nil, &InvalidExpressionError{Reason: "field reference with empty name"}
		}
		return FieldRef{Name: *raw.Field}, nil
	case raw.Value != nil:
		return Literal{Value: *raw.Value}, nil
	case raw.Op != nil:
		args := make([]Expr, 0, len(raw.Args))
		for _, rawArg := range raw.Args {
			arg, err := parseExpr(rawArg, depth+1)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return Operation{Op: *raw.Op, Args: args}, nil
	default:
		return nil, &InvalidExpressionError{Reason: "node has none of 'field', 'value' or 'op'"}
	}
}

// CollectFields walks the tree and returns every field name it references.
func CollectFields(expr Expr) []string {
	seen := make(map[string]bool)
	var names []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case FieldRef:
			if !seen[n.Name] {
				seen[n.Name] = true
				names = append(names, n.Name)
			}
		case Operation:
			for _, arg := range n.Args {
				walk(arg)
			}
		}
	}
	walk(expr)
	return names
}
