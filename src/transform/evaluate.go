// src/transform/evaluate.go
package transform

import (
	"errors"
	"math"
)

// ErrDivisionByZero is returned when the right operand of a divide
// evaluates to exactly zero. Checked before dividing, never left to a
// floating-point Inf.
var ErrDivisionByZero = errors.New("division by zero")

// Evaluate computes a parsed expression against a flat field→value map.
// It is a closed sandbox: the only inputs are the tree and the map, the
// only operators are the ones enumerated below, and there are no side
// effects. Every failure mode is one of the typed errors in this package.
func Evaluate(expr Expr, data map[string]float64) (float64, error) {
	switch n := expr.(type) {
	case FieldRef:
		v, ok := data[n.Name]
		if !ok {
			return 0, &UnknownFieldError{Field: n.Name}
		}
		return v, nil
	case Literal:
		return n.Value, nil
	case Operation:
		return evaluateOperation(n, data)
	case nil:
		return 0, &InvalidExpressionError{Reason: "nil expression"}
	default:
		return 0, &InvalidExpressionError{Reason: "unrecognized node type"}
	}
}

func evaluateOperation(op Operation, data map[string]float64) (float64, error) {
	// Binary operators take exactly two arguments.
	if binary, ok := binaryOp(op.Op); ok {
		if len(op.Args) != 2 {
			return 0, &ArityError{Op: op.Op, Want: "exactly 2", Got: len(op.Args)}
		}
		left, err := Evaluate(op.Args[0], data)
		if err != nil {
			return 0, err
		}
		right, err := Evaluate(op.Args[1], data)
		if err != nil {
			return 0, err
		}
		if op.Op == "divide" && right == 0 {
			return 0, ErrDivisionByZero
		}
		return binary(left, right), nil
	}

	switch op.Op {
	case "abs", "round", "sqrt", "log", "log10", "exp", "sin", "cos", "tan":
		if len(op.Args) != 1 {
			return 0, &ArityError{Op: op.Op, Want: "exactly 1", Got: len(op.Args)}
		}
		arg, err := Evaluate(op.Args[0], data)
		if err != nil {
			return 0, err
		}
		return unaryFn(op.Op)(arg), nil
	case "max", "min", "sum":
		if len(op.Args) < 1 {
			return 0, &ArityError{Op: op.Op, Want: "at least 1", Got: 0}
		}
		values := make([]float64, len(op.Args))
		for i, argExpr := range op.Args {
			v, err := Evaluate(argExpr, data)
			if err != nil {
				return 0, err
			}
			values[i] = v
		}
		return foldFn(op.Op)(values), nil
	default:
		return 0, &UnknownOperatorError{Op: op.Op}
	}
}

// The operator set is fixed at compile time. Nothing here dispatches into
// caller-supplied code, which is the whole point of the JSON expression
// format over eval-style formulas.
func binaryOp(name string) (func(a, b float64) float64, bool) {
	switch name {
	case "add":
		return func(a, b float64) float64 { return a + b }, true
	case "subtract":
		return func(a, b float64) float64 { return a - b }, true
	case "multiply":
		return func(a, b float64) float64 { return a * b }, true
	case "divide":
		return func(a, b float64) float64 { return a / b }, true
	case "power":
		return math.Pow, true
	case "modulo":
		return math.Mod, true
	default:
		return nil, false
	}
}

func unaryFn(name string) func(float64) float64 {
	switch name {
	case "abs":
		return math.Abs
	case "round":
		return math.Round
	case "sqrt":
		return math.Sqrt
	case "log":
		return math.Log
	case "log10":
		return math.Log10
	case "exp":
		return math.Exp
	case "sin":
		return math.Sin
	case "cos":
		return math.Cos
	case "tan":
		return math.Tan
	default:
		panic("unaryFn: unreachable for " + name)
	}
}

func foldFn(name string) func([]float64) float64 {
	switch name {
	case "max":
		return func(vs []float64) float64 {
			m := vs[0]
			for _, v := range vs[1:] {
				if v > m {
					m = v
				}
			}
			return m
		}
	case "min":
		return func(vs []float64) float64 {
			m := vs[0]
			for _, v := range vs[1:] {
				if v < m {
					m = v
				}
			}
			return m
		}
	case "sum":
		return func(vs []float64) float64 {
			var s float64
			for _, v := range vs {
				s += v
			}
			return s
		}
	default:
		panic("foldFn: unreachable for " + name)
	}
}

// Validate dry-runs an expression with 1.0 substituted for every field it
// references and reports whether evaluation succeeds. Intended as a sanity
// check before a mapping rule is saved; it cannot guarantee the expression
// succeeds against real data (divide can still hit a real zero).
func Validate(expr Expr) bool {
	if expr == nil {
		return false
	}
	placeholder := make(map[string]float64)
	for _, name := range CollectFields(expr) {
		placeholder[name] = 1.0
	}
	_, err := Evaluate(expr, placeholder)
	return err == nil
}

// ValidateJSON parses and validates a wire-format expression in one step.
func ValidateJSON(data []byte) bool {
	expr, err := ParseExpression(data)
	if err != nil {
		return false
	}
	return Validate(expr)
}
