package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	expr, err := ParseExpression([]byte(src))
	require.NoError(t, err, "parsing %s", src)
	return expr
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data map[string]float64
		want float64
	}{
		{
			name: "literal add",
			src:  `{"op":"add","args":[{"value":2},{"value":3}]}`,
			want: 5,
		},
		{
			name: "subtract",
			src:  `{"op":"subtract","args":[{"value":10},{"value":4}]}`,
			want: 6,
		},
		{
			name: "multiply fields",
			src:  `{"op":"multiply","args":[{"field":"a"},{"field":"b"}]}`,
			data: map[string]float64{"a": 6, "b": 7},
			want: 42,
		},
		{
			name: "divide",
			src:  `{"op":"divide","args":[{"value":1},{"value":4}]}`,
			want: 0.25,
		},
		{
			name: "power",
			src:  `{"op":"power","args":[{"value":2},{"value":10}]}`,
			want: 1024,
		},
		{
			name: "modulo",
			src:  `{"op":"modulo","args":[{"value":7},{"value":3}]}`,
			want: 1,
		},
		{
			name: "nested gross margin pct",
			src:  `{"op":"multiply","args":[{"op":"divide","args":[{"field":"gross_profit"},{"field":"total_revenue"}]},{"value":100}]}`,
			data: map[string]float64{"gross_profit": 40, "total_revenue": 100},
			want: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(mustParse(t, tt.src), tt.data)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluateFunctions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"abs", `{"op":"abs","args":[{"value":-3.5}]}`, 3.5},
		{"round", `{"op":"round","args":[{"value":2.6}]}`, 3},
		{"sqrt", `{"op":"sqrt","args":[{"value":144}]}`, 12},
		{"log", `{"op":"log","args":[{"value":2.718281828459045}]}`, 1},
		{"log10", `{"op":"log10","args":[{"value":1000}]}`, 3},
		{"exp", `{"op":"exp","args":[{"value":0}]}`, 1},
		{"sin", `{"op":"sin","args":[{"value":0}]}`, 0},
		{"cos", `{"op":"cos","args":[{"value":0}]}`, 1},
		{"tan", `{"op":"tan","args":[{"value":0}]}`, 0},
		{"max", `{"op":"max","args":[{"value":1},{"value":9},{"value":4}]}`, 9},
		{"min", `{"op":"min","args":[{"value":1},{"value":9},{"value":4}]}`, 1},
		{"sum", `{"op":"sum","args":[{"value":1},{"value":2},{"value":3}]}`, 6},
		{"sum single", `{"op":"sum","args":[{"value":5}]}`, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(mustParse(t, tt.src), nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluateDivisionByZero(t *testing.T) {
	expr := mustParse(t, `{"op":"divide","args":[{"field":"x"},{"value":0}]}`)
	_, err := Evaluate(expr, map[string]float64{"x": 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestEvaluateUnknownField(t *testing.T) {
	expr := mustParse(t, `{"field":"missing"}`)
	_, err := Evaluate(expr, map[string]float64{})
	require.Error(t, err)
	var fieldErr *UnknownFieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "missing", fieldErr.Field)
}

func TestEvaluateUnknownOperator(t *testing.T) {
	expr := mustParse(t, `{"op":"average","args":[{"value":1},{"value":2}]}`)
	_, err := Evaluate(expr, nil)
	var opErr *UnknownOperatorError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "average", opErr.Op)
}

func TestEvaluateArity(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"binary with one arg", `{"op":"add","args":[{"value":1}]}`},
		{"binary with three args", `{"op":"divide","args":[{"value":1},{"value":2},{"value":3}]}`},
		{"binary with no args", `{"op":"multiply"}`},
		{"sqrt with two args", `{"op":"sqrt","args":[{"value":4},{"value":9}]}`},
		{"max with no args", `{"op":"max","args":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(mustParse(t, tt.src), nil)
			var arityErr *ArityError
			require.True(t, errors.As(err, &arityErr), "got %v", err)
		})
	}
}

func TestEvaluateErrorPropagatesFromNestedArg(t *testing.T) {
	expr := mustParse(t, `{"op":"add","args":[{"value":1},{"op":"divide","args":[{"value":1},{"value":0}]}]}`)
	_, err := Evaluate(expr, nil)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestEvaluateNonZeroDivisorNotTrapped(t *testing.T) {
	// The explicit zero check must not reject small but non-zero divisors.
	expr := mustParse(t, `{"op":"divide","args":[{"value":1},{"value":1e-12}]}`)
	got, err := Evaluate(expr, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1e12, got, 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"plain field", `{"field":"total_assets"}`, true},
		{"nested formula", `{"op":"divide","args":[{"field":"total_liabilities"},{"field":"total_assets"}]}`, true},
		{"unknown operator", `{"op":"median","args":[{"value":1}]}`, false},
		{"bad arity", `{"op":"add","args":[{"value":1}]}`, false},
		{"literal only", `{"value":3.14}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(mustParse(t, tt.src)))
		})
	}
}

func TestValidatePassesWhereRealDataFails(t *testing.T) {
	// Validation substitutes 1.0 for fields, so a divide that only fails on a
	// real zero denominator still validates.
	src := `{"op":"divide","args":[{"field":"net_income"},{"field":"total_equity"}]}`
	expr := mustParse(t, src)
	assert.True(t, Validate(expr))

	_, err := Evaluate(expr, map[string]float64{"net_income": 5, "total_equity": 0})
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestValidateJSON(t *testing.T) {
	assert.True(t, ValidateJSON([]byte(`{"op":"add","args":[{"value":1},{"value":2}]}`)))
	assert.False(t, ValidateJSON([]byte(`{"neither":"shape"}`)))
	assert.False(t, ValidateJSON([]byte(`not json`)))
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	got, err := Evaluate(mustParse(t, `{"op":"round","args":[{"value":-2.5}]}`), nil)
	require.NoError(t, err)
	assert.Equal(t, -3.0, got)
}
