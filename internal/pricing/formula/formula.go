// Package formula evaluates tariff pricing expressions.
//
// Expressions are plain arithmetic over named variables. Only a fixed set of
// single-argument functions is available and text that could reach anything
// beyond arithmetic is rejected before parsing.
package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/casbin/govaluate"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsafeFormula = errors.New("unsafe_formula")
	ErrInvalidResult = errors.New("invalid_formula_result")
)

var blacklist = []string{"eval", "exec", "system", "shell_exec", "passthru"}

var allowedChars = regexp.MustCompile(`^[\d\s\+\-\*\/\(\)\.\w]+$`)

// UnsafeFormulaError reports why an expression was refused.
type UnsafeFormulaError struct {
	Expression string
	Token      string
	Reason     string
}

func (e *UnsafeFormulaError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("unsafe formula %q: %s %q", e.Expression, e.Reason, e.Token)
	}
	return fmt.Sprintf("unsafe formula %q: %s", e.Expression, e.Reason)
}

func (e *UnsafeFormulaError) Is(target error) bool {
	return target == ErrUnsafeFormula
}

// CheckSafety rejects blacklisted words (case-insensitive) and any character
// outside digits, whitespace, arithmetic operators, parentheses, dots and
// identifier characters.
func CheckSafety(expression string) error {
	lower := strings.ToLower(expression)
	for _, word := range blacklist {
		if strings.Contains(lower, word) {
			return &UnsafeFormulaError{Expression: expression, Token: word, Reason: "forbidden token"}
		}
	}
	if !allowedChars.MatchString(expression) {
		return &UnsafeFormulaError{Expression: expression, Reason: "invalid characters"}
	}
	return nil
}

var functions = map[string]govaluate.ExpressionFunction{
	"abs":   unary("abs", math.Abs),
	"ceil":  unary("ceil", math.Ceil),
	"floor": unary("floor", math.Floor),
	"round": unary("round", math.Round),
	"sqrt":  unary("sqrt", math.Sqrt),
}

func unary(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%s expects a number", name)
		}
		return fn(v), nil
	}
}

// Expression is a parsed, safety-checked formula.
type Expression struct {
	source string
	expr   *govaluate.EvaluableExpression
}

func Parse(expression string) (*Expression, error) {
	expression = strings.TrimSpace(expression)
	if err := CheckSafety(expression); err != nil {
		return nil, err
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, functions)
	if err != nil {
		return nil, &UnsafeFormulaError{Expression: expression, Reason: err.Error()}
	}
	return &Expression{source: expression, expr: expr}, nil
}

func (e *Expression) String() string { return e.source }

// Variables lists the identifiers the expression reads, sorted.
func (e *Expression) Variables() []string {
	vars := e.expr.Vars()
	sort.Strings(vars)
	return vars
}

// Evaluate runs the expression. Every variable it reads must be present in
// vars.
func (e *Expression) Evaluate(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	params := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		params[k] = v.InexactFloat64()
	}
	for _, name := range e.expr.Vars() {
		if _, ok := params[name]; !ok {
			return decimal.Zero, fmt.Errorf("formula %q: unknown variable %q", e.source, name)
		}
	}

	raw, err := e.expr.Evaluate(params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("formula %q: %w", e.source, err)
	}
	result, ok := raw.(float64)
	if !ok || math.IsNaN(result) || math.IsInf(result, 0) {
		return decimal.Zero, fmt.Errorf("%w: formula %q produced %v", ErrInvalidResult, e.source, raw)
	}
	return decimal.NewFromFloat(result), nil
}

// Evaluate parses and evaluates expression in one step.
func Evaluate(expression string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := Parse(expression)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Evaluate(vars)
}
