package pricelist

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// Переменные, доступные формулам прайс-листа.
const (
	VarUnitPrice = "unit_price"
	VarCostPrice = "cost_price"
	VarQuantity  = "quantity"
	VarCustomer  = "customer"
)

var (
	// ErrInvalidFormula: формула не компилируется или возвращает не число.
	ErrInvalidFormula = errors.New("invalid price list formula")
	// ErrNegativePrice: формула вернула отрицательную или нечисловую цену.
	ErrNegativePrice = errors.New("price list formula produced negative price")
)

// Inputs: значения переменных для вычисления формулы.
type Inputs struct {
	UnitPrice decimal.Decimal
	CostPrice decimal.Decimal
	Quantity  decimal.Decimal
	Customer  string
}

// Engine компилирует и кеширует CEL-формулы прайс-листов.
type Engine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEngine создаёт окружение CEL с переменными прайс-листа.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarUnitPrice, cel.DoubleType),
		cel.Variable(VarCostPrice, cel.DoubleType),
		cel.Variable(VarQuantity, cel.DoubleType),
		cel.Variable(VarCustomer, cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Engine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile проверяет формулу и кладёт скомпилированную программу в кеш.
func (e *Engine) Compile(formula string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[formula]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(promoteIntLiterals(formula))
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidFormula, formula, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return nil, fmt.Errorf("%w %q: result type %s, want double", ErrInvalidFormula, formula, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidFormula, formula, err)
	}

	e.mu.Lock()
	e.programs[formula] = prg
	e.mu.Unlock()
	return prg, nil
}

// Evaluate вычисляет формулу для заданных входных значений.
func (e *Engine) Evaluate(formula string, in Inputs) (decimal.Decimal, error) {
	prg, err := e.Compile(formula)
	if err != nil {
		return decimal.Zero, err
	}

	out, _, err := prg.Eval(map[string]any{
		VarUnitPrice: in.UnitPrice.InexactFloat64(),
		VarCostPrice: in.CostPrice.InexactFloat64(),
		VarQuantity:  in.Quantity.InexactFloat64(),
		VarCustomer:  in.Customer,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("evaluate formula %q: %w", formula, err)
	}

	value, ok := out.Value().(float64)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w %q: unexpected result %T", ErrInvalidFormula, formula, out.Value())
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q = %v", ErrNegativePrice, formula, value)
	}

	return decimal.NewFromFloat(value), nil
}

// Check компилирует формулу и возвращает только ошибку.
func (e *Engine) Check(formula string) error {
	_, err := e.Compile(formula)
	return err
}

// CachedFormulas возвращает число скомпилированных формул.
func (e *Engine) CachedFormulas() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// promoteIntLiterals дописывает ".0" к целым литералам вне строк, чтобы
// формулы вида "(unit_price * 0.0) + 5" не падали на смешении int и double.
func promoteIntLiterals(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 8)

	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case isDigit(c) && (i == 0 || !isLiteralPart(src[i-1])):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			b.WriteString(src[i:j])
			if j == len(src) || !isLiteralPart(src[j]) {
				b.WriteString(".0")
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLiteralPart(c byte) bool {
	return isDigit(c) || c == '.' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
