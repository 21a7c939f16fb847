// Package expr provides a small closed-form expression tree over the free
// parameters of an epistasis model. It covers exactly the operator set that
// penetrance definitions use: constants, named parameters, addition,
// multiplication, and integer powers. Negative powers are permitted so that
// ratio statistics (heritability) can be expressed without a division node.
package expr

import (
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/shopspring/decimal"
)

func init() {
	// Penetrance solving carries >=32 significant digits end to end. The only
	// inexact decimal operation is division, so its precision is raised far
	// above the reporting precision to absorb cancellation in deep models.
	if decimal.DivisionPrecision < 64 {
		decimal.DivisionPrecision = 64
	}
}

type op int

const (
	opConst op = iota
	opVar
	opAdd
	opMul
	opPow
)

// Expr is one node of an expression tree. Expressions are immutable once
// built; all combinators return fresh nodes and never modify their inputs.
type Expr struct {
	op   op
	val  decimal.Decimal // opConst
	name string          // opVar
	args []*Expr         // opAdd, opMul
	base *Expr           // opPow
	exp  int             // opPow
}

// Const builds a constant node.
func Const(v decimal.Decimal) *Expr {
	return &Expr{op: opConst, val: v}
}

// ConstInt builds a constant node from an integer.
func ConstInt(v int64) *Expr {
	return &Expr{op: opConst, val: decimal.NewFromInt(v)}
}

// Var builds a parameter reference.
func Var(name string) *Expr {
	return &Expr{op: opVar, name: name}
}

// Add builds the sum of its arguments.
func Add(args ...*Expr) *Expr {
	if len(args) == 1 {
		return args[0]
	}
	return &Expr{op: opAdd, args: args}
}

// Mul builds the product of its arguments.
func Mul(args ...*Expr) *Expr {
	if len(args) == 1 {
		return args[0]
	}
	return &Expr{op: opMul, args: args}
}

// Sub builds a-b as a + (-1)*b, keeping the operator set minimal.
func Sub(a, b *Expr) *Expr {
	return Add(a, Mul(ConstInt(-1), b))
}

// Neg builds (-1)*a.
func Neg(a *Expr) *Expr {
	return Mul(ConstInt(-1), a)
}

// Pow builds base raised to an integer power. A negative exponent denotes the
// reciprocal of the positive power.
func Pow(base *Expr, exp int) *Expr {
	return &Expr{op: opPow, base: base, exp: exp}
}

// Eval computes the numeric value of the expression with every parameter
// bound by env. Referencing a parameter absent from env is an error, as is a
// zero base raised to a negative power.
func (e *Expr) Eval(env map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch e.op {
	case opConst:
		return e.val, nil
	case opVar:
		v, ok := env[e.name]
		if !ok {
			return decimal.Decimal{}, pfx.Err(fmt.Errorf("unbound parameter %q", e.name))
		}
		return v, nil
	case opAdd:
		sum := decimal.Zero
		for _, a := range e.args {
			v, err := a.Eval(env)
			if err != nil {
				return decimal.Decimal{}, err
			}
			sum = sum.Add(v)
		}
		return sum, nil
	case opMul:
		prod := decimal.NewFromInt(1)
		for _, a := range e.args {
			v, err := a.Eval(env)
			if err != nil {
				return decimal.Decimal{}, err
			}
			prod = prod.Mul(v)
		}
		return prod, nil
	case opPow:
		v, err := e.base.Eval(env)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return powInt(v, e.exp)
	}

	return decimal.Decimal{}, pfx.Err(fmt.Errorf("unknown expression node %d", e.op))
}

// Subs returns a copy of the expression with every parameter present in env
// replaced by a constant. Parameters absent from env are left symbolic.
func (e *Expr) Subs(env map[string]decimal.Decimal) *Expr {
	switch e.op {
	case opConst:
		return e
	case opVar:
		if v, ok := env[e.name]; ok {
			return Const(v)
		}
		return e
	case opAdd, opMul:
		args := make([]*Expr, len(e.args))
		for i, a := range e.args {
			args[i] = a.Subs(env)
		}
		return &Expr{op: e.op, args: args}
	case opPow:
		return &Expr{op: opPow, base: e.base.Subs(env), exp: e.exp}
	}

	return e
}

// Vars lists the distinct parameters referenced by the expression, in order
// of first appearance. The order matters: model files may name their
// parameters freely, and the first-seen parameter is treated as the baseline.
func (e *Expr) Vars() []string {
	seen := make(map[string]bool)
	return e.collectVars(seen, nil)
}

func (e *Expr) collectVars(seen map[string]bool, out []string) []string {
	switch e.op {
	case opVar:
		if !seen[e.name] {
			seen[e.name] = true
			out = append(out, e.name)
		}
	case opAdd, opMul:
		for _, a := range e.args {
			out = a.collectVars(seen, out)
		}
	case opPow:
		out = e.base.collectVars(seen, out)
	}
	return out
}

// Degree reports the polynomial degree of the expression in the named
// parameter. The second return is false when the expression is not a
// polynomial in that parameter (a negative power whose base references it).
func (e *Expr) Degree(name string) (int, bool) {
	switch e.op {
	case opConst:
		return 0, true
	case opVar:
		if e.name == name {
			return 1, true
		}
		return 0, true
	case opAdd:
		max := 0
		for _, a := range e.args {
			d, ok := a.Degree(name)
			if !ok {
				return 0, false
			}
			if d > max {
				max = d
			}
		}
		return max, true
	case opMul:
		sum := 0
		for _, a := range e.args {
			d, ok := a.Degree(name)
			if !ok {
				return 0, false
			}
			sum += d
		}
		return sum, true
	case opPow:
		d, ok := e.base.Degree(name)
		if !ok {
			return 0, false
		}
		if d == 0 {
			return 0, true
		}
		if e.exp < 0 {
			return 0, false
		}
		return d * e.exp, true
	}

	return 0, false
}

// String renders the expression with explicit operators and parentheses, so
// diagnostics can quote the exact equation being solved.
func (e *Expr) String() string {
	switch e.op {
	case opConst:
		return e.val.String()
	case opVar:
		return e.name
	case opAdd:
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, " + ") + ")"
	case opMul:
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.String()
		}
		return strings.Join(parts, "*")
	case opPow:
		return fmt.Sprintf("%s^%d", e.base.String(), e.exp)
	}

	return "?"
}

// powInt raises v to an integer power by squaring. Multiplication is exact in
// decimal arithmetic, so only the negative-exponent reciprocal rounds.
func powInt(v decimal.Decimal, exp int) (decimal.Decimal, error) {
	if exp == 0 {
		return decimal.NewFromInt(1), nil
	}

	n := exp
	if n < 0 {
		if v.IsZero() {
			return decimal.Decimal{}, pfx.Err(fmt.Errorf("zero raised to negative power %d", exp))
		}
		n = -n
	}

	result := decimal.NewFromInt(1)
	square := v
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(square)
		}
		square = square.Mul(square)
		n >>= 1
	}

	if exp < 0 {
		return decimal.NewFromInt(1).Div(result), nil
	}

	return result, nil
}
