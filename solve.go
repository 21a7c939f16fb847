package epistasis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/carbocation/epistasis/expr"
	"github.com/carbocation/epistasis/hwfreq"
)

const (
	// Bracketing scans the free parameter over 10^bracketMinExp..10^bracketMaxExp.
	bracketMinExp = -12
	bracketMaxExp = 12

	// maxBisectionIterations bounds root finding. 240 halvings of a 25-decade
	// bracket resolve far below the reporting precision; a root that has not
	// converged by then never will.
	maxBisectionIterations = 240
)

// bisectionRelTol is the relative interval width at which root finding stops:
// well below the 32 significant digits carried by the decimal arithmetic.
var bisectionRelTol = decimal.New(1, -30)

// Statistic names the two population statistics a solve can fix or maximize.
type Statistic string

const (
	Prevalence   Statistic = "prevalence"
	Heritability Statistic = "heritability"
)

// SolveOptions adjusts a solve request. The zero value is the default
// behavior: verification always runs.
type SolveOptions struct {
	// SkipVerification disables the independent recomputation check on the
	// materialized table. The achieved statistics are still reported.
	SkipVerification bool
}

// MaxPrevalenceTable solves the model for the table of maximum prevalence at
// the given heritability: the free parameters are set so heritability equals
// its target while the largest penetrance sits on the [0, 1] boundary.
// opts may be nil for defaults.
func (m *Model) MaxPrevalenceTable(mafs []decimal.Decimal, heritability decimal.Decimal, opts *SolveOptions) (*PTable, error) {
	return m.solve(Heritability, heritability, mafs, opts)
}

// MaxHeritabilityTable solves the model for the table of maximum heritability
// at the given prevalence. opts may be nil for defaults.
func (m *Model) MaxHeritabilityTable(mafs []decimal.Decimal, prevalence decimal.Decimal, opts *SolveOptions) (*PTable, error) {
	return m.solve(Prevalence, prevalence, mafs, opts)
}

// solve finds parameter values satisfying {fixed statistic = target, largest
// penetrance = 1} and materializes the resulting table. The boundary
// condition is what maximizes the complementary statistic: both statistics
// grow with the overall risk scale until the largest penetrance reaches 1.
func (m *Model) solve(fixed Statistic, target decimal.Decimal, mafs []decimal.Decimal, opts *SolveOptions) (*PTable, error) {
	if opts == nil {
		opts = &SolveOptions{}
	}

	if len(mafs) != m.order {
		return nil, &InvalidMAFError{Index: -1, Cause: fmt.Sprintf("model has order %d but %d MAFs were provided", m.order, len(mafs))}
	}

	one := decimal.NewFromInt(1)
	if target.Sign() <= 0 || target.Cmp(one) >= 0 {
		return nil, &UnsolvableModelError{
			ModelName: m.name,
			Statistic: string(fixed),
			Target:    target,
			MAFs:      mafs,
			Cause:     "no non-degenerate penetrance table attains a target outside the open interval (0, 1)",
		}
	}

	if len(m.variables) != 2 {
		return nil, &UnsolvableModelError{
			ModelName: m.name,
			Statistic: string(fixed),
			Target:    target,
			MAFs:      mafs,
			Cause:     fmt.Sprintf("solving requires exactly two free parameters, model has %d", len(m.variables)),
		}
	}

	freqs, err := hwfreq.Joint(mafs)
	if err != nil {
		return nil, err
	}

	var fixedExpr *expr.Expr
	if fixed == Prevalence {
		fixedExpr, err = PrevalenceExpr(m.penetrances, freqs)
	} else {
		fixedExpr, err = HeritabilityExpr(m.penetrances, freqs)
	}
	if err != nil {
		return nil, err
	}

	boundary, err := m.maxPenetrance()
	if err != nil {
		return nil, err
	}

	// Eliminate whichever parameter the boundary equation is linear in; the
	// other one remains free for root finding. Supported model families keep
	// the scale parameter linear (penetrances like x*g(y)).
	elim, free := m.variables[0], m.variables[1]
	if d, ok := boundary.Degree(elim); !ok || d != 1 {
		if d, ok := boundary.Degree(free); ok && d == 1 {
			elim, free = free, elim
		} else {
			return nil, &UnsolvableModelError{
				ModelName: m.name,
				Statistic: string(fixed),
				Target:    target,
				MAFs:      mafs,
				Cause:     "the boundary penetrance is not linear in either parameter; this model shape is unsupported",
				Equation:  boundary.String() + " = 1",
			}
		}
	}

	// residualAt evaluates fixed(elim(t), t) - target, where elim(t) comes in
	// closed form from the boundary condition a(t)*elim + b(t) = 1. Points
	// where the boundary is singular or the eliminated parameter would be
	// non-positive are reported as invalid rather than evaluated.
	zero := decimal.Zero
	residualAt := func(t decimal.Decimal) (elimVal, residual decimal.Decimal, valid bool) {
		env := map[string]decimal.Decimal{elim: zero, free: t}
		b, err := boundary.Eval(env)
		if err != nil {
			return zero, zero, false
		}
		env[elim] = one
		a1, err := boundary.Eval(env)
		if err != nil {
			return zero, zero, false
		}
		a := a1.Sub(b)
		if a.IsZero() {
			return zero, zero, false
		}

		elimVal = one.Sub(b).Div(a)
		if elimVal.Sign() <= 0 {
			return zero, zero, false
		}

		env[elim] = elimVal
		got, err := fixedExpr.Eval(env)
		if err != nil {
			return zero, zero, false
		}

		return elimVal, got.Sub(target), true
	}

	freeVal, elimVal, err := m.findRoot(residualAt, fixed, target, mafs, fixedExpr)
	if err != nil {
		return nil, err
	}

	values := map[string]decimal.Decimal{elim: elimVal, free: freeVal}
	table, err := m.materialize(values, freqs, fixed, target, mafs)
	if err != nil {
		return nil, err
	}

	if !opts.SkipVerification {
		if err := table.verify(fixed, target, m.tolerance); err != nil {
			return nil, err
		}
	}

	return table, nil
}

// findRoot locates the free-parameter value at which the residual crosses
// zero: a geometric scan to bracket a sign change, then bisection. The
// residual is monotone for the supported model families, so the first sign
// change brackets the root.
func (m *Model) findRoot(
	residualAt func(decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool),
	fixed Statistic,
	target decimal.Decimal,
	mafs []decimal.Decimal,
	fixedExpr *expr.Expr,
) (freeVal, elimVal decimal.Decimal, err error) {
	unsolvable := func(cause string) error {
		return &UnsolvableModelError{
			ModelName: m.name,
			Statistic: string(fixed),
			Target:    target,
			MAFs:      mafs,
			Cause:     cause,
			Equation:  fixedExpr.String() + " = " + target.String(),
		}
	}

	var lo, hi, resLo decimal.Decimal
	haveLo, bracketed := false, false
	for e := bracketMinExp; e <= bracketMaxExp; e++ {
		t := decimal.New(1, int32(e))
		ev, res, ok := residualAt(t)
		if !ok {
			haveLo = false
			continue
		}

		if res.IsZero() {
			return t, ev, nil
		}

		if haveLo && res.Sign() != resLo.Sign() {
			hi = t
			bracketed = true
			break
		}

		lo, resLo, haveLo = t, res, true
	}
	if !bracketed {
		return freeVal, elimVal, unsolvable("no parameter value satisfies the boundary and target constraints")
	}

	two := decimal.NewFromInt(2)
	for i := 0; i < maxBisectionIterations; i++ {
		mid := lo.Add(hi).Div(two)
		ev, res, ok := residualAt(mid)
		if !ok {
			return freeVal, elimVal, unsolvable("root finding hit a singular point inside the bracket")
		}

		if res.IsZero() || hi.Sub(lo).Cmp(mid.Abs().Mul(bisectionRelTol)) <= 0 {
			return mid, ev, nil
		}

		if res.Sign() == resLo.Sign() {
			lo, resLo = mid, res
		} else {
			hi = mid
		}
	}

	return freeVal, elimVal, &NonConvergingSolutionError{
		ModelName:  m.name,
		Statistic:  string(fixed),
		Target:     target,
		MAFs:       mafs,
		Iterations: maxBisectionIterations,
	}
}
