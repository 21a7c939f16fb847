package epistasis

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/shopspring/decimal"

	"github.com/carbocation/epistasis/expr"
)

// PrevalenceExpr builds the symbolic prevalence of a penetrance model: the
// genotype-frequency-weighted sum of the penetrance expressions,
// sum_i freq_i * pen_i. The result stays symbolic in the model's free parameters.
func PrevalenceExpr(penetrances []*expr.Expr, freqs []decimal.Decimal) (*expr.Expr, error) {
	if len(penetrances) != len(freqs) {
		return nil, pfx.Err(fmt.Errorf("%d penetrance expressions but %d genotype frequencies", len(penetrances), len(freqs)))
	}

	terms := make([]*expr.Expr, len(penetrances))
	for i, p := range penetrances {
		terms[i] = expr.Mul(expr.Const(freqs[i]), p)
	}

	return expr.Add(terms...), nil
}

// HeritabilityExpr builds the symbolic narrow-sense heritability of a
// penetrance model:
//
//	h^2 = (sum_i freq_i * pen_i^2 - P^2) / (P * (1 - P))
//
// where P is the symbolic prevalence. The numerator is the genotype-explained
// variance of penetrance; the denominator the total phenotypic variance of a
// binary trait. The division is expressed as a power of -1 so the tree stays
// within the model operator set.
func HeritabilityExpr(penetrances []*expr.Expr, freqs []decimal.Decimal) (*expr.Expr, error) {
	if len(penetrances) != len(freqs) {
		return nil, pfx.Err(fmt.Errorf("%d penetrance expressions but %d genotype frequencies", len(penetrances), len(freqs)))
	}

	prevalence, err := PrevalenceExpr(penetrances, freqs)
	if err != nil {
		return nil, err
	}

	secondMoments := make([]*expr.Expr, len(penetrances))
	for i, p := range penetrances {
		secondMoments[i] = expr.Mul(expr.Const(freqs[i]), expr.Pow(p, 2))
	}

	variance := expr.Sub(expr.Add(secondMoments...), expr.Pow(prevalence, 2))
	denominator := expr.Pow(expr.Mul(prevalence, expr.Sub(expr.ConstInt(1), prevalence)), -1)

	return expr.Mul(variance, denominator), nil
}

// PrevalenceOf numerically recomputes prevalence from an already materialized
// penetrance vector. The verifier uses this instead of the symbolic form so
// the check is independent of the solve path.
func PrevalenceOf(penetrances, freqs []decimal.Decimal) (decimal.Decimal, error) {
	if len(penetrances) != len(freqs) {
		return decimal.Decimal{}, pfx.Err(fmt.Errorf("%d penetrances but %d genotype frequencies", len(penetrances), len(freqs)))
	}

	sum := decimal.Zero
	for i, p := range penetrances {
		sum = sum.Add(freqs[i].Mul(p))
	}

	return sum, nil
}

// HeritabilityOf numerically recomputes heritability from an already
// materialized penetrance vector.
func HeritabilityOf(penetrances, freqs []decimal.Decimal) (decimal.Decimal, error) {
	prevalence, err := PrevalenceOf(penetrances, freqs)
	if err != nil {
		return decimal.Decimal{}, err
	}

	one := decimal.NewFromInt(1)
	denom := prevalence.Mul(one.Sub(prevalence))
	if denom.IsZero() {
		return decimal.Decimal{}, pfx.Err(fmt.Errorf("degenerate prevalence %s: heritability undefined", prevalence))
	}

	secondMoment := decimal.Zero
	for i, p := range penetrances {
		secondMoment = secondMoment.Add(freqs[i].Mul(p).Mul(p))
	}
	variance := secondMoment.Sub(prevalence.Mul(prevalence))

	return variance.Div(denom), nil
}
