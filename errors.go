package epistasis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carbocation/epistasis/hwfreq"
)

// InvalidMAFError re-exports the frequency engine's MAF validation error so
// the whole error taxonomy is visible from this package.
type InvalidMAFError = hwfreq.InvalidMAFError

// MalformedModelError reports a structural problem with a model definition:
// a genotype count that is not a power of 3, inconsistent genotype labels, or
// an expression referencing an unrecognized symbol. It is raised at
// construction time, before any solving.
type MalformedModelError struct {
	ModelName string
	Cause     string
}

func (e *MalformedModelError) Error() string {
	name := e.ModelName
	if name == "" {
		name = "model"
	}
	return fmt.Sprintf("malformed model %q: %s", name, e.Cause)
}

// UnsolvableModelError reports that no assignment of the model's free
// parameters satisfies the requested target while keeping every penetrance
// within [0, 1]. It carries the attempted statistic, target, and MAFs so the
// failing query can be reproduced.
type UnsolvableModelError struct {
	ModelName string
	Statistic string // "prevalence" or "heritability", the fixed statistic
	Target    decimal.Decimal
	MAFs      []decimal.Decimal
	Cause     string
	Equation  string
}

func (e *UnsolvableModelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model %q has no solution for %s = %s with MAFs %s",
		e.ModelName, e.Statistic, e.Target, formatMAFs(e.MAFs))
	if e.Cause != "" {
		fmt.Fprintf(&b, ": %s", e.Cause)
	}
	if e.Equation != "" {
		fmt.Fprintf(&b, " (equation: %s)", e.Equation)
	}
	return b.String()
}

// NonConvergingSolutionError reports that root finding exhausted its
// iteration budget without converging. It is a solver failure, never
// silently approximated.
type NonConvergingSolutionError struct {
	ModelName  string
	Statistic  string
	Target     decimal.Decimal
	MAFs       []decimal.Decimal
	Iterations int
}

func (e *NonConvergingSolutionError) Error() string {
	return fmt.Sprintf("solving model %q for %s = %s with MAFs %s did not converge within %d iterations",
		e.ModelName, e.Statistic, e.Target, formatMAFs(e.MAFs), e.Iterations)
}

// AccuracySolvingError reports that the statistics recomputed from the
// materialized numeric table disagree with the solved values beyond the
// model's tolerance. It guards against silent precision loss; a solve that
// produced a table can still fail this way.
type AccuracySolvingError struct {
	ModelName string
	Statistic string
	Delta     decimal.Decimal
	Tolerance decimal.Decimal
}

func (e *AccuracySolvingError) Error() string {
	return fmt.Sprintf("model %q: recomputed %s deviates from target by %s, beyond tolerance %s",
		e.ModelName, e.Statistic, e.Delta, e.Tolerance)
}

func formatMAFs(mafs []decimal.Decimal) string {
	parts := make([]string, len(mafs))
	for i, m := range mafs {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
