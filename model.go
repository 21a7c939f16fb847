// Package epistasis computes fully numeric penetrance tables for epistasis
// models: symbolic per-genotype risk expressions over two free parameters,
// solved against a target heritability or prevalence under Hardy-Weinberg
// genotype frequencies.
package epistasis

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/carbocation/epistasis/expr"
)

// maxOrder is bounded by the single-letter-per-locus genotype labeling
// (AABbCc...); far beyond any tractable model anyway.
const maxOrder = 26

// Model is an immutable epistasis model: one symbolic risk expression per
// genotype combination, over at most two free parameters. Only the name may
// be changed after construction, for identification purposes.
type Model struct {
	name        string
	order       int
	genotypes   []string
	penetrances []*expr.Expr
	variables   []string
	tolerance   decimal.Decimal
}

// NewModel builds a model from parallel ordered sequences of genotype labels
// and penetrance expression strings. Labels must be the canonical genotype
// sequence for the model's order (see GenotypeLabels); expressions may
// reference at most two distinct parameters, consistently across the model.
// Structural problems yield a *MalformedModelError.
func NewModel(name string, genotypes, expressions []string) (*Model, error) {
	if len(genotypes) == 0 {
		return nil, &MalformedModelError{ModelName: name, Cause: "model has no genotypes"}
	}
	if len(genotypes) != len(expressions) {
		return nil, &MalformedModelError{
			ModelName: name,
			Cause:     fmt.Sprintf("%d genotypes but %d expressions", len(genotypes), len(expressions)),
		}
	}

	labelLen := len(genotypes[0])
	for _, g := range genotypes {
		if len(g) != labelLen {
			return nil, &MalformedModelError{
				ModelName: name,
				Cause:     fmt.Sprintf("genotype %q has length %d, expected %d: all genotypes must have the same order", g, len(g), labelLen),
			}
		}
	}
	if labelLen == 0 || labelLen%2 != 0 {
		return nil, &MalformedModelError{ModelName: name, Cause: fmt.Sprintf("genotype label length %d is not a pair per locus", labelLen)}
	}

	order := labelLen / 2
	if order > maxOrder {
		return nil, &MalformedModelError{ModelName: name, Cause: fmt.Sprintf("order %d exceeds the supported maximum of %d loci", order, maxOrder)}
	}
	if want := pow3(order); len(genotypes) != want {
		return nil, &MalformedModelError{
			ModelName: name,
			Cause:     fmt.Sprintf("%d genotypes is not 3^order (expected %d for order %d)", len(genotypes), want, order),
		}
	}

	// Genotype ordering is part of the output contract: consumers index the
	// table by position, so the input must already be in canonical order.
	canonical := GenotypeLabels(order)
	for i, g := range genotypes {
		if g != canonical[i] {
			return nil, &MalformedModelError{
				ModelName: name,
				Cause:     fmt.Sprintf("genotype %q at position %d, expected %q: genotypes must follow the canonical ordering", g, i, canonical[i]),
			}
		}
	}

	penetrances := make([]*expr.Expr, len(expressions))
	var variables []string
	seen := make(map[string]bool)
	for i, raw := range expressions {
		e, err := expr.Parse(raw)
		if err != nil {
			return nil, &MalformedModelError{ModelName: name, Cause: fmt.Sprintf("bad penetrance expression %q: %v", raw, err)}
		}
		penetrances[i] = e

		for _, v := range e.Vars() {
			if seen[v] {
				continue
			}
			seen[v] = true
			variables = append(variables, v)
			if len(variables) > 2 {
				return nil, &MalformedModelError{
					ModelName: name,
					Cause:     fmt.Sprintf("unrecognized symbol %q in %q: at most two parameters are supported", v, raw),
				}
			}
		}
	}
	if len(variables) == 0 {
		return nil, &MalformedModelError{ModelName: name, Cause: "model expressions reference no free parameters"}
	}

	return &Model{
		name:        name,
		order:       order,
		genotypes:   genotypes,
		penetrances: penetrances,
		variables:   variables,
		tolerance:   toleranceForOrder(order),
	}, nil
}

// NewModelFromMap builds a model from a genotype-to-expression mapping. The
// mapping must cover exactly the canonical genotype set for its order;
// entries are arranged into canonical order before construction.
func NewModelFromMap(name string, entries map[string]string) (*Model, error) {
	if len(entries) == 0 {
		return nil, &MalformedModelError{ModelName: name, Cause: "model has no genotypes"}
	}

	genotypes := make([]string, 0, len(entries))
	for g := range entries {
		genotypes = append(genotypes, g)
	}
	sort.Strings(genotypes)

	order := len(genotypes[0]) / 2
	if canonical := GenotypeLabels(order); order >= 1 && order <= maxOrder && len(entries) == len(canonical) {
		// Capital-major labels sort into canonical order; rebuild explicitly
		// anyway so a mismatched key set is reported, not silently reordered.
		allPresent := true
		for _, g := range canonical {
			if _, ok := entries[g]; !ok {
				allPresent = false
				break
			}
		}
		if allPresent {
			genotypes = canonical
		}
	}

	expressions := make([]string, len(genotypes))
	for i, g := range genotypes {
		expressions[i] = entries[g]
	}

	return NewModel(name, genotypes, expressions)
}

// GenotypeLabels returns the canonical ordered genotype labels for a model of
// the given order: per locus the states homozygous major (e.g. "AA"),
// heterozygous ("Aa"), homozygous minor ("aa"), with the first locus varying
// slowest. Locus letters run a, b, c, ... in order.
func GenotypeLabels(order int) []string {
	if order < 1 || order > maxOrder {
		return nil
	}

	labels := []string{""}
	for locus := 0; locus < order; locus++ {
		upper := string(rune('A' + locus))
		lower := string(rune('a' + locus))
		states := []string{upper + upper, upper + lower, lower + lower}

		next := make([]string, 0, len(labels)*3)
		for _, prefix := range labels {
			for _, s := range states {
				next = append(next, prefix+s)
			}
		}
		labels = next
	}

	return labels
}

// Name returns the model's identifier, which may be empty.
func (m *Model) Name() string { return m.name }

// SetName changes the model's identifier. This is the only mutation a model
// permits and exists purely for labeling output.
func (m *Model) SetName(name string) { m.name = name }

// Order returns the number of loci.
func (m *Model) Order() int { return m.order }

// Genotypes returns the ordered genotype labels.
func (m *Model) Genotypes() []string {
	out := make([]string, len(m.genotypes))
	copy(out, m.genotypes)
	return out
}

// Penetrances returns the ordered symbolic penetrance expressions, parallel
// to Genotypes.
func (m *Model) Penetrances() []*expr.Expr {
	out := make([]*expr.Expr, len(m.penetrances))
	copy(out, m.penetrances)
	return out
}

// Variables returns the model's free parameters in order of first appearance.
func (m *Model) Variables() []string {
	out := make([]string, len(m.variables))
	copy(out, m.variables)
	return out
}

// ToleranceDelta returns the solution error the model tolerates during
// verification, scaled to its order: deeper models accumulate more rounding
// in their high-power frequency products.
func (m *Model) ToleranceDelta() decimal.Decimal { return m.tolerance }

// maxPenetrance returns the expression that dominates all others for any
// positive parameter assignment. The supported model families are monotone
// non-decreasing in both parameters, so evaluating every expression at
// parameter value 1 and keeping the largest identifies it.
func (m *Model) maxPenetrance() (*expr.Expr, error) {
	env := make(map[string]decimal.Decimal, len(m.variables))
	for _, v := range m.variables {
		env[v] = decimal.NewFromInt(1)
	}

	var best *expr.Expr
	var bestVal decimal.Decimal
	for _, p := range m.penetrances {
		v, err := p.Eval(env)
		if err != nil {
			return nil, err
		}
		if best == nil || v.Cmp(bestVal) > 0 {
			best, bestVal = p, v
		}
	}

	return best, nil
}

func toleranceForOrder(order int) decimal.Decimal {
	// 1e-16 widened tenfold per locus.
	return decimal.New(1, int32(order-16))
}

func pow3(n int) int {
	out := 1
	for i := 0; i < n; i++ {
		out *= 3
	}
	return out
}
