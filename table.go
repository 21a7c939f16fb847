package epistasis

import (
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

// SolvedVariable is one solved free parameter of a penetrance table.
type SolvedVariable struct {
	Name  string
	Value decimal.Decimal
}

// PTable is a fully numeric penetrance table: the result of a successful
// solve. It is immutable except for its name, and its genotype ordering
// matches the model it came from, which is the contract printers and writers
// rely on.
type PTable struct {
	modelName    string
	order        int
	genotypes    []string
	penetrances  []decimal.Decimal
	variables    []SolvedVariable
	freqs        []decimal.Decimal
	prevalence   decimal.Decimal
	heritability decimal.Decimal
}

// materialize substitutes solved parameter values into every genotype's
// expression, range-checks the resulting penetrances, and recomputes the
// achieved statistics directly from the numeric values.
func (m *Model) materialize(values map[string]decimal.Decimal, freqs []decimal.Decimal, fixed Statistic, target decimal.Decimal, mafs []decimal.Decimal) (*PTable, error) {
	one := decimal.NewFromInt(1)

	penetrances := make([]decimal.Decimal, len(m.penetrances))
	for i, p := range m.penetrances {
		v, err := p.Subs(values).Eval(nil)
		if err != nil {
			return nil, err
		}

		// Rounding may push a boundary penetrance a hair outside [0, 1];
		// anything beyond the model's tolerance means the constraint truly
		// cannot hold.
		switch {
		case v.Sign() < 0:
			if v.Abs().Cmp(m.tolerance) > 0 {
				return nil, &UnsolvableModelError{
					ModelName: m.name,
					Statistic: string(fixed),
					Target:    target,
					MAFs:      mafs,
					Cause:     fmt.Sprintf("penetrance for genotype %s solves to %s, below 0", m.genotypes[i], v),
				}
			}
			v = decimal.Zero
		case v.Cmp(one) > 0:
			if v.Sub(one).Cmp(m.tolerance) > 0 {
				return nil, &UnsolvableModelError{
					ModelName: m.name,
					Statistic: string(fixed),
					Target:    target,
					MAFs:      mafs,
					Cause:     fmt.Sprintf("penetrance for genotype %s solves to %s, above 1", m.genotypes[i], v),
				}
			}
			v = one
		}
		penetrances[i] = v
	}

	prevalence, err := PrevalenceOf(penetrances, freqs)
	if err != nil {
		return nil, err
	}
	heritability, err := HeritabilityOf(penetrances, freqs)
	if err != nil {
		return nil, err
	}

	variables := make([]SolvedVariable, len(m.variables))
	for i, name := range m.variables {
		variables[i] = SolvedVariable{Name: name, Value: values[name]}
	}

	return &PTable{
		modelName:    m.name,
		order:        m.order,
		genotypes:    m.Genotypes(),
		penetrances:  penetrances,
		variables:    variables,
		freqs:        freqs,
		prevalence:   prevalence,
		heritability: heritability,
	}, nil
}

// verify compares the statistics recomputed from the materialized numeric
// table against the solve target. The recomputation is independent of the
// symbolic solve path, so agreement here rules out silent precision loss.
func (t *PTable) verify(fixed Statistic, target, tolerance decimal.Decimal) error {
	achieved := t.prevalence
	if fixed == Heritability {
		achieved = t.heritability
	}

	if delta := achieved.Sub(target).Abs(); delta.Cmp(tolerance) > 0 {
		return &AccuracySolvingError{
			ModelName: t.modelName,
			Statistic: string(fixed),
			Delta:     delta,
			Tolerance: tolerance,
		}
	}

	one := decimal.NewFromInt(1)
	max := t.penetrances[0]
	for _, p := range t.penetrances[1:] {
		if p.Cmp(max) > 0 {
			max = p
		}
	}
	if delta := max.Sub(one).Abs(); delta.Cmp(tolerance) > 0 {
		return &AccuracySolvingError{
			ModelName: t.modelName,
			Statistic: "maximum penetrance",
			Delta:     delta,
			Tolerance: tolerance,
		}
	}

	return nil
}

// ModelName returns the identifier inherited from the model.
func (t *PTable) ModelName() string { return t.modelName }

// SetModelName relabels the table. Like Model.SetName, this exists only for
// identification of output.
func (t *PTable) SetModelName(name string) { t.modelName = name }

// Order returns the number of loci.
func (t *PTable) Order() int { return t.order }

// Genotypes returns the ordered genotype labels.
func (t *PTable) Genotypes() []string {
	out := make([]string, len(t.genotypes))
	copy(out, t.genotypes)
	return out
}

// Penetrances returns the ordered numeric penetrance values, parallel to
// Genotypes and each within [0, 1].
func (t *PTable) Penetrances() []decimal.Decimal {
	out := make([]decimal.Decimal, len(t.penetrances))
	copy(out, t.penetrances)
	return out
}

// Variables returns the solved free-parameter values, in the model's
// parameter order.
func (t *PTable) Variables() []SolvedVariable {
	out := make([]SolvedVariable, len(t.variables))
	copy(out, t.variables)
	return out
}

// Prevalence returns the achieved prevalence, recomputed from the numeric
// table.
func (t *PTable) Prevalence() decimal.Decimal { return t.prevalence }

// Heritability returns the achieved heritability, recomputed from the
// numeric table.
func (t *PTable) Heritability() decimal.Decimal { return t.heritability }

// tableRow is the CSV shape of one genotype's penetrance.
type tableRow struct {
	Genotype   string `csv:"genotype"`
	Penetrance string `csv:"penetrance"`
}

// WriteCSV writes the table as genotype,penetrance rows without a header,
// matching the plain-CSV table format downstream tools consume.
func (t *PTable) WriteCSV(w io.Writer) error {
	rows := make([]tableRow, len(t.genotypes))
	for i, g := range t.genotypes {
		rows[i] = tableRow{Genotype: g, Penetrance: t.penetrances[i].String()}
	}

	if err := gocsv.MarshalWithoutHeaders(&rows, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// Text renders the table in the same genotype,penetrance form as WriteCSV.
func (t *PTable) Text() string {
	var b strings.Builder
	for i, g := range t.genotypes {
		fmt.Fprintf(&b, "%s,%s\n", g, t.penetrances[i].String())
	}
	return b.String()
}

// Summary reports the minimum, maximum, and mean penetrance of the table as
// float64s, for quick at-a-glance reporting of a solve.
func (t *PTable) Summary() (min, max, mean float64, err error) {
	values := make([]float64, len(t.penetrances))
	for i, p := range t.penetrances {
		values[i] = p.InexactFloat64()
	}

	if min, err = stats.Min(values); err != nil {
		return 0, 0, 0, pfx.Err(err)
	}
	if max, err = stats.Max(values); err != nil {
		return 0, 0, 0, pfx.Err(err)
	}
	if mean, err = stats.Mean(values); err != nil {
		return 0, 0, 0, pfx.Err(err)
	}

	return min, max, mean, nil
}
