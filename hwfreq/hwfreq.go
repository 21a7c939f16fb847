// Package hwfreq derives genotype frequency vectors from minor allele
// frequencies under Hardy-Weinberg equilibrium. Frequencies are carried as
// exact decimals so that downstream penetrance solving does not lose
// precision to the high powers that deep multi-locus models produce.
package hwfreq

import (
	"errors"
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/shopspring/decimal"
)

// sumTolerance bounds how far a joint frequency vector may drift from summing
// to exactly 1. With exact decimal products the sum is exact, so exceeding
// this is an internal fault, never a user error.
var sumTolerance = decimal.New(1, -9)

// InvalidMAFError reports a minor allele frequency outside the open interval
// (0, 1), or a MAF vector of the wrong length. A MAF of exactly 0 or 1
// degenerates the locus and is rejected before any solving is attempted.
type InvalidMAFError struct {
	Index int // position in the MAF vector, or -1 for a vector-level problem
	MAF   decimal.Decimal
	Cause string
}

func (e *InvalidMAFError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid MAF vector: %s", e.Cause)
	}
	return fmt.Sprintf("invalid MAF %s at locus %d: %s", e.MAF, e.Index, e.Cause)
}

// Proportions computes the three Hardy-Weinberg zygosity proportions for one
// locus: homozygous major (1-maf)^2, heterozygous 2*maf*(1-maf), and
// homozygous minor maf^2, in that order.
func Proportions(maf decimal.Decimal) ([3]decimal.Decimal, error) {
	var out [3]decimal.Decimal

	one := decimal.NewFromInt(1)
	if maf.Sign() <= 0 || maf.Cmp(one) >= 0 {
		return out, &InvalidMAFError{Index: 0, MAF: maf, Cause: "must be in the open interval (0, 1)"}
	}

	major := one.Sub(maf)
	out[0] = major.Mul(major)
	out[1] = decimal.NewFromInt(2).Mul(major).Mul(maf)
	out[2] = maf.Mul(maf)

	return out, nil
}

// Joint computes the frequency of every multi-locus genotype combination as
// the product of per-locus Hardy-Weinberg proportions, assuming independent
// loci. The vector has 3^len(mafs) entries and follows the canonical genotype
// ordering: the first locus varies slowest.
func Joint(mafs []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(mafs) == 0 {
		return nil, &InvalidMAFError{Index: -1, Cause: "no MAFs provided"}
	}

	perLocus := make([][3]decimal.Decimal, len(mafs))
	for i, maf := range mafs {
		props, err := Proportions(maf)
		if err != nil {
			var imErr *InvalidMAFError
			if errors.As(err, &imErr) {
				imErr.Index = i
			}
			return nil, err
		}
		perLocus[i] = props
	}

	out := []decimal.Decimal{decimal.NewFromInt(1)}
	for _, props := range perLocus {
		next := make([]decimal.Decimal, 0, len(out)*3)
		for _, acc := range out {
			for _, p := range props {
				next = append(next, acc.Mul(p))
			}
		}
		out = next
	}

	sum := decimal.Zero
	for _, f := range out {
		sum = sum.Add(f)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().Cmp(sumTolerance) > 0 {
		return nil, pfx.Err(fmt.Errorf("genotype frequencies sum to %s, not 1", sum))
	}

	return out, nil
}
