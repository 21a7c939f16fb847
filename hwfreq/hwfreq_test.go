package hwfreq

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProportions(t *testing.T) {
	props, err := Proportions(d("0.4"))
	if err != nil {
		t.Fatal(err)
	}

	for i, want := range []string{"0.36", "0.48", "0.16"} {
		if !props[i].Equal(d(want)) {
			t.Errorf("Proportions(0.4)[%d]: got %s, want %s", i, props[i], want)
		}
	}
}

func TestProportionsRejectsDegenerateMAF(t *testing.T) {
	for _, maf := range []string{"0", "1", "-0.1", "1.5"} {
		_, err := Proportions(d(maf))
		if err == nil {
			t.Errorf("Proportions(%s): expected error, got none", maf)
			continue
		}

		var imErr *InvalidMAFError
		if !errors.As(err, &imErr) {
			t.Errorf("Proportions(%s): got %T, want *InvalidMAFError", maf, err)
		}
	}
}

func TestJointOrderAndValues(t *testing.T) {
	// Two loci with distinct MAFs so position mix-ups are visible. The first
	// locus varies slowest: index = 3*state(a) + state(b).
	freqs, err := Joint([]decimal.Decimal{d("0.4"), d("0.25")})
	if err != nil {
		t.Fatal(err)
	}

	if len(freqs) != 9 {
		t.Fatalf("Joint of 2 loci: got %d frequencies, want 9", len(freqs))
	}

	for _, v := range []struct {
		index int
		want  string
	}{
		{0, "0.2025"},    // AABB: 0.36 * 0.5625
		{1, "0.135"},     // AABb: 0.36 * 0.375
		{2, "0.0225"},    // AAbb: 0.36 * 0.0625
		{3, "0.27"},      // AaBB: 0.48 * 0.5625
		{8, "0.01"},      // aabb: 0.16 * 0.0625
	} {
		if !freqs[v.index].Equal(d(v.want)) {
			t.Errorf("Joint[%d]: got %s, want %s", v.index, freqs[v.index], v.want)
		}
	}
}

func TestJointSumsToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	tolerance := decimal.New(1, -9)

	for _, mafs := range [][]decimal.Decimal{
		{d("0.5")},
		{d("0.01"), d("0.99")},
		{d("0.4"), d("0.4"), d("0.4")},
		{d("0.1"), d("0.2"), d("0.3"), d("0.25")},
	} {
		freqs, err := Joint(mafs)
		if err != nil {
			t.Fatalf("Joint(%v): %v", mafs, err)
		}

		sum := decimal.Zero
		for _, f := range freqs {
			sum = sum.Add(f)
		}
		if sum.Sub(one).Abs().Cmp(tolerance) > 0 {
			t.Errorf("Joint(%v) sums to %s, want 1 within 1e-9", mafs, sum)
		}
	}
}

func TestJointReportsLocusIndex(t *testing.T) {
	_, err := Joint([]decimal.Decimal{d("0.4"), d("0")})

	var imErr *InvalidMAFError
	if !errors.As(err, &imErr) {
		t.Fatalf("got %T, want *InvalidMAFError", err)
	}
	if imErr.Index != 1 {
		t.Errorf("error reports locus %d, want 1", imErr.Index)
	}
}

func TestJointEmpty(t *testing.T) {
	if _, err := Joint(nil); err == nil {
		t.Error("Joint(nil): expected error, got none")
	}
}
