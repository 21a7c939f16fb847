package epistasis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/carbocation/epistasis/hwfreq"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// dosageModel builds the standard multiplicative model of the given order:
// each genotype's risk is x*(1+y)^d where d is the genotype's total minor
// allele dosage.
func dosageModel(t *testing.T, order int) *Model {
	t.Helper()

	genotypes := GenotypeLabels(order)
	expressions := make([]string, len(genotypes))
	for i, g := range genotypes {
		// Minor allele dosage is the number of lowercase letters in the label.
		dosage := 0
		for _, r := range g {
			if r >= 'a' && r <= 'z' {
				dosage++
			}
		}
		if dosage == 0 {
			expressions[i] = "x"
		} else {
			expressions[i] = fmt.Sprintf("x*(1+y)^%d", dosage)
		}
	}

	m, err := NewModel(fmt.Sprintf("multiplicative%d", order), genotypes, expressions)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func within(a, b decimal.Decimal, tolerance string) bool {
	return a.Sub(b).Abs().Cmp(d(tolerance)) <= 0
}

// Single-locus model {x, x, x*(1+y)} at MAF 0.4 solved for maximum prevalence
// at heritability 0.2. The exact solution has y = 25/16.
func TestMaxPrevalenceSingleLocus(t *testing.T) {
	m, err := NewModel("additive1", []string{"AA", "Aa", "aa"}, []string{"x", "x", "x*(1+y)"})
	if err != nil {
		t.Fatal(err)
	}

	table, err := m.MaxPrevalenceTable([]decimal.Decimal{d("0.4")}, d("0.2"), nil)
	if err != nil {
		t.Fatal(err)
	}

	one := decimal.NewFromInt(1)
	for i, p := range table.Penetrances() {
		if p.Sign() < 0 || p.Cmp(one) > 0 {
			t.Errorf("penetrance %d = %s outside [0, 1]", i, p)
		}
	}

	if !within(table.Heritability(), d("0.2"), "1e-15") {
		t.Errorf("achieved heritability %s, want 0.2", table.Heritability())
	}
	if !within(table.Prevalence(), d("0.48780487804878048780487804878"), "1e-20") {
		t.Errorf("achieved prevalence %s, want ~20/41", table.Prevalence())
	}

	pens := table.Penetrances()
	if !within(pens[0], d("0.39024390243902439024390243902"), "1e-20") {
		t.Errorf("penetrance[AA] = %s, want ~16/41", pens[0])
	}
	if !within(pens[2], one, "1e-25") {
		t.Errorf("penetrance[aa] = %s, want 1", pens[2])
	}

	for _, v := range table.Variables() {
		switch v.Name {
		case "x":
			if !within(v.Value, d("0.39024390243902439024390243902"), "1e-20") {
				t.Errorf("solved x = %s, want ~16/41", v.Value)
			}
		case "y":
			if !within(v.Value, d("1.5625"), "1e-20") {
				t.Errorf("solved y = %s, want 25/16", v.Value)
			}
		}
	}
}

// Order-3 multiplicative model at MAFs [0.4, 0.4, 0.4] and heritability 0.85:
// the documented reference solution has prevalence ~ 0.0048.
func TestMaxPrevalenceOrderThree(t *testing.T) {
	m := dosageModel(t, 3)

	mafs := []decimal.Decimal{d("0.4"), d("0.4"), d("0.4")}
	table, err := m.MaxPrevalenceTable(mafs, d("0.85"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !within(table.Prevalence(), d("0.0048"), "1e-4") {
		t.Errorf("achieved prevalence %s, want ~0.0048", table.Prevalence())
	}
	if !within(table.Prevalence(), d("0.004829667958157"), "1e-12") {
		t.Errorf("achieved prevalence %s, want ~0.004829667958157", table.Prevalence())
	}
	if !within(table.Heritability(), d("0.85"), "1e-13") {
		t.Errorf("achieved heritability %s, want 0.85", table.Heritability())
	}

	if got := len(table.Penetrances()); got != 27 {
		t.Fatalf("got %d penetrances, want 27", got)
	}
}

func TestMaxHeritabilitySingleLocus(t *testing.T) {
	m, err := NewModel("additive1", []string{"AA", "Aa", "aa"}, []string{"x", "x", "x*(1+y)"})
	if err != nil {
		t.Fatal(err)
	}

	table, err := m.MaxHeritabilityTable([]decimal.Decimal{d("0.4")}, d("0.5"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !within(table.Prevalence(), d("0.5"), "1e-15") {
		t.Errorf("achieved prevalence %s, want 0.5", table.Prevalence())
	}
	if !within(table.Heritability(), d("0.19047619047619047619"), "1e-18") {
		t.Errorf("achieved heritability %s, want ~4/21", table.Heritability())
	}

	for _, v := range table.Variables() {
		switch v.Name {
		case "x":
			if !within(v.Value, d("0.40476190476190476190"), "1e-18") {
				t.Errorf("solved x = %s, want ~17/42", v.Value)
			}
		case "y":
			if !within(v.Value, d("1.47058823529411764705"), "1e-18") {
				t.Errorf("solved y = %s, want ~25/17", v.Value)
			}
		}
	}
}

func TestMaxHeritabilityOrderTwo(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.25"), d("0.25")}

	table, err := m.MaxHeritabilityTable(mafs, d("0.1"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !within(table.Prevalence(), d("0.1"), "1e-14") {
		t.Errorf("achieved prevalence %s, want 0.1", table.Prevalence())
	}
	if !within(table.Heritability(), d("0.120756404195470"), "1e-13") {
		t.Errorf("achieved heritability %s, want ~0.120756404195470", table.Heritability())
	}
}

func TestMaxPrevalenceOrderTwo(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.25"), d("0.25")}

	table, err := m.MaxPrevalenceTable(mafs, d("0.1"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !within(table.Heritability(), d("0.1"), "1e-14") {
		t.Errorf("achieved heritability %s, want 0.1", table.Heritability())
	}
	if !within(table.Prevalence(), d("0.165579432257357"), "1e-13") {
		t.Errorf("achieved prevalence %s, want ~0.165579432257357", table.Prevalence())
	}
}

// The two statistics trade off: raising the heritability target lowers the
// attainable maximum prevalence, and raising the prevalence target lowers
// the attainable maximum heritability.
func TestStatisticTradeoff(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.25"), d("0.25")}

	var prevPrevalence decimal.Decimal
	for i, h := range []string{"0.05", "0.1", "0.2"} {
		table, err := m.MaxPrevalenceTable(mafs, d(h), nil)
		if err != nil {
			t.Fatalf("heritability %s: %v", h, err)
		}
		if i > 0 && table.Prevalence().Cmp(prevPrevalence) > 0 {
			t.Errorf("max prevalence rose from %s to %s as heritability target rose to %s", prevPrevalence, table.Prevalence(), h)
		}
		prevPrevalence = table.Prevalence()
	}

	var prevHeritability decimal.Decimal
	for i, p := range []string{"0.1", "0.2", "0.4"} {
		table, err := m.MaxHeritabilityTable(mafs, d(p), nil)
		if err != nil {
			t.Fatalf("prevalence %s: %v", p, err)
		}
		if i > 0 && table.Heritability().Cmp(prevHeritability) > 0 {
			t.Errorf("max heritability rose from %s to %s as prevalence target rose to %s", prevHeritability, table.Heritability(), p)
		}
		prevHeritability = table.Heritability()
	}
}

// Recomputing the statistics from the materialized table reproduces the
// target: verification is idempotent.
func TestRoundTripVerification(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.3"), d("0.2")}

	table, err := m.MaxPrevalenceTable(mafs, d("0.4"), nil)
	if err != nil {
		t.Fatal(err)
	}

	freqs, err := hwfreq.Joint(mafs)
	if err != nil {
		t.Fatal(err)
	}

	h, err := HeritabilityOf(table.Penetrances(), freqs)
	if err != nil {
		t.Fatal(err)
	}
	if !within(h, d("0.4"), "1e-14") {
		t.Errorf("recomputed heritability %s, want 0.4", h)
	}

	p, err := PrevalenceOf(table.Penetrances(), freqs)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(table.Prevalence()) {
		t.Errorf("recomputed prevalence %s differs from reported %s", p, table.Prevalence())
	}
}

// Cross-check the decimal pipeline against a plain float64 recomputation of
// both statistics from the solved table.
func TestFloat64CrossCheck(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.25"), d("0.25")}

	table, err := m.MaxPrevalenceTable(mafs, d("0.1"), nil)
	if err != nil {
		t.Fatal(err)
	}

	freqs, err := hwfreq.Joint(mafs)
	if err != nil {
		t.Fatal(err)
	}

	pens := make([]float64, len(freqs))
	squares := make([]float64, len(freqs))
	weights := make([]float64, len(freqs))
	for i, p := range table.Penetrances() {
		pens[i] = p.InexactFloat64()
		squares[i] = pens[i] * pens[i]
		weights[i] = freqs[i].InexactFloat64()
	}

	prevalence := stat.Mean(pens, weights)
	variance := stat.Mean(squares, weights) - prevalence*prevalence
	heritability := variance / (prevalence * (1 - prevalence))

	if diff := prevalence - table.Prevalence().InexactFloat64(); diff > 1e-12 || diff < -1e-12 {
		t.Errorf("float64 prevalence %v differs from decimal %s", prevalence, table.Prevalence())
	}
	if diff := heritability - 0.1; diff > 1e-10 || diff < -1e-10 {
		t.Errorf("float64 heritability %v, want 0.1", heritability)
	}
}

func TestDegenerateTargetRejected(t *testing.T) {
	m := dosageModel(t, 1)
	mafs := []decimal.Decimal{d("0.4")}

	for _, target := range []string{"0", "1", "-0.5", "1.5"} {
		for _, solve := range []func() (*PTable, error){
			func() (*PTable, error) { return m.MaxPrevalenceTable(mafs, d(target), nil) },
			func() (*PTable, error) { return m.MaxHeritabilityTable(mafs, d(target), nil) },
		} {
			_, err := solve()
			if err == nil {
				t.Errorf("target %s: expected error, got none", target)
				continue
			}

			var umErr *UnsolvableModelError
			if !errors.As(err, &umErr) {
				t.Errorf("target %s: got %T (%v), want *UnsolvableModelError", target, err, err)
			}
		}
	}
}

// A MAF of exactly zero fails before any solving is attempted.
func TestZeroMAFRejected(t *testing.T) {
	m := dosageModel(t, 1)

	_, err := m.MaxPrevalenceTable([]decimal.Decimal{d("0")}, d("0.2"), nil)
	if err == nil {
		t.Fatal("expected error, got none")
	}

	var imErr *InvalidMAFError
	if !errors.As(err, &imErr) {
		t.Errorf("got %T (%v), want *InvalidMAFError", err, err)
	}
}

func TestMAFLengthMismatch(t *testing.T) {
	m := dosageModel(t, 2)

	_, err := m.MaxPrevalenceTable([]decimal.Decimal{d("0.4")}, d("0.2"), nil)
	if err == nil {
		t.Fatal("expected error, got none")
	}

	var imErr *InvalidMAFError
	if !errors.As(err, &imErr) {
		t.Errorf("got %T (%v), want *InvalidMAFError", err, err)
	}
}

// The single-locus model {x, x, x*(1+y)} at MAF 0.4 cannot reach prevalence
// 0.1: even with the boundary penetrance at 1, prevalence stays above the
// homozygous-minor frequency of 0.16.
func TestUnattainableTarget(t *testing.T) {
	m, err := NewModel("additive1", []string{"AA", "Aa", "aa"}, []string{"x", "x", "x*(1+y)"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.MaxHeritabilityTable([]decimal.Decimal{d("0.4")}, d("0.1"), nil)
	if err == nil {
		t.Fatal("expected error, got none")
	}

	var umErr *UnsolvableModelError
	if !errors.As(err, &umErr) {
		t.Fatalf("got %T (%v), want *UnsolvableModelError", err, err)
	}
	if umErr.Statistic != string(Prevalence) {
		t.Errorf("error reports statistic %q, want prevalence", umErr.Statistic)
	}
	if len(umErr.MAFs) != 1 || !umErr.MAFs[0].Equal(d("0.4")) {
		t.Errorf("error should carry the attempted MAFs: %v", umErr.MAFs)
	}
}

// A model whose boundary penetrance is quadratic in both parameters falls
// outside the supported monotone-linear families and is reported rather than
// guessed at.
func TestNonLinearBoundaryRejected(t *testing.T) {
	m, err := NewModel("quadratic", []string{"AA", "Aa", "aa"}, []string{"x^2", "x^2", "x^2*(1+y)^2"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.MaxPrevalenceTable([]decimal.Decimal{d("0.4")}, d("0.2"), nil)
	if err == nil {
		t.Fatal("expected error, got none")
	}

	var umErr *UnsolvableModelError
	if !errors.As(err, &umErr) {
		t.Errorf("got %T (%v), want *UnsolvableModelError", err, err)
	}
}

func TestSkipVerification(t *testing.T) {
	m := dosageModel(t, 1)

	table, err := m.MaxPrevalenceTable([]decimal.Decimal{d("0.4")}, d("0.2"), &SolveOptions{SkipVerification: true})
	if err != nil {
		t.Fatal(err)
	}

	// Achieved statistics are still reported even without verification.
	if table.Heritability().IsZero() || table.Prevalence().IsZero() {
		t.Error("achieved statistics missing with verification skipped")
	}
}

// Solves against the same immutable model are independent; run a batch of
// them concurrently to let the race detector confirm it.
func TestConcurrentSolves(t *testing.T) {
	m := dosageModel(t, 2)
	mafs := []decimal.Decimal{d("0.25"), d("0.25")}
	targets := []string{"0.05", "0.1", "0.15", "0.2"}

	done := make(chan error, len(targets))
	for _, target := range targets {
		go func(target string) {
			_, err := m.MaxPrevalenceTable(mafs, d(target), nil)
			done <- err
		}(target)
	}

	for range targets {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}
