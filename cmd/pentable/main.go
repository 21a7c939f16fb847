// pentable computes a numeric penetrance table for an epistasis model: given
// a model CSV (genotype,expression rows), per-locus minor allele frequencies,
// and a target heritability or prevalence, it solves the model and writes the
// table as CSV.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carbocation/epistasis"
)

func main() {
	var modelPath, mafList, heritability, prevalence, outPath, name string
	var force, noCheck bool
	flag.StringVar(&modelPath, "model", "", "Path to the model CSV file. Each row is genotype,expression; lines starting with # are ignored.")
	flag.StringVar(&mafList, "mafs", "", "Comma-separated minor allele frequencies, one per locus, each in (0,1).")
	flag.StringVar(&heritability, "heritability", "", "Target heritability in (0,1). Solves for the table of maximum prevalence. Mutually exclusive with -prevalence.")
	flag.StringVar(&prevalence, "prevalence", "", "Target prevalence in (0,1). Solves for the table of maximum heritability. Mutually exclusive with -heritability.")
	flag.StringVar(&outPath, "out", "", "Output CSV path. If blank, the table is printed to stdout.")
	flag.StringVar(&name, "name", "", "Optional model name. Defaults to the model file's basename.")
	flag.BoolVar(&force, "force", false, "Overwrite the output file if it already exists.")
	flag.BoolVar(&noCheck, "nocheck", false, "Skip the post-solve verification of the materialized table.")
	flag.Parse()

	if modelPath == "" || mafList == "" {
		flag.PrintDefaults()
		log.Fatalln("Both -model and -mafs are required")
	}
	if (heritability == "") == (prevalence == "") {
		flag.PrintDefaults()
		log.Fatalln("Exactly one of -heritability and -prevalence is required")
	}

	model, err := LoadModelCSV(modelPath)
	if err != nil {
		log.Fatalln(err)
	}
	if name != "" {
		model.SetName(name)
	}

	mafs, err := parseMAFs(mafList)
	if err != nil {
		log.Fatalln(err)
	}

	opts := &epistasis.SolveOptions{SkipVerification: noCheck}

	var table *epistasis.PTable
	if heritability != "" {
		target, err := decimal.NewFromString(heritability)
		if err != nil {
			log.Fatalf("Bad -heritability value %q: %v\n", heritability, err)
		}
		table, err = model.MaxPrevalenceTable(mafs, target, opts)
		if err != nil {
			log.Fatalln(err)
		}
	} else {
		target, err := decimal.NewFromString(prevalence)
		if err != nil {
			log.Fatalf("Bad -prevalence value %q: %v\n", prevalence, err)
		}
		table, err = model.MaxHeritabilityTable(mafs, target, opts)
		if err != nil {
			log.Fatalln(err)
		}
	}

	for _, v := range table.Variables() {
		log.Printf("Solved %s = %s\n", v.Name, v.Value)
	}
	log.Printf("Achieved prevalence %s, heritability %s\n", table.Prevalence(), table.Heritability())
	if min, max, mean, err := table.Summary(); err == nil {
		log.Printf("Penetrance range [%.6g, %.6g], mean %.6g\n", min, max, mean)
	}

	if outPath == "" {
		fmt.Print(table.Text())
		return
	}

	if _, err := os.Stat(outPath); err == nil && !force {
		log.Fatalf("Output file %s already exists (use -force to overwrite)\n", outPath)
	}

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalln(err)
	}
	defer out.Close()

	if err := table.WriteCSV(out); err != nil {
		log.Fatalln(err)
	}
}

func parseMAFs(list string) ([]decimal.Decimal, error) {
	parts := strings.Split(list, ",")
	mafs := make([]decimal.Decimal, len(parts))
	for i, part := range parts {
		maf, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad MAF %q: %w", part, err)
		}
		mafs[i] = maf
	}
	return mafs, nil
}
