package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/carbocation/epistasis"
)

// modelRow is one line of a model CSV file.
type modelRow struct {
	Genotype   string `csv:"genotype"`
	Expression string `csv:"expression"`
}

// LoadModelCSV reads an epistasis model from its plain-CSV representation:
// one genotype,expression pair per row, no header, with blank lines and lines
// starting with # ignored. The model is named after the file's basename
// without extension.
func LoadModelCSV(path string) (*epistasis.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	var rows []modelRow
	if err := gocsv.UnmarshalCSVWithoutHeaders(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing model file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("model file %s has no content", path)
	}

	genotypes := make([]string, len(rows))
	expressions := make([]string, len(rows))
	for i, row := range rows {
		genotypes[i] = strings.TrimSpace(row.Genotype)
		expressions[i] = strings.TrimSpace(row.Expression)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	model, err := epistasis.NewModel(name, genotypes, expressions)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}

	return model, nil
}
