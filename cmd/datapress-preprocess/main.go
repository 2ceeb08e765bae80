// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// datapress-preprocess cleans the raw air quality export and writes
// the model-ready dataset. It is the native equivalent of the Python
// preprocessing step and produces the same shape of output: missing
// data dropped, outliers clipped, the Date column expanded into
// calendar features, categories encoded and every column standardized.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/datapress/lib/dataset"
	"github.com/bureau-foundation/datapress/lib/process"
	"github.com/bureau-foundation/datapress/lib/version"
)

const (
	rawDatasetName = "air_quality_raw.csv"
	outputName     = "air_quality_preprocessing.csv"
	sampleRows     = 5
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")

	var (
		inputPath  string
		outputPath string
		separator  string
	)
	flag.StringVar(&inputPath, "input", "", "raw dataset path (default: search the working directory, its parent and grandparent for "+rawDatasetName+")")
	flag.StringVar(&outputPath, "output", outputName, "preprocessed dataset path")
	flag.StringVar(&separator, "separator", ";", "input column separator")
	flag.Parse()

	if showVersion {
		fmt.Printf("datapress-preprocess %s\n", version.Info())
		return nil
	}

	if utf8.RuneCountInString(separator) != 1 {
		return fmt.Errorf("--separator must be a single character, got %q", separator)
	}
	separatorRune, _ := utf8.DecodeRuneInString(separator)

	if inputPath == "" {
		found, err := findRawDataset()
		if err != nil {
			return err
		}
		inputPath = found
	}

	fmt.Println("Starting preprocessing...")

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inputPath, err)
	}
	defer input.Close()

	table, err := dataset.ReadCSV(input, separatorRune)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}
	summary := dataset.Preprocess(table)

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	output, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	if err := table.WriteCSV(output); err != nil {
		output.Close()
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", outputPath, err)
	}

	absolute, err := filepath.Abs(outputPath)
	if err != nil {
		absolute = outputPath
	}
	fmt.Printf("File successfully saved to: %s\n", absolute)

	fmt.Fprintf(os.Stderr, "preprocessed %d rows from %d (%d missing, %d duplicate, %d cells clipped)\n",
		summary.OutputRows,
		summary.InputRows,
		summary.MissingRowsDropped,
		summary.DuplicatesDropped,
		summary.CellsClipped,
	)

	fmt.Println()
	fmt.Println("Preprocessing complete. Sample of preprocessed data:")
	printSample(table)
	return nil
}

// findRawDataset looks for the raw export in the working directory,
// its parent and its grandparent, in that order.
func findRawDataset() (string, error) {
	candidates := []string{
		rawDatasetName,
		filepath.Join("..", rawDatasetName),
		filepath.Join("..", "..", rawDatasetName),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in the working directory, its parent or grandparent (use --input)", rawDatasetName)
}

// printSample prints the header and the first few rows of the table.
func printSample(table *dataset.Table) {
	fmt.Println(strings.Join(table.Header, ","))
	for i, row := range table.Rows {
		if i == sampleRows {
			break
		}
		fmt.Println(strings.Join(row, ","))
	}
}
