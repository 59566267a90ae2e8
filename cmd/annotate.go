package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/btraven00/tinkuy/internal/resolver"
	"github.com/btraven00/tinkuy/internal/tabular"
	"github.com/spf13/cobra"
)

var (
	annotateColumn     string
	annotatePrjColumn  string
	annotateGeoColumn  string
	annotateOutputFile string
	annotateSaveEvery  int
	annotateOverwrite  bool
	annotateParallel   bool
)

// annotateCmd represents the annotate command
var annotateCmd = &cobra.Command{
	Use:   "annotate <input.csv>",
	Short: "Merge resolved cross-references into a CSV dataset",
	Long: `Annotate reads a CSV file, resolves the accessions found in the given
column, and writes the dataset back with BioProject and GEO/ArrayExpress
columns added (or filled in where empty).

Progress is saved periodically to <output>.partial, so an interrupted run
loses at most one chunk of lookups. Rows whose output columns are already
populated are skipped.

Examples:
  tinkuy annotate studies.csv --column study_accession
  tinkuy annotate studies.csv --column srx_accession --save-every 20 --output annotated.csv
  tinkuy annotate studies.csv --column study_accession --parallel --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	inputFile := args[0]

	outputFile := annotateOutputFile
	if outputFile == "" {
		outputFile = defaultOutputName(inputFile)
	}

	table, err := tabular.Read(inputFile)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("Loaded %d rows from %s\n", table.Len(), inputFile)
	}

	cols := tabular.Columns{
		Accession:  annotateColumn,
		BioProject: annotatePrjColumn,
		GEO:        annotateGeoColumn,
	}

	pending, err := table.PendingAccessions(cols)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		if !quiet {
			fmt.Println("All rows already annotated, nothing to resolve")
		}

		return table.Write(outputFile)
	}

	if !quiet {
		fmt.Printf("Resolving %d unique accessions...\n", len(pending))
	}

	config := resolverConfig()
	if !annotateParallel {
		config.Workers = 1
	}

	r := resolver.New(config)

	partialFile := outputFile + ".partial"
	resolved := 0

	// Resolve in chunks so intermediate progress survives interruption.
	for _, chunk := range resolver.Batches(pending, annotateSaveEvery) {
		results, err := r.Resolve(context.Background(), chunk)
		if err != nil {
			return fmt.Errorf("failed to resolve accessions: %w", err)
		}

		if _, err := table.Merge(results, cols, annotateOverwrite); err != nil {
			return err
		}

		resolved += len(chunk)

		if resolved < len(pending) {
			if err := table.Write(partialFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save intermediate results: %v\n", err)
			} else if !quiet {
				fmt.Printf("Processed %d/%d accessions (intermediate save: %s)\n",
					resolved, len(pending), partialFile)
			}
		}
	}

	if err := table.Write(outputFile); err != nil {
		return err
	}

	// The partial file is superseded by the final output.
	_ = os.Remove(partialFile)

	if !quiet {
		fmt.Printf("Done! Result saved to %s\n", outputFile)
	}

	return nil
}

// defaultOutputName derives the output filename from the input filename.
func defaultOutputName(inputFile string) string {
	if strings.HasSuffix(inputFile, ".csv") {
		return strings.TrimSuffix(inputFile, ".csv") + "_with_xrefs.csv"
	}

	return inputFile + "_with_xrefs.csv"
}

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringVar(&annotateColumn, "column", "study_accession", "name of the column containing accessions")
	annotateCmd.Flags().StringVar(&annotatePrjColumn, "bioproject-column", "bioproject_id", "name of the BioProject output column")
	annotateCmd.Flags().StringVar(&annotateGeoColumn, "geo-column", "geo_id", "name of the GEO/ArrayExpress output column")
	annotateCmd.Flags().StringVar(&annotateOutputFile, "output", "", "output CSV file (default: input with _with_xrefs suffix)")
	annotateCmd.Flags().IntVar(&annotateSaveEvery, "save-every", 25, "accessions to resolve between intermediate saves")
	annotateCmd.Flags().BoolVar(&annotateOverwrite, "overwrite", false, "overwrite already populated output cells")
	annotateCmd.Flags().BoolVar(&annotateParallel, "parallel", true, "use parallel lookups (disable for strictly sequential requests)")

	annotateCmd.Flags().IntVar(&resolveWorkers, "workers", 2, "number of parallel lookup workers")
	annotateCmd.Flags().IntVar(&resolveBatchSize, "batch-size", 5, "number of accessions per batch")
	annotateCmd.Flags().Float64Var(&resolveBatchDelay, "batch-delay", 2.0, "delay in seconds between batches")
	annotateCmd.Flags().Float64Var(&resolveRetryDelay, "retry-delay", 5.0, "delay in seconds between retry passes")
	annotateCmd.Flags().IntVar(&resolveMaxRetries, "max-retries", 3, "retry passes for failed lookups")
	annotateCmd.Flags().IntVarP(&resolveTimeout, "timeout", "t", 30, "timeout in seconds for HTTP requests")
	annotateCmd.Flags().StringVar(&resolveCacheFile, "cache", "", "JSON file caching resolved mappings between runs")
}
