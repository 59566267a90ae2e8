package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/btraven00/tinkuy/internal/resolver"
	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/spf13/cobra"
)

var (
	resolveWorkers    int
	resolveBatchSize  int
	resolveBatchDelay float64
	resolveRetryDelay float64
	resolveMaxRetries int
	resolveTimeout    int
	resolveCacheFile  string
	resolveInputFile  string
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <accession...>",
	Short: "Resolve accessions to their BioProject and GEO/ArrayExpress identifiers",
	Long: `Resolve looks up the BioProject (PRJNA/PRJEB) and GEO/ArrayExpress
(GSE/E-MTAB) identifiers cross-referenced by SRA accessions, querying NCBI
for SRP/SRX/SRR identifiers and EBI for ERP/ERX/ERR identifiers.

Lookups are batched, rate limited, and cached. A failed lookup never aborts
the run: unresolvable accessions yield empty results.

Set the NCBI_API_KEY environment variable to raise the NCBI request rate
from 3 to 10 requests per second.

Examples:
  tinkuy resolve ERP127673 SRP324458
  tinkuy resolve --input ids.txt --cache xref-cache.json -o csv
  tinkuy resolve --workers 4 --batch-size 10 SRP324458`,
	Args: cobra.ArbitraryArgs,
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	ids := args

	if resolveInputFile != "" {
		fromFile, err := readAccessionFile(resolveInputFile)
		if err != nil {
			return err
		}

		ids = append(ids, fromFile...)
	}

	if len(ids) == 0 {
		return fmt.Errorf("no accessions given (pass them as arguments or via --input)")
	}

	r := resolver.New(resolverConfig())

	results, err := r.Resolve(context.Background(), ids)
	if err != nil {
		return fmt.Errorf("failed to resolve accessions: %w", err)
	}

	return r.OutputResults(ids, results)
}

// resolverConfig assembles the resolver configuration shared by the
// resolve and annotate commands.
func resolverConfig() resolver.Config {
	return resolver.Config{
		Workers:        resolveWorkers,
		BatchSize:      resolveBatchSize,
		BatchDelay:     time.Duration(resolveBatchDelay * float64(time.Second)),
		RetryDelay:     time.Duration(resolveRetryDelay * float64(time.Second)),
		MaxRetries:     resolveMaxRetries,
		TimeoutSeconds: resolveTimeout,
		OutputFormat:   output,
		CacheFile:      resolveCacheFile,
		NCBIAPIKey:     ncbiAPIKey(),
		Verbose:        verbose && !quiet,
	}
}

// ncbiAPIKey reads the NCBI API key from the environment.
func ncbiAPIKey() string {
	apiKey := os.Getenv("NCBI_API_KEY")
	if apiKey == "" && !quiet {
		fmt.Fprintf(os.Stderr, "No NCBI API key found. Set NCBI_API_KEY environment variable for higher rate limits\n")
	}

	return apiKey
}

// readAccessionFile extracts accession IDs from a text file ("-" for
// stdin), one or more per line; anything that does not look like an
// accession is ignored.
func readAccessionFile(path string) ([]string, error) {
	var (
		content []byte
		err     error
	)

	if path == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ids := accessions.ExtractFromText(string(content))
	if len(ids) == 0 {
		return nil, fmt.Errorf("no accessions recognized in %s", path)
	}

	return ids, nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().IntVar(&resolveWorkers, "workers", 2, "number of parallel lookup workers")
	resolveCmd.Flags().IntVar(&resolveBatchSize, "batch-size", 5, "number of accessions per batch")
	resolveCmd.Flags().Float64Var(&resolveBatchDelay, "batch-delay", 2.0, "delay in seconds between batches")
	resolveCmd.Flags().Float64Var(&resolveRetryDelay, "retry-delay", 5.0, "delay in seconds between retry passes")
	resolveCmd.Flags().IntVar(&resolveMaxRetries, "max-retries", 3, "retry passes for failed lookups")
	resolveCmd.Flags().IntVarP(&resolveTimeout, "timeout", "t", 30, "timeout in seconds for HTTP requests")
	resolveCmd.Flags().StringVar(&resolveCacheFile, "cache", "", "JSON file caching resolved mappings between runs")
	resolveCmd.Flags().StringVar(&resolveInputFile, "input", "", "file to read accessions from (\"-\" for stdin)")
}
