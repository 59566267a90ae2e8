package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/spf13/cobra"
)

// patternsCmd represents the patterns command
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the recognized accession patterns",
	Long: `The patterns command lists the accession identifier patterns tinkuy
recognizes, the archive each pattern belongs to, and example identifiers.

Examples:
  tinkuy patterns
  tinkuy patterns --output json`,
	RunE: runPatterns,
}

func runPatterns(cmd *cobra.Command, args []string) error {
	if strings.EqualFold(output, "json") {
		return outputPatternsJSON()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tARCHIVE\tPATTERN\tEXAMPLES")

	for _, p := range accessions.Patterns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.Kind, p.Archive, p.Regex.String(), strings.Join(p.Examples, ", "))
	}

	return w.Flush()
}

func outputPatternsJSON() error {
	type patternInfo struct {
		Kind        string   `json:"kind"`
		Archive     string   `json:"archive"`
		Pattern     string   `json:"pattern"`
		Description string   `json:"description"`
		Examples    []string `json:"examples"`
	}

	info := make([]patternInfo, 0, len(accessions.Patterns))
	for _, p := range accessions.Patterns {
		info = append(info, patternInfo{
			Kind:        string(p.Kind),
			Archive:     p.Archive,
			Pattern:     p.Regex.String(),
			Description: p.Description,
			Examples:    p.Examples,
		})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(struct {
		Patterns []patternInfo `json:"patterns"`
		Count    int           `json:"count"`
	}{Patterns: info, Count: len(info)})
}

func init() {
	rootCmd.AddCommand(patternsCmd)
}
