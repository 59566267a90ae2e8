package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	quiet   bool
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tinkuy",
	Short: "A CLI tool for resolving cross-references between bioinformatics accessions",
	Long: `Tinkuy resolves cross-references between bioinformatics accession
identifiers: SRA studies, experiments and runs (SRP/SRX/SRR, ERP/ERX/ERR),
BioProjects (PRJNA/PRJEB), GEO series (GSE), and ArrayExpress experiments
(E-MTAB). It queries the NCBI Entrez E-utilities and the EBI ENA/BioStudies
APIs with batched, rate-limited, cached parallel lookups, and can merge the
resolved identifiers into CSV datasets.

"Tinkuy" means "meeting point" in Quechua.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tinkuy.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet output (suppress verbose messages)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (per-request progress)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "human", "output format (human, json, csv)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tinkuy" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tinkuy")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && !quiet {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
