package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "kmunity",
		Short: "kmunity - community reference database of genome statistics",
		Long: `kmunity turns a public sequencing run accession into genome statistics
(genome size and heterozygosity) and appends them to a shared
version-controlled CSV database. Reads are pulled from the SRA,
analyzed with kmerfreq and gce, and the scratch space is reclaimed
whatever the outcome.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
