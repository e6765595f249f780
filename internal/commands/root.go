// Package commands implements the payproof command line.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "payproof",
	Short: "Verifiable proofs for processor payment events",
	Long: `payproof receives signed payment webhooks, asks an attestation engine
for a proof that the payment exists as reported, and stores one proof
record per successful payment.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/payproof/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json, yaml")
}
