package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/payproof/internal/config"
	"github.com/telhawk-systems/payproof/internal/models"
	"github.com/telhawk-systems/payproof/internal/output"
	"github.com/telhawk-systems/payproof/internal/store"
)

var proofsCmd = &cobra.Command{
	Use:   "proofs",
	Short: "Inspect stored proof records",
}

// ProofSummary is one line of `proofs list`.
type ProofSummary struct {
	Name      string                  `json:"name"`
	Payment   *models.PaymentSnapshot `json:"payment,omitempty"`
	Timestamp *time.Time              `json:"timestamp,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

var proofsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored proof records",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openStore()
		if err != nil {
			return err
		}

		names, err := fs.List(cmd.Context())
		if err != nil {
			return err
		}

		summaries := make([]ProofSummary, 0, len(names))
		for _, name := range names {
			summary := ProofSummary{Name: name}
			record, err := fs.Load(cmd.Context(), name)
			if err != nil {
				summary.Error = err.Error()
			} else {
				summary.Payment = &record.Payment
				summary.Timestamp = &record.Timestamp
			}
			summaries = append(summaries, summary)
		}

		out := cmd.OutOrStdout()
		if outputFormat != output.FormatTable {
			return output.Write(out, outputFormat, summaries)
		}

		if len(summaries) == 0 {
			output.Info(out, "No proofs found in %s", fs.Dir())
			return nil
		}

		table := output.NewTable([]string{"Name", "Payment", "Amount", "Currency", "Status", "Timestamp"})
		for _, s := range summaries {
			if s.Payment == nil {
				table.AddRow([]string{s.Name, "-", "-", "-", "unreadable", "-"})
				continue
			}
			table.AddRow([]string{
				s.Name,
				s.Payment.ID,
				strconv.FormatInt(s.Payment.Amount, 10),
				strings.ToUpper(s.Payment.Currency),
				s.Payment.Status,
				s.Timestamp.Format(time.RFC3339),
			})
		}
		table.Render(out)
		output.Info(out, "\n%d proof(s) in %s", len(summaries), fs.Dir())
		return nil
	},
}

var proofsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a stored proof record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openStore()
		if err != nil {
			return err
		}

		record, err := fs.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat != output.FormatTable {
			return output.Write(out, outputFormat, record)
		}

		printRecord(cmd, args[0], record)
		return nil
	},
}

func printRecord(cmd *cobra.Command, name string, record *models.ProofRecord) {
	out := cmd.OutOrStdout()
	output.Info(out, "Proof: %s", name)
	output.Info(out, "Verified: %t", record.Verified)
	output.Info(out, "Timestamp: %s", record.Timestamp.Format(time.RFC3339Nano))
	output.Info(out, "\nPayment:")
	output.Info(out, "  ID: %s", record.Payment.ID)
	output.Info(out, "  Amount: %d %s", record.Payment.Amount, strings.ToUpper(record.Payment.Currency))
	output.Info(out, "  Status: %s", record.Payment.Status)
	output.Info(out, "\nProof:")
	fmt.Fprintln(out, string(record.Proof))
}

func openStore() (*store.FileStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(cfg.Storage.Dir), nil
}

func init() {
	proofsCmd.AddCommand(proofsListCmd)
	proofsCmd.AddCommand(proofsShowCmd)
	rootCmd.AddCommand(proofsCmd)
}
