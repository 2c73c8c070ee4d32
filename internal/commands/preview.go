package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardlink-dev/cardlink/internal/config"
	"github.com/cardlink-dev/cardlink/internal/importer"
	"github.com/cardlink-dev/cardlink/internal/ledger"
	"github.com/cardlink-dev/cardlink/internal/logger"
	"github.com/cardlink-dev/cardlink/internal/statement"
)

func newPreviewCommand() *cobra.Command {
	var format string
	var encoding string
	var dateCol, descCol, amountCol string

	cmd := &cobra.Command{
		Use:   "preview <statement.csv>",
		Short: "Parse a statement and preview its ledger match without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			opts := statement.ParseOptions{Format: format, Encoding: encoding}
			if dateCol != "" || descCol != "" || amountCol != "" {
				opts.Mapping = &statement.ExplicitMapping{
					DateColumn:        dateCol,
					DescriptionColumn: descCol,
					AmountColumn:      amountCol,
				}
			}
			return runPreview(configPath, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "known bank format (nubank, itau)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "declared file encoding (utf-8, latin-1, windows-1252)")
	cmd.Flags().StringVar(&dateCol, "date-column", "", "explicit header name of the date column")
	cmd.Flags().StringVar(&descCol, "description-column", "", "explicit header name of the description column")
	cmd.Flags().StringVar(&amountCol, "amount-column", "", "explicit header name of the amount column")

	return cmd
}

func runPreview(configPath, filePath string, opts statement.ParseOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	store, err := ledger.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}

	svc := importer.NewService(store, statement.DefaultRegistry(), rulesFrom(cfg), cfg.Import.MaxRows, logger.Nop())

	preview, err := svc.ParsePreview(f, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Parsed %d lines (format: %s)\n", len(preview.Lines), preview.DetectedFormat)
	for _, l := range preview.Lines {
		marker := ""
		if l.InstallmentTotal > 0 {
			marker = fmt.Sprintf(" [%d/%d]", l.InstallmentIndex, l.InstallmentTotal)
		}
		fmt.Printf("  %s  %-12s  %10s  %s%s\n",
			l.Date.Format("2006-01-02"), l.Classification, l.Amount.StringFixed(2), l.RawDescription, marker)
	}

	res, err := svc.MatchPreview(preview.Lines)
	if err != nil {
		return err
	}

	fmt.Printf("\nNet purchase total: %s\n", res.NetTotal.StringFixed(2))
	if res.BillingCycle != "" {
		fmt.Printf("Billing cycle: %s\n", res.BillingCycle)
	}
	if res.Candidate == nil {
		fmt.Printf("No matching bill payment; unmatched amount %s\n", res.UnmatchedAmount.StringFixed(2))
		return nil
	}
	fmt.Printf("Matched bill payment #%d (%s, %s) with delta %s\n",
		res.Candidate.ID, res.Candidate.Date.Format("2006-01-02"),
		res.Candidate.Amount.StringFixed(2), res.Delta.StringFixed(2))
	return nil
}
