package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardlink-dev/cardlink/internal/api"
	"github.com/cardlink-dev/cardlink/internal/classify"
	"github.com/cardlink-dev/cardlink/internal/config"
	"github.com/cardlink-dev/cardlink/internal/importer"
	"github.com/cardlink-dev/cardlink/internal/ledger"
	"github.com/cardlink-dev/cardlink/internal/logger"
	"github.com/cardlink-dev/cardlink/internal/statement"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)

	store, err := ledger.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}

	svc := importer.NewService(store, statement.DefaultRegistry(), rulesFrom(cfg), cfg.Import.MaxRows, log)
	handler := api.NewHandler(svc, store, log)
	router := api.NewRouter(handler, log)

	log.Info().Str("listen", cfg.Listen).Msg("starting cardlink API")
	if err := router.Run(cfg.Listen); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// rulesFrom builds the classifier phrase set, config overriding the
// defaults per list.
func rulesFrom(cfg *config.Config) classify.Rules {
	rules := classify.DefaultRules()
	if len(cfg.Import.PaymentReceivedPhrases) > 0 {
		rules.PaymentReceived = cfg.Import.PaymentReceivedPhrases
	}
	if len(cfg.Import.RefundPhrases) > 0 {
		rules.Refund = cfg.Import.RefundPhrases
	}
	return rules
}
