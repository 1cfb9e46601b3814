// Package cmd defines the CLI commands of the beercrawl executable.
//
// The phases consume each other's files and are meant to run in this order:
//
//	crawl --kind style|place     snapshots of the operator supplied catalogs
//	extract listings --kind ...  child catalogs (beers, breweries)
//	crawl --kind brewery         then extract listings --kind brewery
//	crawl --kind beer
//	extract info                 declared counts and scores into beers.csv
//	extract ratings              ratings and reviews streams, count reconciliation
//	users                        users.csv from the ratings stream
//
// The order is documented, not enforced.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/beer-ratings-crawler/internal/app"
	"github.com/JakeFAU/beer-ratings-crawler/internal/config"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/id/uuid"
	"github.com/JakeFAU/beer-ratings-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp builds the container for a command. Tests replace it to inject a
// fake transport.
var newApp = func(cfg config.Config, logger *zap.Logger, runID string) (*app.App, error) {
	return app.New(cfg, logger, runID)
}

func newRootCmd() *cobra.Command {
	var cfgFile, runFlag string

	cmd := &cobra.Command{
		Use:   "beercrawl",
		Short: "Crawl BeerAdvocate and extract its ratings and reviews.",
		Long: `beercrawl mirrors the pages of styles, places, breweries and beers into a
local snapshot tree, then extracts catalogs and rating records from the
snapshots without touching the network.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			runID, err := uuid.ResolveRunID(runFlag)
			if err != nil {
				return fmt.Errorf("--run-id: %w", err)
			}
			a, err := newApp(cfg, logging.ForRun(logger, runID, cmd.CommandPath()), runID)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				_ = a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CRAWLER_* variables override it")
	cmd.PersistentFlags().StringVar(&runFlag, "run-id", "", "reuse a run id (archive prefix) instead of minting one")

	cmd.AddCommand(newCrawlCmd(), newExtractCmd(), newUsersCmd(), newAuditCmd(), newArchiveCmd())
	return cmd
}

// Execute runs the CLI with ctx as the root context.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func kindFlag(cmd *cobra.Command, target *string, allowed string) {
	cmd.Flags().StringVar(target, "kind", "", "entity kind ("+allowed+")")
	_ = cmd.MarkFlagRequired("kind")
}

func parseKind(raw string) (entity.Kind, error) {
	kind, err := entity.ParseKind(raw)
	if err != nil {
		return "", fmt.Errorf("--kind: %w", err)
	}
	return kind, nil
}
