package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract catalogs and records from the snapshots",
	}
	cmd.AddCommand(newExtractListingsCmd(), newExtractInfoCmd(), newExtractRatingsCmd())
	return cmd
}

func newExtractListingsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Add the entities listed on style, place or brewery pages to their catalogs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			stats, err := a.ExtractListings(cmd.Context(), k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listings of %d %s entities extracted, %d failed\n", stats.Succeeded, k, stats.Failed)
			return nil
		},
	}
	kindFlag(cmd, &kind, "style, place, brewery")
	return cmd
}

func newExtractInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Fill declared counts, scores and ABV of every beer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.ExtractInfo(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "info of %d beers extracted, %d failed\n", stats.Succeeded, stats.Failed)
			return nil
		},
	}
}

func newExtractRatingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratings",
		Short: "Write the ratings and reviews streams and reconcile declared counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.ExtractRatings(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d ratings, %d reviews from %d beers (%d failed), %d counts corrected\n",
				report.Ratings, report.Reviews, report.Succeeded, report.Failed, report.Corrected)
			return nil
		},
	}
}
