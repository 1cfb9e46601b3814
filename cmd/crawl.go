package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var (
		kind  string
		fresh bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch every page of the entities of one kind",
		Long: `Reads the catalog of the given kind and mirrors every listing page of each
entity into the snapshot tree. Pages already on disk are not fetched again,
so an interrupted crawl resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			report, err := a.Crawl(cmd.Context(), k, fresh)
			if err != nil {
				return fmt.Errorf("run crawler: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "crawled %d %s entities, %d failed, %d without a declared count\n",
				report.Succeeded, k, report.Failed, len(report.Flagged))
			return nil
		},
	}
	kindFlag(cmd, &kind, "style, place, brewery, beer")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard existing snapshots of each entity before crawling it")
	return cmd
}
