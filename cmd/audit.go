package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report entities whose snapshots are incomplete",
		Long: `Compares, for every entity of the kind, the page offsets implied by the
declared count on page 0 with the pages on disk. Nothing is fetched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			results, err := a.Audit(cmd.Context(), k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			incomplete := 0
			for _, r := range results {
				if r.Complete() {
					continue
				}
				incomplete++
				fmt.Fprintf(out, "%s\tdeclared=%d\tmissing=%v\n", r.Ref, r.Declared, r.Missing)
			}
			fmt.Fprintf(out, "%d of %d %s entities incomplete\n", incomplete, len(results), k)
			return nil
		},
	}
	kindFlag(cmd, &kind, "style, place, brewery, beer")
	return cmd
}
