package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-crawler/internal/scrape"
)

func newRefreshCmd() *cobra.Command {
	var req scrape.TargetedRequest
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refreshes the sections of one subject",
		Long: `Fetches the listing for one term, campus and major, keeps the rows of
one subject and ingests them. Runs alongside a full run without waiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appInstance.Scraper().RunTargeted(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Term, "term", "", "term label, e.g. 2025A")
	cmd.Flags().StringVar(&req.Campus, "campus", "", "campus display name")
	cmd.Flags().StringVar(&req.Major, "major", "", "major code")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject code")
	return cmd
}
