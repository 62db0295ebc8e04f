package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/scrape"
)

// newCrawlCmd creates the one-shot full run command. It blocks until the run
// reaches a terminal status and prints the run record as JSON.
func newCrawlCmd() *cobra.Command {
	var (
		mode   string
		recent int
		majors []string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one full crawl and exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := catalog.ParseMode(mode)
			if err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			run, runErr := appInstance.Scraper().RunFull(cmd.Context(), scrape.FullRequest{
				Mode:        parsed,
				RecentCount: recent,
				Majors:      majors,
			})
			if run.ID != "" {
				out, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return fmt.Errorf("encode run: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			if runErr != nil {
				return fmt.Errorf("crawl: %w", runErr)
			}
			appInstance.Logger().Info("crawl command finished",
				zap.String("run_id", run.ID),
				zap.Int64("persisted", run.Counters.Persisted),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(catalog.ModeRecent), "run mode: recent, initial or historical")
	cmd.Flags().IntVar(&recent, "recent", 0, "number of most recent terms (defaults to crawler.recent_terms)")
	cmd.Flags().StringSliceVar(&majors, "major", nil, "restrict the run to these major codes (repeatable)")
	return cmd
}
