package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// selectTerms returns the terms a run covers. terms is ordered most recent
// first. The recent window is always included; initial runs add every term of
// the historical window that has no sections yet, historical runs add the
// whole window.
func (c *Coordinator) selectTerms(
	ctx context.Context,
	terms []catalog.TermOption,
	recent int,
	mode catalog.Mode,
) []catalog.TermOption {
	if recent < 1 {
		recent = 1
	}
	if recent > len(terms) {
		recent = len(terms)
	}
	selected := append([]catalog.TermOption(nil), terms[:recent]...)
	if mode == catalog.ModeRecent {
		return selected
	}

	end := min(len(terms), recent+c.cfg.HistoricalTerms)
	for _, term := range terms[recent:end] {
		if mode == catalog.ModeHistorical {
			selected = append(selected, term)
			continue
		}
		populated, err := c.deps.Store.TermHasSections(ctx, term.Label)
		if err != nil {
			c.logger.Warn("backfill probe failed, including term",
				zap.String("term", term.Label), zap.Error(err))
			selected = append(selected, term)
			continue
		}
		if populated {
			c.logger.Debug("backfill skipped populated term", zap.String("term", term.Label))
			continue
		}
		selected = append(selected, term)
	}
	return selected
}
