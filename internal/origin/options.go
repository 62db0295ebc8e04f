package origin

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// termSuffixes maps the last two digits of a term code to its label letter.
var termSuffixes = map[string]string{
	"10": "A",
	"20": "B",
	"80": "V",
}

const campusDelimiter = " - "

// Options fetches the landing form and returns its terms and campuses. Any
// failure, or a form without terms or campuses, yields ErrOptionsUnavailable.
func (r *Resolver) Options(ctx context.Context) (catalog.Options, error) {
	body, err := r.client.Get(ctx, r.endpoint(formPath))
	if err != nil {
		r.logger.Error("landing form fetch failed", zap.Error(err))
		return catalog.Options{}, fmt.Errorf("%w: %w", ErrOptionsUnavailable, err)
	}
	opts, err := parseOptions(body)
	if err != nil {
		return catalog.Options{}, fmt.Errorf("%w: %w", ErrOptionsUnavailable, err)
	}
	if len(opts.Terms) == 0 || len(opts.Campuses) == 0 {
		r.logger.Error("landing form listed no usable options",
			zap.Int("terms", len(opts.Terms)),
			zap.Int("campuses", len(opts.Campuses)),
		)
		return catalog.Options{}, fmt.Errorf("%w: %d terms, %d campuses",
			ErrOptionsUnavailable, len(opts.Terms), len(opts.Campuses))
	}
	r.logger.Info("resolved origin options",
		zap.Int("terms", len(opts.Terms)),
		zap.Int("campuses", len(opts.Campuses)),
	)
	return opts, nil
}

// TermLabel converts a six digit term code such as 202510 into its label
// (2025A). Codes with an unknown suffix are rejected.
func TermLabel(code string) (string, bool) {
	if len(code) != 6 || !isDigits(code) {
		return "", false
	}
	suffix, ok := termSuffixes[code[4:]]
	if !ok {
		return "", false
	}
	return code[:4] + suffix, true
}

func parseOptions(body []byte) (catalog.Options, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return catalog.Options{}, fmt.Errorf("parse landing form: %w", err)
	}

	var opts catalog.Options
	seenTerms := make(map[string]struct{})
	doc.Find(`select[name="ciclop"] option`).Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		label, ok := TermLabel(value)
		if !ok {
			return
		}
		if _, dup := seenTerms[value]; dup {
			return
		}
		seenTerms[value] = struct{}{}
		opts.Terms = append(opts.Terms, catalog.TermOption{Code: value, Label: label})
	})

	seenCampuses := make(map[string]struct{})
	doc.Find(`select[name="cup"] option`).Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		text := optionLabel(s)
		if value == "" || text == "" {
			return
		}
		if _, dup := seenCampuses[value]; dup {
			return
		}
		seenCampuses[value] = struct{}{}
		opts.Campuses = append(opts.Campuses, parseCampus(value, text))
	})
	return opts, nil
}

// optionLabel prefers the option's first text node; some campus options carry
// trailing markup after the name.
func optionLabel(s *goquery.Selection) string {
	if len(s.Nodes) > 0 {
		if first := s.Nodes[0].FirstChild; first != nil && first.Type == html.TextNode {
			return strings.TrimSpace(first.Data)
		}
	}
	return strings.TrimSpace(s.Text())
}

func parseCampus(value, text string) catalog.CampusOption {
	code, name, found := strings.Cut(text, campusDelimiter)
	if !found {
		code, name = value, text
	}
	name = strings.ReplaceAll(strings.TrimSpace(name), "\u00a0", " ")
	return catalog.CampusOption{
		Value: value,
		Code:  strings.TrimSpace(code),
		Name:  name,
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
