package origin

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const majorAnchorCall = "javascript:asigna("

// Majors lists the majors offered at campus. Anchors that do not carry a
// code and a name are skipped.
func (r *Resolver) Majors(ctx context.Context, campus catalog.CampusOption) ([]catalog.MajorOption, error) {
	target := r.endpoint(majorsPath) + "?cup=" + url.QueryEscape(campus.Value)
	body, err := r.client.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch majors for campus %s: %w", campus.Value, err)
	}
	majors, err := parseMajors(body)
	if err != nil {
		return nil, fmt.Errorf("parse majors for campus %s: %w", campus.Value, err)
	}
	r.logger.Debug("resolved majors",
		zap.String("campus", campus.Value),
		zap.Int("majors", len(majors)),
	)
	return majors, nil
}

func parseMajors(body []byte) ([]catalog.MajorOption, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var majors []catalog.MajorOption
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		major, ok := parseMajorAnchor(s.AttrOr("href", ""))
		if !ok {
			return
		}
		if _, dup := seen[major.Code]; dup {
			return
		}
		seen[major.Code] = struct{}{}
		majors = append(majors, major)
	})
	return majors, nil
}

// parseMajorAnchor reads javascript:asigna('CODE','NAME').
func parseMajorAnchor(href string) (catalog.MajorOption, bool) {
	_, args, found := strings.Cut(href, majorAnchorCall)
	if !found {
		return catalog.MajorOption{}, false
	}
	args, _, found = strings.Cut(args, ")")
	if !found {
		return catalog.MajorOption{}, false
	}
	code, name, found := strings.Cut(args, ",")
	if !found {
		return catalog.MajorOption{}, false
	}
	code = unquoteArg(code)
	name = unquoteArg(name)
	if code == "" || name == "" {
		return catalog.MajorOption{}, false
	}
	return catalog.MajorOption{Code: code, Name: name}, true
}

func unquoteArg(s string) string {
	return strings.Trim(strings.TrimSpace(s), `'"`)
}
