package origin

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/archive"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Courses pages through the course query for one term, campus and major.
// Paging stops on an empty page, the end-of-report marker, or a page without
// the next-page control. A failed request ends paging and returns the rows
// gathered so far together with the error.
func (r *Resolver) Courses(ctx context.Context, q catalog.CourseQuery) ([]catalog.RawCourse, error) {
	key := q.Term.Code + "/" + q.Campus.Value + "/" + q.Major.Code
	defer r.pacer.Forget(key)

	logger := r.logger.With(
		zap.String("term", q.Term.Code),
		zap.String("campus", q.Campus.Value),
		zap.String("major", q.Major.Code),
	)

	var all []catalog.RawCourse
	for offset := 0; ; offset += r.cfg.PageSize {
		if err := r.pacer.Wait(ctx, key); err != nil {
			return all, fmt.Errorf("pace listing request: %w", err)
		}
		body, err := r.client.PostForm(ctx, r.endpoint(coursesPath), r.courseForm(q, offset))
		if err != nil {
			logger.Warn("listing page failed, keeping earlier pages",
				zap.Int("offset", offset),
				zap.Int("kept", len(all)),
				zap.Error(err),
			)
			return all, fmt.Errorf("fetch listing at offset %d: %w", offset, err)
		}
		r.archivePage(ctx, q, offset, body, logger)

		page, err := parseListing(body, r.cfg.PageSize)
		if err != nil {
			return all, err
		}
		for _, invalid := range page.invalid {
			logger.Warn("skipping malformed row", zap.Int("offset", offset), zap.Error(invalid))
		}
		if page.rows == 0 {
			break
		}
		all = append(all, page.courses...)
		metrics.ObserveCoursesFetched(len(page.courses))

		if page.ended || !page.hasMore {
			break
		}
	}
	logger.Debug("listing complete", zap.Int("courses", len(all)))
	return all, nil
}

func (r *Resolver) courseForm(q catalog.CourseQuery, offset int) map[string]string {
	return map[string]string{
		"ciclop":   q.Term.Code,
		"cup":      q.Campus.Value,
		"majrp":    q.Major.Code,
		"crsep":    "",
		"materiap": "",
		"horaip":   "",
		"horafp":   "",
		"edifp":    "",
		"aulap":    "",
		"ordenp":   "0",
		"mostrarp": strconv.Itoa(r.cfg.PageSize),
		"p_start":  strconv.Itoa(offset),
	}
}

func (r *Resolver) archivePage(ctx context.Context, q catalog.CourseQuery, offset int, body []byte, logger *zap.Logger) {
	if r.archiver == nil {
		return
	}
	ref := archive.PageRef{
		Term:   q.Term.Code,
		Campus: q.Campus.Value,
		Major:  q.Major.Code,
		Offset: offset,
	}
	if _, err := r.archiver.Archive(ctx, ref, body); err != nil {
		logger.Warn("archive listing page failed", zap.Int("offset", offset), zap.Error(err))
	}
}
