package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/ingest"
)

// Targeted refresh errors.
var (
	ErrInvalidTarget = errors.New("invalid refresh target")
	ErrUnknownTarget = errors.New("unknown refresh target")
)

// TargetedRequest names one subject within a major listing.
type TargetedRequest struct {
	Term    string `json:"term"`
	Campus  string `json:"campus"`
	Major   string `json:"major"`
	Subject string `json:"subject"`
}

// Validate checks that every field is set.
func (r TargetedRequest) Validate() error {
	fields := []struct{ name, value string }{
		{"term", r.Term},
		{"campus", r.Campus},
		{"major", r.Major},
		{"subject", r.Subject},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTarget, strings.Join(missing, ", "))
	}
	return nil
}

// TargetedResult counts the rows seen by a targeted refresh.
type TargetedResult struct {
	Fetched   int `json:"fetched"`
	Matched   int `json:"matched"`
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
}

// RunTargeted refreshes one subject's sections. It is not gated by the
// full-run lock and does not use the job queue. A listing that fails midway
// is still ingested as far as it was fetched.
func (c *Coordinator) RunTargeted(ctx context.Context, req TargetedRequest) (TargetedResult, error) {
	if err := req.Validate(); err != nil {
		return TargetedResult{}, err
	}
	logger := c.logger.With(
		zap.String("term", req.Term),
		zap.String("campus", req.Campus),
		zap.String("major", req.Major),
		zap.String("subject", req.Subject),
	)

	batch, err := c.resolveTarget(ctx, req)
	if err != nil {
		return TargetedResult{}, err
	}

	courses, fetchErr := c.deps.Courses.Courses(ctx, catalog.CourseQuery{
		Term:   batch.Term,
		Campus: batch.Campus,
		Major:  batch.Major,
	})
	result := TargetedResult{Fetched: len(courses)}
	if fetchErr != nil {
		if len(courses) == 0 {
			return result, fmt.Errorf("fetch listing: %w", fetchErr)
		}
		logger.Warn("listing incomplete", zap.Int("fetched", len(courses)), zap.Error(fetchErr))
	}

	subject := strings.TrimSpace(req.Subject)
	matched := make([]catalog.RawCourse, 0, len(courses))
	for _, course := range courses {
		if strings.EqualFold(strings.TrimSpace(course.SubjectCode), subject) {
			matched = append(matched, course)
		}
	}
	result.Matched = len(matched)

	sess, err := c.deps.Store.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire session: %w", err)
	}
	defer sess.Release()

	batchResult, err := c.deps.Ingester.IngestBatch(ctx, sess, batch, matched)
	result.Persisted = batchResult.Persisted
	result.Failed = batchResult.Failed
	if err != nil {
		return result, fmt.Errorf("ingest: %w", err)
	}
	logger.Info("targeted refresh finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("matched", result.Matched),
		zap.Int("persisted", result.Persisted),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (c *Coordinator) resolveTarget(ctx context.Context, req TargetedRequest) (ingest.BatchContext, error) {
	opts, err := c.deps.Options.Options(ctx)
	if err != nil {
		return ingest.BatchContext{}, err
	}
	term, ok := opts.TermByLabel(req.Term)
	if !ok {
		return ingest.BatchContext{}, fmt.Errorf("%w: term %q", ErrUnknownTarget, req.Term)
	}
	campus, ok := opts.CampusByName(req.Campus)
	if !ok {
		return ingest.BatchContext{}, fmt.Errorf("%w: campus %q", ErrUnknownTarget, req.Campus)
	}

	majors, err := c.deps.Majors.Majors(ctx, campus)
	if err != nil {
		return ingest.BatchContext{}, fmt.Errorf("list majors for %s: %w", campus.Value, err)
	}
	code := strings.TrimSpace(req.Major)
	for _, major := range majors {
		if strings.EqualFold(major.Code, code) {
			return ingest.BatchContext{Term: term, Campus: campus, Major: major}, nil
		}
	}
	return ingest.BatchContext{}, fmt.Errorf("%w: major %q at %s", ErrUnknownTarget, req.Major, campus.Name)
}
