// Package ingest normalizes parsed course rows and persists them through the
// catalog repository, one isolated unit of work per record.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Config controls normalization.
type Config struct {
	CenturyBase int
	// Professor replaces a missing instructor name.
	Professor string
}

// BatchContext names the dimensions shared by every record of a batch.
type BatchContext struct {
	Term   catalog.TermOption
	Campus catalog.CampusOption
	Major  catalog.MajorOption
}

// BatchResult counts the outcome of one batch.
type BatchResult struct {
	Persisted int
	Failed    int
}

// Engine persists course batches.
type Engine struct {
	parser    ScheduleParser
	professor string
	logger    *zap.Logger
}

// New builds an Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.CenturyBase <= 0 {
		cfg.CenturyBase = DefaultCenturyBase
	}
	if strings.TrimSpace(cfg.Professor) == "" {
		cfg.Professor = catalog.NoProfessor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		parser:    ScheduleParser{CenturyBase: cfg.CenturyBase},
		professor: cfg.Professor,
		logger:    logger.Named("ingest"),
	}
}

type batchIDs struct {
	term   int64
	campus int64
	major  int64
}

type meetingRecord struct {
	room      string
	building  string
	startDate time.Time
	endDate   time.Time
	startTime catalog.TimeOfDay
	endTime   catalog.TimeOfDay
	weekdays  []int
}

type courseRecord struct {
	reference      string
	subjectCode    string
	subjectName    string
	section        string
	credits        int
	seatsTotal     int
	seatsAvailable int
	professor      string
	meetings       []meetingRecord
}

// IngestBatch writes one major's courses in a single transaction. Each record
// runs in a nested unit; a failing record is rolled back and logged and the
// batch continues. The term, campus and major rows and their link are written
// even when courses is empty.
func (e *Engine) IngestBatch(
	ctx context.Context,
	sess catalog.Session,
	batch BatchContext,
	courses []catalog.RawCourse,
) (BatchResult, error) {
	logger := e.logger.With(
		zap.String("term", batch.Term.Label),
		zap.String("campus", batch.Campus.Value),
		zap.String("major", batch.Major.Code),
	)

	tx, err := sess.Begin(ctx)
	if err != nil {
		return BatchResult{Failed: len(courses)}, fmt.Errorf("begin batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Warn("batch rollback failed", zap.Error(rbErr))
			}
		}
	}()

	ids, err := e.batchDimensions(ctx, tx, batch)
	if err != nil {
		return BatchResult{Failed: len(courses)}, err
	}

	var result BatchResult
	for _, raw := range courses {
		if err := e.ingestRecord(ctx, tx, ids, raw); err != nil {
			result.Failed++
			logger.Warn("record rolled back",
				zap.String("reference", raw.Reference),
				zap.Error(err),
			)
			continue
		}
		result.Persisted++
	}

	if err := tx.Commit(ctx); err != nil {
		result.Failed += result.Persisted
		result.Persisted = 0
		metrics.ObserveRecords("failed", result.Failed)
		return result, fmt.Errorf("commit batch: %w", err)
	}
	committed = true

	metrics.ObserveRecords("persisted", result.Persisted)
	metrics.ObserveRecords("failed", result.Failed)
	logger.Debug("batch committed",
		zap.Int("persisted", result.Persisted),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (e *Engine) batchDimensions(ctx context.Context, tx catalog.Tx, batch BatchContext) (batchIDs, error) {
	var ids batchIDs
	var err error
	if ids.term, _, err = tx.Term(ctx, batch.Term.Label); err != nil {
		return ids, fmt.Errorf("term %s: %w", batch.Term.Label, err)
	}
	if ids.campus, _, err = tx.Campus(ctx, batch.Campus.Name, batch.Campus.Code); err != nil {
		return ids, fmt.Errorf("campus %s: %w", batch.Campus.Name, err)
	}
	if ids.major, _, err = tx.Major(ctx, batch.Major.Code, batch.Major.Name); err != nil {
		return ids, fmt.Errorf("major %s: %w", batch.Major.Code, err)
	}
	if err = tx.LinkCampusMajor(ctx, ids.campus, ids.major); err != nil {
		return ids, fmt.Errorf("link campus %d major %d: %w", ids.campus, ids.major, err)
	}
	return ids, nil
}

func (e *Engine) ingestRecord(ctx context.Context, tx catalog.Tx, ids batchIDs, raw catalog.RawCourse) error {
	rec, err := e.normalize(raw)
	if err != nil {
		return err
	}
	unit, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	if err := e.persist(ctx, unit, ids, rec); err != nil {
		if rbErr := unit.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := unit.Commit(ctx); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

func (e *Engine) normalize(raw catalog.RawCourse) (courseRecord, error) {
	if err := raw.Validate(); err != nil {
		return courseRecord{}, err
	}
	total, err := ParseSeats(raw.SeatsTotal)
	if err != nil {
		return courseRecord{}, err
	}
	available, err := ParseSeats(raw.SeatsAvailable)
	if err != nil {
		return courseRecord{}, err
	}

	professor := raw.ProfessorName()
	if professor == catalog.NoProfessor {
		professor = e.professor
	}

	rec := courseRecord{
		reference:      strings.TrimSpace(raw.Reference),
		subjectCode:    strings.TrimSpace(raw.SubjectCode),
		subjectName:    strings.TrimSpace(raw.SubjectName),
		section:        strings.TrimSpace(raw.Section),
		credits:        ParseCredits(raw.Credits),
		seatsTotal:     total,
		seatsAvailable: available,
		professor:      professor,
	}
	for _, m := range raw.Meetings {
		room, building := strings.TrimSpace(m.Room), strings.TrimSpace(m.Building)
		if room == "" || building == "" {
			continue
		}
		start, end, err := e.parser.ParsePeriod(m.Period)
		if err != nil {
			return courseRecord{}, err
		}
		from, to, err := ParseHours(m.Hours)
		if err != nil {
			return courseRecord{}, err
		}
		days, err := ParseWeekdays(m.Days)
		if err != nil {
			return courseRecord{}, err
		}
		rec.meetings = append(rec.meetings, meetingRecord{
			room:      room,
			building:  building,
			startDate: start,
			endDate:   end,
			startTime: from,
			endTime:   to,
			weekdays:  days,
		})
	}
	return rec, nil
}

func (e *Engine) persist(ctx context.Context, unit catalog.Tx, ids batchIDs, rec courseRecord) error {
	subjectID, _, err := unit.Subject(ctx, rec.subjectCode, rec.subjectName, rec.credits)
	if err != nil {
		return fmt.Errorf("subject %s: %w", rec.subjectCode, err)
	}
	if err := unit.LinkMajorSubject(ctx, ids.major, subjectID); err != nil {
		return fmt.Errorf("link major subject: %w", err)
	}
	professorID, _, err := unit.Professor(ctx, rec.professor)
	if err != nil {
		return fmt.Errorf("professor: %w", err)
	}

	sectionID, created, err := unit.Section(ctx, catalog.Section{
		Reference:      rec.reference,
		TermID:         ids.term,
		Number:         rec.section,
		SubjectID:      subjectID,
		ProfessorID:    professorID,
		CampusID:       ids.campus,
		SeatsTotal:     rec.seatsTotal,
		SeatsAvailable: rec.seatsAvailable,
	})
	if err != nil {
		return fmt.Errorf("section: %w", err)
	}
	if !created {
		if err := unit.UpdateSectionSeats(ctx, sectionID, rec.seatsTotal, rec.seatsAvailable); err != nil {
			return fmt.Errorf("update seats: %w", err)
		}
	}

	for _, m := range rec.meetings {
		roomID, _, err := unit.Room(ctx, m.room, m.building)
		if err != nil {
			return fmt.Errorf("room %s/%s: %w", m.building, m.room, err)
		}
		for _, day := range m.weekdays {
			if _, _, err := unit.Meeting(ctx, catalog.Meeting{
				SectionID: sectionID,
				RoomID:    roomID,
				StartDate: m.startDate,
				EndDate:   m.endDate,
				StartTime: m.startTime,
				EndTime:   m.endTime,
				Weekday:   day,
			}); err != nil {
				return fmt.Errorf("meeting weekday %d: %w", day, err)
			}
		}
	}
	return nil
}
