package catalog

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository exposes get-or-create for every catalog entity. Each call looks the
// row up by its natural key and inserts it when absent, reporting whether it
// was created. Existing rows are returned unchanged.
type Repository interface {
	Term(ctx context.Context, name string) (int64, bool, error)
	// Campus sets the code only when the stored campus has none.
	Campus(ctx context.Context, name, code string) (int64, bool, error)
	Major(ctx context.Context, code, name string) (int64, bool, error)
	Subject(ctx context.Context, code, name string, credits int) (int64, bool, error)
	Professor(ctx context.Context, name string) (int64, bool, error)
	Section(ctx context.Context, section Section) (int64, bool, error)
	Room(ctx context.Context, label, building string) (int64, bool, error)
	Meeting(ctx context.Context, meeting Meeting) (int64, bool, error)

	LinkCampusMajor(ctx context.Context, campusID, majorID int64) error
	LinkMajorSubject(ctx context.Context, majorID, subjectID int64) error
	UpdateSectionSeats(ctx context.Context, sectionID int64, total, available int) error
}

// Tx is a unit of work. Begin on a Tx opens a nested unit that can be rolled
// back without discarding the enclosing one.
type Tx interface {
	Repository
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session is an exclusive storage connection held by one worker.
type Session interface {
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// Store hands out sessions and answers run-planning probes.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
	TermHasSections(ctx context.Context, term string) (bool, error)
}

// RunStore records supervised run status for later queries.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	StartRun(ctx context.Context, runID string, terms []string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// Queue holds crawl jobs for one run. Done marks a dequeued job as processed
// and Wait blocks until every enqueued job is done.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Done()
	Wait(ctx context.Context) error
	Close()
}

// OptionsSource discovers terms and campuses.
type OptionsSource interface {
	Options(ctx context.Context) (Options, error)
}

// MajorSource discovers the majors offered at a campus.
type MajorSource interface {
	Majors(ctx context.Context, campus CampusOption) ([]MajorOption, error)
}

// CourseQuery identifies one paginated course listing.
type CourseQuery struct {
	Term   TermOption
	Campus CampusOption
	Major  MajorOption
}

// CourseSource fetches every course row for a query. On a mid-pagination
// failure it returns the rows fetched so far together with the error.
type CourseSource interface {
	Courses(ctx context.Context, query CourseQuery) ([]RawCourse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
