package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Mode selects which terms a full run covers.
type Mode string

// Full run modes.
const (
	// ModeRecent processes only the N most recent terms.
	ModeRecent Mode = "recent"
	// ModeInitial adds historical terms that have no sections yet.
	ModeInitial Mode = "initial"
	// ModeHistorical re-crawls the whole historical window unconditionally.
	ModeHistorical Mode = "historical"
)

// ParseMode converts user input into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeRecent:
		return ModeRecent, nil
	case ModeInitial:
		return ModeInitial, nil
	case ModeHistorical, "forced-historical", "forced":
		return ModeHistorical, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", raw)
	}
}

// RunStatus represents the lifecycle state of a supervised run.
type RunStatus string

// Run status values recorded in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// RunCounters is a snapshot of run progress.
type RunCounters struct {
	Jobs           int64 `json:"jobs"`
	Majors         int64 `json:"majors"`
	CampusesFailed int64 `json:"campuses_failed"`
	PagesFailed    int64 `json:"pages_failed"`
	Courses        int64 `json:"courses"`
	Persisted      int64 `json:"persisted"`
	Failed         int64 `json:"failed"`
}

// RunStats accumulates counters from concurrent workers.
type RunStats struct {
	Jobs           atomic.Int64
	Majors         atomic.Int64
	CampusesFailed atomic.Int64
	PagesFailed    atomic.Int64
	Courses        atomic.Int64
	Persisted      atomic.Int64
	Failed         atomic.Int64
}

// Snapshot copies the current counter values.
func (s *RunStats) Snapshot() RunCounters {
	if s == nil {
		return RunCounters{}
	}
	return RunCounters{
		Jobs:           s.Jobs.Load(),
		Majors:         s.Majors.Load(),
		CampusesFailed: s.CampusesFailed.Load(),
		PagesFailed:    s.PagesFailed.Load(),
		Courses:        s.Courses.Load(),
		Persisted:      s.Persisted.Load(),
		Failed:         s.Failed.Load(),
	}
}

// Run is the record kept for every full run request.
type Run struct {
	ID          string      `json:"id"`
	Mode        Mode        `json:"mode"`
	RecentCount int         `json:"recent_count"`
	Status      RunStatus   `json:"status"`
	Submitted   time.Time   `json:"submitted_at"`
	Started     *time.Time  `json:"started_at,omitempty"`
	Finished    *time.Time  `json:"finished_at,omitempty"`
	ErrorText   string      `json:"error_text,omitempty"`
	Terms       []string    `json:"terms,omitempty"`
	Counters    RunCounters `json:"counters"`
}

// RunEvent is published when a run reaches a terminal status.
type RunEvent struct {
	RunID     string      `json:"run_id"`
	Mode      Mode        `json:"mode"`
	Status    RunStatus   `json:"status"`
	Error     string      `json:"error,omitempty"`
	Terms     []string    `json:"terms,omitempty"`
	Counters  RunCounters `json:"counters"`
	Timestamp string      `json:"timestamp"`
}
