// Package catalog defines the core types shared across the crawl-and-ingest pipeline.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoProfessor is stored for sections the origin lists without an instructor.
const NoProfessor = "SIN PROFESOR ASIGNADO"

// TermOption is one academic term advertised by the landing form.
type TermOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// CampusOption is one campus advertised by the landing form. Value is the raw
// form value used when querying the origin; Code is the code parsed from the label.
type CampusOption struct {
	Value string `json:"value"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// MajorOption is one major offered at a campus.
type MajorOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Options is the landing form snapshot. Terms keep origin order, most recent first.
type Options struct {
	Terms    []TermOption
	Campuses []CampusOption
}

// TermByLabel finds a term by its normalized label (e.g. 2025A).
func (o Options) TermByLabel(label string) (TermOption, bool) {
	label = strings.TrimSpace(label)
	for _, t := range o.Terms {
		if strings.EqualFold(t.Label, label) {
			return t, true
		}
	}
	return TermOption{}, false
}

// CampusByName finds a campus by display name.
func (o Options) CampusByName(name string) (CampusOption, bool) {
	name = strings.TrimSpace(name)
	for _, c := range o.Campuses {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return CampusOption{}, false
}

// RawMeeting is one schedule row as printed by the origin.
type RawMeeting struct {
	Session  string `json:"session"`
	Hours    string `json:"hours"`
	Days     string `json:"days"`
	Building string `json:"building"`
	Room     string `json:"room"`
	Period   string `json:"period"`
}

// RawProfessor is the first instructor row of a course.
type RawProfessor struct {
	Session string `json:"session"`
	Name    string `json:"name"`
}

// RawCourse is one parsed row of the course listing, before normalization.
type RawCourse struct {
	Reference      string        `json:"reference"`
	SubjectCode    string        `json:"subject_code"`
	SubjectName    string        `json:"subject_name"`
	Section        string        `json:"section"`
	Credits        string        `json:"credits"`
	SeatsTotal     string        `json:"seats_total"`
	SeatsAvailable string        `json:"seats_available"`
	Meetings       []RawMeeting  `json:"meetings"`
	Professor      *RawProfessor `json:"professor,omitempty"`
}

// ErrInvalidCourse is returned by RawCourse.Validate.
var ErrInvalidCourse = errors.New("invalid course record")

// Validate checks the fields every persisted section depends on.
func (c RawCourse) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Reference) == "" {
		missing = append(missing, "reference")
	}
	if strings.TrimSpace(c.SubjectCode) == "" {
		missing = append(missing, "subject_code")
	}
	if strings.TrimSpace(c.Section) == "" {
		missing = append(missing, "section")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCourse, strings.Join(missing, ", "))
	}
	return nil
}

// ProfessorName returns the instructor name or the NoProfessor sentinel.
func (c RawCourse) ProfessorName() string {
	if c.Professor == nil || strings.TrimSpace(c.Professor.Name) == "" {
		return NoProfessor
	}
	return strings.TrimSpace(c.Professor.Name)
}

// Job is one (term, campus) unit of crawl work. MajorFilter restricts the
// majors processed for the campus when non-empty.
type Job struct {
	Term        TermOption
	Campus      CampusOption
	MajorFilter []string
}

// AllowsMajor reports whether the job's filter admits the major code. Codes
// compare case-insensitively.
func (j Job) AllowsMajor(code string) bool {
	if len(j.MajorFilter) == 0 {
		return true
	}
	for _, m := range j.MajorFilter {
		if strings.EqualFold(strings.TrimSpace(m), code) {
			return true
		}
	}
	return false
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Section carries the attributes written when a section is first created.
type Section struct {
	Reference      string
	TermID         int64
	Number         string
	SubjectID      int64
	ProfessorID    int64
	CampusID       int64
	SeatsTotal     int
	SeatsAvailable int
}

// Meeting is one weekly occurrence of a section. Every field is part of its identity.
type Meeting struct {
	SectionID int64
	RoomID    int64
	StartDate time.Time
	EndDate   time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Weekday   int
}
