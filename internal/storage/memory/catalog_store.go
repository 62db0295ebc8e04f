package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

var errTxClosed = errors.New("transaction already closed")

// Counts reports the number of rows per table.
type Counts struct {
	Terms         int
	Campuses      int
	Majors        int
	Subjects      int
	Professors    int
	Sections      int
	Rooms         int
	Meetings      int
	CampusMajors  int
	MajorSubjects int
}

// SectionRow is the stored state of a section.
type SectionRow struct {
	ID int64
	catalog.Section
}

type sectionKey struct {
	reference string
	termID    int64
}

type roomKey struct {
	label    string
	building string
}

type meetingKey struct {
	sectionID int64
	roomID    int64
	startDate string
	endDate   string
	startTime catalog.TimeOfDay
	endTime   catalog.TimeOfDay
	weekday   int
}

type linkKey [2]int64

type campusRow struct {
	id   int64
	code string
}

// CatalogStore keeps the catalog tables in maps guarded by one mutex. One
// outermost transaction writes at a time: Begin on a session waits until the
// previous one commits or rolls back, so no transaction observes rows another
// one may still undo. Each transaction keeps an undo journal so a rollback
// reverts exactly its own writes.
type CatalogStore struct {
	mu     sync.Mutex
	writer chan struct{}

	nextID        int64
	terms         map[string]int64
	campuses      map[string]*campusRow
	majors        map[string]int64
	subjects      map[string]int64
	professors    map[string]int64
	sections      map[sectionKey]*SectionRow
	sectionTerms  map[int64]int
	termNames     map[int64]string
	rooms         map[roomKey]int64
	meetings      map[meetingKey]int64
	campusMajors  map[linkKey]struct{}
	majorSubjects map[linkKey]struct{}
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		writer:        make(chan struct{}, 1),
		terms:         make(map[string]int64),
		campuses:      make(map[string]*campusRow),
		majors:        make(map[string]int64),
		subjects:      make(map[string]int64),
		professors:    make(map[string]int64),
		sections:      make(map[sectionKey]*SectionRow),
		sectionTerms:  make(map[int64]int),
		termNames:     make(map[int64]string),
		rooms:         make(map[roomKey]int64),
		meetings:      make(map[meetingKey]int64),
		campusMajors:  make(map[linkKey]struct{}),
		majorSubjects: make(map[linkKey]struct{}),
	}
}

// Acquire returns a session. Memory sessions hold no resources.
func (s *CatalogStore) Acquire(ctx context.Context) (catalog.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	return &session{store: s}, nil
}

// TermHasSections reports whether any section exists for the term label.
func (s *CatalogStore) TermHasSections(_ context.Context, term string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.terms[term]
	if !ok {
		return false, nil
	}
	return s.sectionTerms[id] > 0, nil
}

// Counts returns the current row counts.
func (s *CatalogStore) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Terms:         len(s.terms),
		Campuses:      len(s.campuses),
		Majors:        len(s.majors),
		Subjects:      len(s.subjects),
		Professors:    len(s.professors),
		Sections:      len(s.sections),
		Rooms:         len(s.rooms),
		Meetings:      len(s.meetings),
		CampusMajors:  len(s.campusMajors),
		MajorSubjects: len(s.majorSubjects),
	}
}

// Section looks up a section by reference and term label.
func (s *CatalogStore) Section(reference, term string) (SectionRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	termID, ok := s.terms[term]
	if !ok {
		return SectionRow{}, false
	}
	row, ok := s.sections[sectionKey{reference: reference, termID: termID}]
	if !ok {
		return SectionRow{}, false
	}
	return *row, true
}

// CampusCode returns the stored code for a campus name.
func (s *CatalogStore) CampusCode(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.campuses[name]
	if !ok {
		return "", false
	}
	return row.code, true
}

func (s *CatalogStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

type session struct {
	store *CatalogStore
}

func (s *session) Begin(ctx context.Context) (catalog.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	select {
	case s.store.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin: %w", ctx.Err())
	}
	return &tx{store: s.store}, nil
}

func (s *session) Release() {}

type tx struct {
	store  *CatalogStore
	parent *tx
	undo   []func()
	closed bool
}

func (t *tx) Begin(ctx context.Context) (catalog.Tx, error) {
	if t.closed {
		return nil, errTxClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin nested: %w", err)
	}
	return &tx{store: t.store, parent: t}, nil
}

func (t *tx) Commit(context.Context) error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	if t.parent != nil {
		t.parent.undo = append(t.parent.undo, t.undo...)
	}
	t.undo = nil
	t.finish()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.undo = nil
	t.finish()
	return nil
}

// finish frees the writer slot once the outermost transaction ends.
func (t *tx) finish() {
	if t.parent == nil {
		<-t.store.writer
	}
}

// write runs fn under the store lock and journals its undo step.
func (t *tx) write(fn func(s *CatalogStore) (undo func(), err error)) error {
	if t.closed {
		return errTxClosed
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	undo, err := fn(t.store)
	if err != nil {
		return err
	}
	if undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

func (t *tx) Term(_ context.Context, name string) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		if existing, ok := s.terms[name]; ok {
			id = existing
			return nil, nil
		}
		id, created = s.allocID(), true
		s.terms[name] = id
		s.termNames[id] = name
		newID := id
		return func() {
			delete(s.terms, name)
			delete(s.termNames, newID)
		}, nil
	})
	return id, created, err
}

func (t *tx) Campus(_ context.Context, name, code string) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		if row, ok := s.campuses[name]; ok {
			id = row.id
			if row.code == "" && code != "" {
				row.code = code
				return func() { row.code = "" }, nil
			}
			return nil, nil
		}
		id, created = s.allocID(), true
		s.campuses[name] = &campusRow{id: id, code: code}
		return func() { delete(s.campuses, name) }, nil
	})
	return id, created, err
}

func (t *tx) Major(_ context.Context, code, _ string) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		return getOrCreate(s, s.majors, code, &id, &created), nil
	})
	return id, created, err
}

func (t *tx) Subject(_ context.Context, code, _ string, _ int) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		return getOrCreate(s, s.subjects, code, &id, &created), nil
	})
	return id, created, err
}

func (t *tx) Professor(_ context.Context, name string) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		return getOrCreate(s, s.professors, name, &id, &created), nil
	})
	return id, created, err
}

func (t *tx) Section(_ context.Context, section catalog.Section) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		key := sectionKey{reference: section.Reference, termID: section.TermID}
		if row, ok := s.sections[key]; ok {
			id = row.ID
			return nil, nil
		}
		id, created = s.allocID(), true
		s.sections[key] = &SectionRow{ID: id, Section: section}
		s.sectionTerms[section.TermID]++
		return func() {
			delete(s.sections, key)
			s.sectionTerms[section.TermID]--
		}, nil
	})
	return id, created, err
}

func (t *tx) Room(_ context.Context, label, building string) (id int64, created bool, err error) {
	err = t.write(func(s *CatalogStore) (func(), error) {
		return getOrCreate(s, s.rooms, roomKey{label: label, building: building}, &id, &created), nil
	})
	return id, created, err
}

func (t *tx) Meeting(_ context.Context, m catalog.Meeting) (id int64, created bool, err error) {
	key := meetingKey{
		sectionID: m.SectionID,
		roomID:    m.RoomID,
		startDate: m.StartDate.Format("2006-01-02"),
		endDate:   m.EndDate.Format("2006-01-02"),
		startTime: m.StartTime,
		endTime:   m.EndTime,
		weekday:   m.Weekday,
	}
	err = t.write(func(s *CatalogStore) (func(), error) {
		if m.Weekday < 1 || m.Weekday > 7 {
			return nil, fmt.Errorf("weekday %d out of range", m.Weekday)
		}
		return getOrCreate(s, s.meetings, key, &id, &created), nil
	})
	return id, created, err
}

func (t *tx) LinkCampusMajor(_ context.Context, campusID, majorID int64) error {
	return t.write(func(s *CatalogStore) (func(), error) {
		return link(s.campusMajors, linkKey{campusID, majorID}), nil
	})
}

func (t *tx) LinkMajorSubject(_ context.Context, majorID, subjectID int64) error {
	return t.write(func(s *CatalogStore) (func(), error) {
		return link(s.majorSubjects, linkKey{majorID, subjectID}), nil
	})
}

func (t *tx) UpdateSectionSeats(_ context.Context, sectionID int64, total, available int) error {
	return t.write(func(s *CatalogStore) (func(), error) {
		for _, row := range s.sections {
			if row.ID != sectionID {
				continue
			}
			prevTotal, prevAvailable := row.SeatsTotal, row.SeatsAvailable
			row.SeatsTotal, row.SeatsAvailable = total, available
			return func() {
				row.SeatsTotal, row.SeatsAvailable = prevTotal, prevAvailable
			}, nil
		}
		return nil, fmt.Errorf("section %d: %w", sectionID, catalog.ErrNotFound)
	})
}

func getOrCreate[K comparable](s *CatalogStore, table map[K]int64, key K, id *int64, created *bool) func() {
	if existing, ok := table[key]; ok {
		*id = existing
		return nil
	}
	*id, *created = s.allocID(), true
	table[key] = *id
	return func() { delete(table, key) }
}

func link(table map[linkKey]struct{}, key linkKey) func() {
	if _, ok := table[key]; ok {
		return nil
	}
	table[key] = struct{}{}
	return func() { delete(table, key) }
}
