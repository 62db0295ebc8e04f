package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRawCourseValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		course  RawCourse
		wantErr string
	}{
		{
			name:   "complete",
			course: RawCourse{Reference: "12345", SubjectCode: "I5882", Section: "D01"},
		},
		{
			name:    "missing reference",
			course:  RawCourse{SubjectCode: "I5882", Section: "D01"},
			wantErr: "reference",
		},
		{
			name:    "blank fields",
			course:  RawCourse{Reference: " ", SubjectCode: "", Section: ""},
			wantErr: "reference, subject_code, section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.course.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidCourse))
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRawCourseProfessorName(t *testing.T) {
	t.Parallel()

	require.Equal(t, NoProfessor, RawCourse{}.ProfessorName())
	require.Equal(t, NoProfessor, RawCourse{Professor: &RawProfessor{Name: "  "}}.ProfessorName())
	require.Equal(t, "PEREZ LOPEZ, ANA", RawCourse{Professor: &RawProfessor{Name: " PEREZ LOPEZ, ANA "}}.ProfessorName())
}

func TestOptionsLookups(t *testing.T) {
	t.Parallel()

	opts := Options{
		Terms:    []TermOption{{Code: "202510", Label: "2025A"}, {Code: "202480", Label: "2024V"}},
		Campuses: []CampusOption{{Value: "D", Code: "D", Name: "CENTRO UNIVERSITARIO DE CIENCIAS EXACTAS E INGENIERIAS"}},
	}

	term, ok := opts.TermByLabel("2024v")
	require.True(t, ok)
	require.Equal(t, "202480", term.Code)

	_, ok = opts.TermByLabel("1999A")
	require.False(t, ok)

	campus, ok := opts.CampusByName("centro universitario de ciencias exactas e ingenierias")
	require.True(t, ok)
	require.Equal(t, "D", campus.Value)
}

func TestJobAllowsMajor(t *testing.T) {
	t.Parallel()

	require.True(t, Job{}.AllowsMajor("INCO"))
	filtered := Job{MajorFilter: []string{"INCO", "INNI"}}
	require.True(t, filtered.AllowsMajor("INNI"))
	require.False(t, filtered.AllowsMajor("LIME"))
	require.True(t, Job{MajorFilter: []string{" inco "}}.AllowsMajor("INCO"))
}

func TestTimeOfDay(t *testing.T) {
	t.Parallel()

	tod := TimeOfDay{Hour: 7, Minute: 55}
	require.Equal(t, 7*time.Hour+55*time.Minute, tod.Duration())
	require.Equal(t, "07:55", tod.String())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Mode{
		"":                  ModeRecent,
		"recent":            ModeRecent,
		"INITIAL":           ModeInitial,
		"historical":        ModeHistorical,
		"forced-historical": ModeHistorical,
	} {
		got, err := ParseMode(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseMode("weekly")
	require.Error(t, err)
}

func TestRunStatsSnapshot(t *testing.T) {
	t.Parallel()

	var nilStats *RunStats
	require.Equal(t, RunCounters{}, nilStats.Snapshot())

	stats := &RunStats{}
	stats.Jobs.Add(2)
	stats.Persisted.Add(10)
	stats.Failed.Add(1)
	snap := stats.Snapshot()
	require.Equal(t, int64(2), snap.Jobs)
	require.Equal(t, int64(10), snap.Persisted)
	require.Equal(t, int64(1), snap.Failed)
	require.True(t, RunStatusFailed.IsTerminal())
	require.False(t, RunStatusRunning.IsTerminal())
}
