package calendar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHolidays(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "holidays.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`holidays:
  - date: "2026-12-25"
    name: Natal
  - date: "2026-11-02"
    name: Finados
`), 0o644))

	hs, err := LoadHolidays(path)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "Natal", hs[0].Name)
	assert.Equal(t, "2026-12-25", hs[0].Date.Format(dateLayout))

	c := mustCalendar(t, Config{WorkStart: "08:00", WorkEnd: "18:00", WorkDays: weekdays, Holidays: Dates(hs)})
	assert.True(t, c.IsHoliday(date("2026-11-02")))
}

func TestLoadHolidays_EmptyPath(t *testing.T) {
	t.Parallel()

	hs, err := LoadHolidays("")
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestLoadHolidays_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadHolidays(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read holidays")
}

func TestParseHolidays_BadDate(t *testing.T) {
	t.Parallel()

	_, err := ParseHolidays([]byte("holidays:\n  - date: \"25/12/2026\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want YYYY-MM-DD")
}
