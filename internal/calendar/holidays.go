package calendar

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/automation-cli/internal/model"
)

// holidayFile is the on-disk shape:
//
//	holidays:
//	  - date: "2026-12-25"
//	    name: Natal
type holidayFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadHolidays reads a YAML holiday list. An empty path yields no holidays.
func LoadHolidays(path string) ([]model.Holiday, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "calendar: read holidays %s", path)
	}
	return ParseHolidays(data)
}

// ParseHolidays decodes a YAML holiday list. Dates must be YYYY-MM-DD.
func ParseHolidays(data []byte) ([]model.Holiday, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "calendar: parse holidays")
	}
	out := make([]model.Holiday, 0, len(f.Holidays))
	for _, h := range f.Holidays {
		d, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidConfig, "holiday date %q: want YYYY-MM-DD", h.Date)
		}
		out = append(out, model.Holiday{Date: d, Name: h.Name})
	}
	return out, nil
}

// Dates returns the holiday dates of hs.
func Dates(hs []model.Holiday) []time.Time {
	return holidayDates(hs)
}
