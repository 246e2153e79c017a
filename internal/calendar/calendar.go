// Package calendar maps calendar days to public-holiday and school-vacation
// flags. The tables are static configuration: holidays are discrete dates,
// vacations are inclusive date ranges expanded to one entry per day when the
// Calendar is built. Extending coverage to a new year means adding rows.
package calendar

import (
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

const dateLayout = "2006-01-02"

// Holiday is a single public holiday.
type Holiday struct {
	Date string `mapstructure:"date"`
	Name string `mapstructure:"name"`
}

// Vacation is a school vacation period; Start and End are both included.
type Vacation struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
	Name  string `mapstructure:"name"`
}

// Calendar answers day-granularity lookups against expanded tables.
type Calendar struct {
	holidays  map[time.Time]string
	vacations map[time.Time]string
}

// New validates the tables and expands every vacation range into days. A day
// listed twice keeps the first name.
func New(holidays []Holiday, vacations []Vacation) (*Calendar, error) {
	c := &Calendar{
		holidays:  make(map[time.Time]string, len(holidays)),
		vacations: make(map[time.Time]string),
	}

	for _, h := range holidays {
		day, err := parseDay(h.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		if _, dup := c.holidays[day]; !dup {
			c.holidays[day] = h.Name
		}
	}

	for _, v := range vacations {
		start, err := parseDay(v.Start)
		if err != nil {
			return nil, fmt.Errorf("vacation %q start: %w", v.Name, err)
		}
		end, err := parseDay(v.End)
		if err != nil {
			return nil, fmt.Errorf("vacation %q end: %w", v.Name, err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("vacation %q ends %s before it starts %s", v.Name, v.End, v.Start)
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			if _, dup := c.vacations[day]; !dup {
				c.vacations[day] = v.Name
			}
		}
	}

	return c, nil
}

// FlagsFor returns the flags for the calendar date of t, read in t's own
// location. Days missing from both tables are ordinary days.
func (c *Calendar) FlagsFor(t time.Time) domain.CalendarFlag {
	day := domain.LocalDate(t)
	flag := domain.CalendarFlag{Date: day}
	if name, ok := c.holidays[day]; ok {
		flag.IsHoliday = true
		flag.HolidayName = name
	}
	if name, ok := c.vacations[day]; ok {
		flag.IsSchoolVacation = true
		flag.VacationName = name
	}
	return flag
}

// Enrich sets the calendar flags of every record from its local date.
func (c *Calendar) Enrich(records []domain.MergedRecord) {
	for i := range records {
		records[i].Calendar = c.FlagsFor(records[i].Timestamp)
	}
}

// Holidays returns one flag per holiday, ordered by date.
func (c *Calendar) Holidays() []domain.CalendarFlag {
	return c.sorted(c.holidays, func(f *domain.CalendarFlag, name string) {
		f.IsHoliday = true
		f.HolidayName = name
	})
}

// VacationDays returns one flag per expanded vacation day, ordered by date.
func (c *Calendar) VacationDays() []domain.CalendarFlag {
	return c.sorted(c.vacations, func(f *domain.CalendarFlag, name string) {
		f.IsSchoolVacation = true
		f.VacationName = name
	})
}

func (c *Calendar) sorted(days map[time.Time]string, set func(*domain.CalendarFlag, string)) []domain.CalendarFlag {
	out := make([]domain.CalendarFlag, 0, len(days))
	for day, name := range days {
		f := domain.CalendarFlag{Date: day}
		set(&f, name)
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b domain.CalendarFlag) int { return a.Date.Compare(b.Date) })
	return out
}

func parseDay(s string) (time.Time, error) {
	day, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return day, nil
}
