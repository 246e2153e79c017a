package store

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Calendar export file names.
const (
	HolidaysFile  = "belgian_holidays.csv"
	VacationsFile = "school_vacations.csv"
)

// CalendarStore writes the expanded holiday and vacation tables.
type CalendarStore struct {
	dir string
}

// NewCalendarStore returns a store rooted at dir.
func NewCalendarStore(dir string) *CalendarStore {
	return &CalendarStore{dir: dir}
}

// Save writes one row per holiday and one row per vacation day.
func (s *CalendarStore) Save(holidays, vacationDays []domain.CalendarFlag) error {
	rows := make([][]string, len(holidays))
	for i, h := range holidays {
		rows[i] = []string{h.Date.Format("2006-01-02"), h.HolidayName, strconv.FormatBool(h.IsHoliday)}
	}
	if err := writeAtomic(filepath.Join(s.dir, HolidaysFile), []string{"date", HolidayNameColumn, IsHolidayColumn}, rows); err != nil {
		return fmt.Errorf("save holidays: %w", err)
	}

	rows = make([][]string, len(vacationDays))
	for i, v := range vacationDays {
		rows[i] = []string{v.Date.Format("2006-01-02"), v.VacationName, strconv.FormatBool(v.IsSchoolVacation)}
	}
	if err := writeAtomic(filepath.Join(s.dir, VacationsFile), []string{"date", VacationNameColumn, IsSchoolVacationColumn}, rows); err != nil {
		return fmt.Errorf("save school vacations: %w", err)
	}
	return nil
}
