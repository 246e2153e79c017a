package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/couchcryptid/traffic-data-etl/internal/calendar"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Catalog is the static reference data for a deployment: which segments to
// sync and which days are holidays or school vacations.
type Catalog struct {
	Segments  []domain.Segment    `mapstructure:"segments"`
	Holidays  []calendar.Holiday  `mapstructure:"holidays"`
	Vacations []calendar.Vacation `mapstructure:"vacations"`
}

// DefaultSegments are the two Kortrijk streets the project started with.
func DefaultSegments() []domain.Segment {
	return []domain.Segment{
		{ID: "9000008372", Name: "sintmartenslatemlaan"},
		{ID: "9000009940", Name: "graaf_karel_de_goedelaan"},
	}
}

// LoadCatalog reads a YAML, JSON or TOML catalog file. Sections missing from
// the file, or an empty path, fall back to the built-in Kortrijk segments and
// Belgian calendar.
func LoadCatalog(path string) (*Catalog, error) {
	cat := &Catalog{
		Segments:  DefaultSegments(),
		Holidays:  calendar.BelgianHolidays(),
		Vacations: calendar.FlemishSchoolVacations(),
	}
	if path == "" {
		return cat, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file Catalog
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	if v.IsSet("segments") {
		cat.Segments = file.Segments
	}
	if v.IsSet("holidays") {
		cat.Holidays = file.Holidays
	}
	if v.IsSet("vacations") {
		cat.Vacations = file.Vacations
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate checks segment ids and names are present and unique, and that the
// calendar tables parse.
func (c *Catalog) Validate() error {
	if len(c.Segments) == 0 {
		return errors.New("catalog.segments must contain at least one segment")
	}
	ids := make(map[string]bool, len(c.Segments))
	names := make(map[string]bool, len(c.Segments))
	for _, s := range c.Segments {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("catalog.segments: id and name are required (got id=%q name=%q)", s.ID, s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("catalog.segments: duplicate id %s", s.ID)
		}
		if names[s.Name] {
			return fmt.Errorf("catalog.segments: duplicate name %s", s.Name)
		}
		ids[s.ID] = true
		names[s.Name] = true
	}
	if _, err := calendar.New(c.Holidays, c.Vacations); err != nil {
		return fmt.Errorf("catalog calendar: %w", err)
	}
	return nil
}
