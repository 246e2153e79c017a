package calendar

// BelgianHolidays lists Belgian public holidays for 2025 and 2026.
func BelgianHolidays() []Holiday {
	return []Holiday{
		{"2025-01-01", "New Year's Day"},
		{"2025-04-21", "Easter Monday"},
		{"2025-05-01", "Labour Day"},
		{"2025-05-29", "Ascension Day"},
		{"2025-06-09", "Whit Monday"},
		{"2025-07-21", "Belgian National Day"},
		{"2025-08-15", "Assumption of Mary"},
		{"2025-11-01", "All Saints' Day"},
		{"2025-11-11", "Armistice Day"},
		{"2025-12-25", "Christmas Day"},

		{"2026-01-01", "New Year's Day"},
		{"2026-04-06", "Easter Monday"},
		{"2026-05-01", "Labour Day"},
		{"2026-05-14", "Ascension Day"},
		{"2026-05-25", "Whit Monday"},
		{"2026-07-21", "Belgian National Day"},
		{"2026-08-15", "Assumption of Mary"},
		{"2026-11-01", "All Saints' Day"},
		{"2026-11-11", "Armistice Day"},
		{"2026-12-25", "Christmas Day"},
	}
}

// FlemishSchoolVacations lists school vacations in Flanders for 2025 and 2026.
func FlemishSchoolVacations() []Vacation {
	return []Vacation{
		{"2025-02-24", "2025-03-02", "Carnival Break"},
		{"2025-04-14", "2025-04-27", "Easter Break"},
		{"2025-07-01", "2025-08-31", "Summer Break"},
		{"2025-11-03", "2025-11-09", "Autumn Break"},
		{"2025-12-22", "2026-01-05", "Christmas Break"},

		{"2026-02-16", "2026-02-22", "Carnival Break"},
		{"2026-04-06", "2026-04-19", "Easter Break"},
		{"2026-07-01", "2026-08-31", "Summer Break"},
	}
}

// BelgianDefault builds the calendar from the built-in tables.
func BelgianDefault() *Calendar {
	c, err := New(BelgianHolidays(), FlemishSchoolVacations())
	if err != nil {
		panic("calendar: built-in tables are invalid: " + err.Error())
	}
	return c
}
