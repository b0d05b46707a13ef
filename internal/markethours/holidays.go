package markethours

import "time"

// Exchange holidays (HOSE/HNX). Weekends are handled separately.
// Source: SSC announced trading calendars; 2026 lunar dates tentative.
var exchangeHolidays = []struct {
	year  int
	month time.Month
	day   int
}{
	{2025, time.January, 1},   // New Year
	{2025, time.January, 27},  // Tet
	{2025, time.January, 28},  // Tet
	{2025, time.January, 29},  // Tet
	{2025, time.January, 30},  // Tet
	{2025, time.January, 31},  // Tet
	{2025, time.April, 7},     // Hung Kings
	{2025, time.April, 30},    // Reunification Day
	{2025, time.May, 1},       // Labour Day
	{2025, time.May, 2},       // swapped day off
	{2025, time.September, 1}, // National Day
	{2025, time.September, 2}, // National Day
	{2026, time.January, 1},   // New Year
	{2026, time.February, 16}, // Tet (tentative)
	{2026, time.February, 17}, // Tet
	{2026, time.February, 18}, // Tet
	{2026, time.February, 19}, // Tet
	{2026, time.February, 20}, // Tet (tentative)
	{2026, time.April, 27},    // Hung Kings, observed
	{2026, time.April, 30},    // Reunification Day
	{2026, time.May, 1},       // Labour Day
	{2026, time.September, 1}, // National Day (tentative)
	{2026, time.September, 2}, // National Day
}

// pre-compute for fast lookup
var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool, len(exchangeHolidays))
	for _, h := range exchangeHolidays {
		holidaySet[time.Date(h.year, h.month, h.day, 0, 0, 0, 0, ICT).Format(dateLayout)] = true
	}
}

// IsHoliday returns true if the date (in ICT) is an exchange holiday.
func IsHoliday(t time.Time) bool {
	return holidaySet[DateKey(t)]
}
