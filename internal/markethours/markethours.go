// Package markethours describes the Vietnamese equity session calendar
// (HOSE/HNX): 09:00–15:00 ICT with a lunch break, Mon–Fri, excluding exchange holidays.
package markethours

import (
	"fmt"
	"time"
)

// ICT is Indochina Time (UTC+7), the exchange clock.
var ICT = time.FixedZone("ICT", 7*3600)

// Session hours in ICT
const (
	OpenHour    = 9
	OpenMinute  = 0
	CloseHour   = 15
	CloseMinute = 0

	// Continuous matching pauses for lunch; the grid keeps these minutes and
	// forward-fills them.
	LunchStartHour   = 11
	LunchStartMinute = 30
	LunchEndHour     = 13
	LunchEndMinute   = 0
)

const dateLayout = "2006-01-02"

// IsMarketOpen returns true if t falls inside the session window
// (09:00–15:00 ICT inclusive of the closing minute, Mon–Fri, excluding
// holidays). The lunch break counts as open: the session is still live.
func IsMarketOpen(t time.Time) bool {
	ict := t.In(ICT)
	if !IsTradingDay(ict) {
		return false
	}
	hm := ict.Hour()*60 + ict.Minute()
	return hm >= OpenHour*60+OpenMinute && hm <= CloseHour*60+CloseMinute
}

// InLunchBreak returns true during the midday pause on a trading day.
func InLunchBreak(t time.Time) bool {
	ict := t.In(ICT)
	if !IsTradingDay(ict) {
		return false
	}
	hm := ict.Hour()*60 + ict.Minute()
	return hm >= LunchStartHour*60+LunchStartMinute && hm < LunchEndHour*60+LunchEndMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(ICT).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ict := t.In(ICT)
	return IsWeekday(ict) && !IsHoliday(ict)
}

// TodayOpen returns the session open on t's calendar day.
func TodayOpen(t time.Time) time.Time {
	ict := t.In(ICT)
	return time.Date(ict.Year(), ict.Month(), ict.Day(), OpenHour, OpenMinute, 0, 0, ICT)
}

// TodayClose returns the session close on t's calendar day.
func TodayClose(t time.Time) time.Time {
	ict := t.In(ICT)
	return time.Date(ict.Year(), ict.Month(), ict.Day(), CloseHour, CloseMinute, 0, 0, ICT)
}

// Midnight returns 00:00 ICT of t's calendar day.
func Midnight(t time.Time) time.Time {
	ict := t.In(ICT)
	return time.Date(ict.Year(), ict.Month(), ict.Day(), 0, 0, 0, 0, ICT)
}

// IsAfterClose returns true once t has passed the close of a trading day.
func IsAfterClose(t time.Time) bool {
	return IsTradingDay(t) && t.In(ICT).After(TodayClose(t))
}

// NextOpen returns the next session open.
// If t is before today's open on a trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	ict := t.In(ICT)

	todayOpen := TodayOpen(ict)
	if ict.Before(todayOpen) && IsTradingDay(ict) {
		return todayOpen
	}

	d := ict.AddDate(0, 0, 1)
	for i := 0; i < 15; i++ { // Tet can close the market for a full week
		if IsTradingDay(d) {
			return TodayOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return TodayOpen(ict.AddDate(0, 0, 1))
}

// LastTradingDay returns midnight of the most recent session that has
// started at or before t. Before 09:00 on a trading day this is the
// previous trading day.
func LastTradingDay(t time.Time) time.Time {
	ict := t.In(ICT)
	d := Midnight(ict)
	if IsTradingDay(d) && !ict.Before(TodayOpen(ict)) {
		return d
	}
	for i := 0; i < 15; i++ {
		d = d.AddDate(0, 0, -1)
		if IsTradingDay(d) {
			return d
		}
	}
	return d
}

// SessionGrid returns every minute from open to close (inclusive) on day.
// A 09:00–15:00 session yields 361 minutes.
func SessionGrid(day time.Time) []time.Time {
	open := TodayOpen(day)
	close := TodayClose(day)
	n := int(close.Sub(open)/time.Minute) + 1
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = open.Add(time.Duration(i) * time.Minute)
	}
	return grid
}

// GridLen is the number of one-minute points in a full session.
func GridLen() int {
	return (CloseHour*60 + CloseMinute) - (OpenHour*60 + OpenMinute) + 1
}

// DateKey formats t's ICT calendar day as "2006-01-02".
func DateKey(t time.Time) string {
	return t.In(ICT).Format(dateLayout)
}

// ParseDateKey parses "2006-01-02" as midnight ICT.
func ParseDateKey(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, ICT)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session date %q: %w", s, err)
	}
	return d, nil
}

// TimeUntilClose returns the duration until today's close.
// Returns 0 if the session is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(ICT))
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		if InLunchBreak(t) {
			return "Lunch Break — resumes 13:00"
		}
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	ict := next.In(ICT)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		ict.Weekday().String()[:3], ict.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
