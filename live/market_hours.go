package live

import "time"

// nyse is the exchange timezone; market-hours checks never use the host's
// local time (spec.md §4.8 "Market hours").
var nyse = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fall back to a fixed ET offset when the tz database is missing;
		// DST drift is acceptable for a paper-trading gate.
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// IsMarketOpen reports whether t falls within regular US equity market
// hours: 9:30–16:00 America/New_York, Monday–Friday.
func IsMarketOpen(t time.Time) bool {
	et := t.In(nyse)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
