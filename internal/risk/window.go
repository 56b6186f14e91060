package risk

import "time"

// Window bounds the minutes of the exchange day during which new
// positions may be opened. Days listed in Skip (yyyymmdd) are excluded
// entirely, covering expiry days and event blackouts.
type Window struct {
	OpenMinute  int
	CloseMinute int
	Location    *time.Location
	Skip        map[int64]struct{}
}

// DayKey returns now's calendar date as yyyymmdd in the window's location.
func (w Window) DayKey(now time.Time) int64 {
	if w.Location != nil {
		now = now.In(w.Location)
	}
	y, m, d := now.Date()
	return int64(y)*10000 + int64(m)*100 + int64(d)
}

// Allows reports whether now falls inside the admission window.
func (w Window) Allows(now time.Time) bool {
	if w.Location != nil {
		now = now.In(w.Location)
	}
	if w.Skip != nil {
		if _, blocked := w.Skip[w.DayKey(now)]; blocked {
			return false
		}
	}
	if w.OpenMinute == 0 && w.CloseMinute == 0 {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= w.OpenMinute && minute <= w.CloseMinute
}
