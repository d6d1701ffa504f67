// Package markethours decides the collection cadence from the Seoul trading
// day. News flow is heaviest from pre-open through the close, so the window
// starts well before the 09:00 bell.
package markethours

import "time"

// KST is Korea Standard Time (UTC+9).
var KST = time.FixedZone("KST", 9*3600)

// Collection window in KST.
const (
	WindowOpenHour  = 7
	WindowCloseHour = 16 // exclusive: the window covers 07:00-15:59
)

// InWindow returns true if t falls within the weekday collection window.
func InWindow(t time.Time) bool {
	kst := t.In(KST)
	wd := kst.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := kst.Hour()
	return h >= WindowOpenHour && h < WindowCloseHour
}

// Cadence returns the interval until the next collection cycle: market
// interval inside the window, off-hours interval outside it.
func Cadence(t time.Time, market, offHours time.Duration) time.Duration {
	if InWindow(t) {
		return market
	}
	return offHours
}
