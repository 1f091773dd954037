package quiz

import "time"

// SetNow replaces the service clock; the returned func restores it.
func SetNow(now func() time.Time) func() {
	prev := nowFunc
	nowFunc = now
	return func() { nowFunc = prev }
}
