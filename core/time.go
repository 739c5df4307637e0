package core

import "time"

// UnixEpoch is the default lower bound for date-windowed queries.
var UnixEpoch = time.Unix(0, 0).UTC()

// ParseTimeTZ parses an RFC 3339 datetime. RFC 3339 mandates an explicit
// offset, so naive datetimes are rejected.
func ParseTimeTZ(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

// TimeWindow bounds a query to [Start, End]. The zero value means
// "everything up to now".
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Resolve fills in the defaults: Start falls back to the Unix epoch and End
// to the current time.
func (w TimeWindow) Resolve() TimeWindow {
	if w.Start.IsZero() {
		w.Start = UnixEpoch
	}
	if w.End.IsZero() {
		w.End = time.Now().UTC()
	}
	return w
}
