package transcript

import (
	"errors"
	"fmt"
	"time"
)

// Timestamp is a parsed created_at value. HasZone records whether the source
// text carried a UTC offset, so naive database timestamps render without one.
type Timestamp struct {
	Time    time.Time
	HasZone bool
}

var zonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-07",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var errEmptyTimestamp = errors.New("empty timestamp")

// ParseTimestamp parses the ISO-8601 variants Postgres and JSON encoders emit.
// Fractional seconds are accepted by every layout.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, errEmptyTimestamp
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, HasZone: true}, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// String renders "2006-01-02 15:04:05", adding microseconds only when they are
// non-zero and the offset only when the source had one.
func (ts Timestamp) String() string {
	s := ts.Time.Format("2006-01-02 15:04:05")
	if us := ts.Time.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	if ts.HasZone {
		s += ts.Time.Format("-07:00")
	}
	return s
}
