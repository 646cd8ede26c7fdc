package source

import (
	"fmt"
	"strings"
	"time"
)

// changeTime scans a timestamp column. Drivers that return time.Time are
// rendered in UTC as RFC 3339; textual values pass through unchanged.
type changeTime string

func (c *changeTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = ""
	case time.Time:
		*c = changeTime(v.UTC().Format(time.RFC3339Nano))
	case string:
		*c = changeTime(v)
	case []byte:
		*c = changeTime(string(v))
	default:
		return fmt.Errorf("unsupported change time type %T", src)
	}
	return nil
}

var changeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseChangeTime parses the timestamp forms produced by the supported
// drivers and the default watermark.
func ParseChangeTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range changeTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CompareChangeTimes orders two change times as instants when both parse,
// and lexically otherwise.
func CompareChangeTimes(a, b string) int {
	ta, okA := ParseChangeTime(a)
	tb, okB := ParseChangeTime(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

// LaterChangeTime returns the later of a and b. An empty value loses.
func LaterChangeTime(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case CompareChangeTimes(b, a) > 0:
		return b
	}
	return a
}
