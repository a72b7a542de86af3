package candles

import (
	"fmt"
	"time"
)

// Duration maps a timeframe label (e.g. "M1", "M5", "H1", "D1") to its
// wall-clock span. Unknown labels are rejected with a validation error by
// the caller.
func Duration(tf string) (time.Duration, error) {
	switch tf {
	case "M1":
		return time.Minute, nil
	case "M5":
		return 5 * time.Minute, nil
	case "M15":
		return 15 * time.Minute, nil
	case "M30":
		return 30 * time.Minute, nil
	case "H1":
		return time.Hour, nil
	case "H4":
		return 4 * time.Hour, nil
	case "D1":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
}

// AlignToGrid truncates t to the nearest timeframe boundary at or before t,
// treating the grid as continuous from the Unix epoch.
func AlignToGrid(t time.Time, tf string) (time.Time, error) {
	d, err := Duration(tf)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(d), nil
}

// IsAligned reports whether t falls exactly on a timeframe grid boundary.
func IsAligned(t time.Time, tf string) bool {
	aligned, err := AlignToGrid(t, tf)
	if err != nil {
		return false
	}
	return aligned.Equal(t.UTC())
}
