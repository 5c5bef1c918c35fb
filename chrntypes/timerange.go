package chrntypes

import (
	"fmt"
	"time"

	"github.com/muddysheep/chronicle/chrnerr"
)

// TimeRange is a half-open millisecond interval [Start, End).
type TimeRange struct {
	Start int64
	End   int64
}

// NewTimeRange builds a TimeRange, returning an error instead of panicking
// when start >= end so callers at the API boundary can surface it as a
// InvalidTimeRange condition.
func NewTimeRange(start, end int64) (TimeRange, error) {
	if start >= end {
		return TimeRange{}, chrnerr.New(chrnerr.KindInvalidTimeRange, "NewTimeRange",
			fmt.Errorf("start %d >= end %d", start, end))
	}
	return TimeRange{Start: start, End: end}, nil
}

func LastDuration(d time.Duration, now time.Time) TimeRange {
	end := now.UnixMilli()
	return TimeRange{Start: end - d.Milliseconds(), End: end}
}

func LastHours(n int, now time.Time) TimeRange   { return LastDuration(time.Duration(n)*time.Hour, now) }
func LastMinutes(n int, now time.Time) TimeRange { return LastDuration(time.Duration(n)*time.Minute, now) }
func LastDays(n int, now time.Time) TimeRange    { return LastDuration(time.Duration(n)*24*time.Hour, now) }

// Day returns the [00:00, 24:00) UTC range for the calendar day containing t.
func Day(t time.Time) TimeRange {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return TimeRange{Start: start.UnixMilli(), End: start.AddDate(0, 0, 1).UnixMilli()}
}

func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.Start && ts < r.End
}

func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && r.End > other.Start
}

func (r TimeRange) DurationMillis() int64 {
	return r.End - r.Start
}

// Expand widens the range by `before` milliseconds at the start and `after`
// at the end.
func (r TimeRange) Expand(before, after int64) TimeRange {
	return TimeRange{Start: r.Start - before, End: r.End + after}
}

// Intersection returns the overlap of r and other, and whether one exists.
func (r TimeRange) Intersection(other TimeRange) (TimeRange, bool) {
	start := r.Start
	if other.Start > start {
		start = other.Start
	}
	end := r.End
	if other.End < end {
		end = other.End
	}
	if start >= end {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}
