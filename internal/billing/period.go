package billing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Period is one billing interval. Periods are contiguous and
// non-overlapping: End is exactly one instant before the next Start.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
	Key   string    `json:"key"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// PeriodFor returns the billing period containing date for the given cycle
// start day (1-31). When the target month has fewer days than the cycle
// start day, the boundary clamps to that month's last day.
func PeriodFor(date time.Time, cycleStartDay int) Period {
	cycleStartDay = clampCycleDay(cycleStartDay)

	loc := date.Location()
	year, month, day := date.Date()

	startYear, startMonth := year, month
	if day < startDayFor(year, month, cycleStartDay) {
		startYear, startMonth = prevMonth(year, month)
	}

	start := time.Date(startYear, startMonth, startDayFor(startYear, startMonth, cycleStartDay), 0, 0, 0, 0, loc)

	nextYear, nextMonth := nextMonth(startYear, startMonth)
	nextStart := time.Date(nextYear, nextMonth, startDayFor(nextYear, nextMonth, cycleStartDay), 0, 0, 0, 0, loc)
	end := nextStart.Add(-time.Second)

	return Period{
		Start: start,
		End:   end,
		Label: periodLabel(start, end, cycleStartDay),
		Key:   periodKey(start, cycleStartDay),
	}
}

// PeriodsInRange enumerates the periods touching [from, to], deduplicated
// and descending by start date.
func PeriodsInRange(from, to time.Time, cycleStartDay int) []Period {
	if to.Before(from) {
		from, to = to, from
	}

	seen := make(map[string]bool)
	var out []Period
	cursor := PeriodFor(to, cycleStartDay)
	for {
		if !seen[cursor.Key] {
			seen[cursor.Key] = true
			out = append(out, cursor)
		}
		if cursor.Start.Before(from) || cursor.Start.Equal(from) {
			break
		}
		cursor = PeriodFor(cursor.Start.AddDate(0, 0, -1), cycleStartDay)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out
}

// ValidKey rejects period keys derived from corrupted timestamps: the year
// must be 2020 or later and the month in 1-12. The day component is the
// configured cycle start day and may name a day the month does not have,
// so it is not validated against the calendar.
func ValidKey(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != 3 {
		return false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 2020 {
		return false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > 31 {
		return false
	}
	return true
}

// periodKey builds the stable sortable grouping key from the period start's
// year and month plus the configured cycle start day. The configured day is
// used even when the concrete start clamped to a shorter month, so all
// periods of one cycle sort and group consistently.
func periodKey(start time.Time, cycleStartDay int) string {
	return fmt.Sprintf("%04d-%02d-%02d", start.Year(), int(start.Month()), cycleStartDay)
}

func periodLabel(start, end time.Time, cycleStartDay int) string {
	if cycleStartDay == 1 {
		return start.Format("January 2006")
	}
	return fmt.Sprintf("%s to %s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
}

func startDayFor(year int, month time.Month, cycleStartDay int) int {
	if last := daysInMonth(year, month); cycleStartDay > last {
		return last
	}
	return cycleStartDay
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func clampCycleDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > 31 {
		return 31
	}
	return day
}
