// Package engine implements the automation control loop: entry scheduling,
// exit evaluation, drawdown monitoring and the dual-leg execution
// coordinator that ties them to the two channels.
package engine

import (
	"time"

	"pairbridge/internal/store"
	"pairbridge/internal/types"
)

// weekdayIndex converts Go's Sunday-first weekday to the rule convention
// (0=Monday .. 6=Sunday).
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func weekdayAllowed(weekdays []int, now time.Time) bool {
	if len(weekdays) == 0 {
		return true
	}
	wd := weekdayIndex(now)
	for _, d := range weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// ShouldTrigger reports whether an entry rule fires at the given instant.
// lastRunDate is the rule's last recorded trigger date (YYYY-MM-DD in the
// rule's timezone, empty if never fired). Each rule fires at most once per
// calendar day; the caller records the date only after both legs are
// confirmed open.
func ShouldTrigger(rule types.ScheduleRule, now time.Time, lastRunDate string) bool {
	if !rule.Enabled {
		return false
	}
	if !weekdayAllowed(rule.Weekdays, now) {
		return false
	}

	var start, end *types.TimeOfDay
	if tod, ok := types.ParseTimeOfDay(rule.EntryStart); ok {
		start = &tod
	}
	if tod, ok := types.ParseTimeOfDay(rule.EntryEnd); ok {
		end = &tod
	}
	if start == nil && end == nil {
		return false
	}
	if !types.TimeOfDayOf(now).InWindow(start, end) {
		return false
	}
	return lastRunDate != now.Format("2006-01-02")
}

// riskDatesAllow reports whether the risk policy's optional trading date
// range admits the given day. Empty bounds are open.
func riskDatesAllow(risk store.RiskConfig, now time.Time) bool {
	day := now.Format("2006-01-02")
	if risk.StartDate != "" && day < risk.StartDate {
		return false
	}
	if risk.EndDate != "" && day > risk.EndDate {
		return false
	}
	return true
}
