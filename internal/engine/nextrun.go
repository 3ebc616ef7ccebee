package engine

import (
	"time"

	"pairbridge/internal/types"
)

// NextRun projects the next instant a rule could fire, scanning up to 14
// days ahead. Returns nil for disabled rules, rules with no parseable entry
// time, or rules whose weekday filter never admits a day in the horizon.
func NextRun(rule types.ScheduleRule, now time.Time, lastRunDate string) *time.Time {
	if !rule.Enabled {
		return nil
	}

	start, startOK := types.ParseTimeOfDay(rule.EntryStart)
	if !startOK {
		// Open-start windows are anchored at the end bound.
		end, endOK := types.ParseTimeOfDay(rule.EntryEnd)
		if !endOK {
			return nil
		}
		start = end
	}

	today := now.Format("2006-01-02")
	for d := 0; d < 14; d++ {
		day := now.AddDate(0, 0, d)
		if !weekdayAllowed(rule.Weekdays, day) {
			continue
		}
		date := day.Format("2006-01-02")
		if lastRunDate == date {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(),
			int(start)/3600, int(start)%3600/60, int(start)%60, 0, now.Location())
		if date == today && !at.After(now) {
			// Today's window start already passed; the rule may still
			// fire inside the window, but the projection points ahead.
			if !ShouldTrigger(rule, now, lastRunDate) {
				continue
			}
			return &now
		}
		return &at
	}
	return nil
}
