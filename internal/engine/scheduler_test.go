package engine

import (
	"testing"
	"time"

	"pairbridge/internal/store"
	"pairbridge/internal/types"
)

func baseRule() types.ScheduleRule {
	return types.ScheduleRule{
		ID:         "r1",
		Enabled:    true,
		EntryStart: "09:00",
		EntryEnd:   "10:00",
		Symbol1:    "EURUSD",
		Symbol2:    "GBPUSD",
		Lot1:       0.1,
		Lot2:       0.1,
	}
}

// 2026-01-05 is a Monday.
func at(day string, hour, min int) time.Time {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

func TestShouldTriggerInsideWindow(t *testing.T) {
	rule := baseRule()

	if !ShouldTrigger(rule, at("2026-01-05", 9, 30), "") {
		t.Error("Expected trigger inside the entry window")
	}
	if ShouldTrigger(rule, at("2026-01-05", 8, 59), "") {
		t.Error("Expected no trigger before the window")
	}
	if ShouldTrigger(rule, at("2026-01-05", 10, 1), "") {
		t.Error("Expected no trigger after the window")
	}
}

func TestShouldTriggerAtMostOncePerDay(t *testing.T) {
	rule := baseRule()
	now := at("2026-01-05", 9, 30)

	if !ShouldTrigger(rule, now, "") {
		t.Fatal("Expected first trigger of the day")
	}
	// Same day after a recorded run.
	if ShouldTrigger(rule, now.Add(5*time.Minute), "2026-01-05") {
		t.Error("Expected no second trigger on the same date")
	}
	// Next day, still inside the window.
	if !ShouldTrigger(rule, at("2026-01-06", 9, 30), "2026-01-05") {
		t.Error("Expected trigger again on the next date")
	}
}

func TestShouldTriggerOvernightWindow(t *testing.T) {
	rule := baseRule()
	rule.EntryStart = "23:00"
	rule.EntryEnd = "01:00"

	if !ShouldTrigger(rule, at("2026-01-05", 23, 30), "") {
		t.Error("Expected trigger at 23:30 in an overnight window")
	}
	if !ShouldTrigger(rule, at("2026-01-06", 0, 30), "") {
		t.Error("Expected trigger at 00:30 the next day in an overnight window")
	}
	if ShouldTrigger(rule, at("2026-01-05", 12, 0), "") {
		t.Error("Expected no trigger at noon in an overnight window")
	}
}

func TestShouldTriggerSingleBound(t *testing.T) {
	rule := baseRule()
	rule.EntryStart = "09:00"
	rule.EntryEnd = ""

	if !ShouldTrigger(rule, at("2026-01-05", 15, 0), "") {
		t.Error("Expected open-ended window to trigger after start")
	}
	if ShouldTrigger(rule, at("2026-01-05", 8, 0), "") {
		t.Error("Expected open-ended window not to trigger before start")
	}

	rule.EntryStart = ""
	rule.EntryEnd = ""
	if ShouldTrigger(rule, at("2026-01-05", 9, 30), "") {
		t.Error("Expected no trigger when neither bound parses")
	}
}

func TestShouldTriggerWeekdayFilter(t *testing.T) {
	rule := baseRule()
	rule.Weekdays = []int{0, 2} // Monday, Wednesday

	if !ShouldTrigger(rule, at("2026-01-05", 9, 30), "") {
		t.Error("Expected trigger on Monday")
	}
	if ShouldTrigger(rule, at("2026-01-06", 9, 30), "") {
		t.Error("Expected no trigger on Tuesday")
	}
	if !ShouldTrigger(rule, at("2026-01-07", 9, 30), "") {
		t.Error("Expected trigger on Wednesday")
	}
}

func TestShouldTriggerDisabled(t *testing.T) {
	rule := baseRule()
	rule.Enabled = false
	if ShouldTrigger(rule, at("2026-01-05", 9, 30), "") {
		t.Error("Expected no trigger on a disabled rule")
	}
}

func TestRiskDatesAllow(t *testing.T) {
	risk := store.RiskConfig{StartDate: "2026-01-05", EndDate: "2026-01-09"}

	if riskDatesAllow(risk, at("2026-01-04", 9, 0)) {
		t.Error("Expected day before start to be outside the range")
	}
	if !riskDatesAllow(risk, at("2026-01-07", 9, 0)) {
		t.Error("Expected day inside the range to be allowed")
	}
	if riskDatesAllow(risk, at("2026-01-10", 9, 0)) {
		t.Error("Expected day after end to be outside the range")
	}
	if !riskDatesAllow(store.RiskConfig{}, at("2026-01-10", 9, 0)) {
		t.Error("Expected empty bounds to allow every day")
	}
}

func TestNextRunProjection(t *testing.T) {
	rule := baseRule()
	rule.Weekdays = []int{0} // Mondays only

	// Tuesday: the next Monday is 2026-01-12.
	next := NextRun(rule, at("2026-01-06", 12, 0), "")
	if next == nil {
		t.Fatal("Expected a projected next run")
	}
	if got := next.Format("2006-01-02 15:04"); got != "2026-01-12 09:00" {
		t.Errorf("Expected next run 2026-01-12 09:00, got %s", got)
	}

	// Monday before the window: today at 09:00.
	next = NextRun(rule, at("2026-01-05", 8, 0), "")
	if next == nil {
		t.Fatal("Expected a projected next run")
	}
	if got := next.Format("2006-01-02 15:04"); got != "2026-01-05 09:00" {
		t.Errorf("Expected next run 2026-01-05 09:00, got %s", got)
	}

	// Monday inside the window with today already run: next Monday.
	next = NextRun(rule, at("2026-01-05", 9, 30), "2026-01-05")
	if next == nil {
		t.Fatal("Expected a projected next run")
	}
	if got := next.Format("2006-01-02"); got != "2026-01-12" {
		t.Errorf("Expected next run on 2026-01-12, got %s", got)
	}

	rule.Enabled = false
	if NextRun(rule, at("2026-01-05", 8, 0), "") != nil {
		t.Error("Expected no projection for a disabled rule")
	}
}
