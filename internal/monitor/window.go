// This file implements the strategy pattern for budget windows. Each window
// kind knows how to turn "now" into the [start, end) span a check inspects.

package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	WindowDaily   = "daily"
	WindowWeekly  = "weekly"
	WindowMonthly = "monthly"
)

// WindowStrategy computes the span of a budget check. now carries the
// location whose calendar defines day boundaries.
type WindowStrategy interface {
	Bounds(now time.Time) (start, end time.Time)
}

// Labeler is implemented by windows that can name their span in alert text.
type Labeler interface {
	Label() string
}

func windowLabel(w WindowStrategy) string {
	if l, ok := w.(Labeler); ok {
		return l.Label()
	}
	return "in this window"
}

// DailyWindow spans local midnight to now.
type DailyWindow struct{}

func (DailyWindow) Bounds(now time.Time) (time.Time, time.Time) {
	return startOfDay(now), now
}

func (DailyWindow) Label() string { return "today" }

// WeeklyWindow spans the most recent Monday midnight to now.
type WeeklyWindow struct{}

func (WeeklyWindow) Bounds(now time.Time) (time.Time, time.Time) {
	offset := (int(now.Weekday()) + 6) % 7
	day := startOfDay(now)
	return time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, now.Location()), now
}

func (WeeklyWindow) Label() string { return "this week" }

// MonthlyWindow spans the first of the month to now.
type MonthlyWindow struct{}

func (MonthlyWindow) Bounds(now time.Time) (time.Time, time.Time) {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), now
}

func (MonthlyWindow) Label() string { return "this month" }

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

var (
	windowsMu sync.RWMutex
	windows   = map[string]WindowStrategy{
		WindowDaily:   DailyWindow{},
		WindowWeekly:  WeeklyWindow{},
		WindowMonthly: MonthlyWindow{},
	}
)

// GetWindowStrategy looks up a window by name. An empty name means daily.
func GetWindowStrategy(name string) (WindowStrategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = WindowDaily
	}
	windowsMu.RLock()
	defer windowsMu.RUnlock()
	w, ok := windows[name]
	if !ok {
		return nil, fmt.Errorf("unknown budget window: %s", name)
	}
	return w, nil
}

// RegisterWindowStrategy adds or replaces a named window.
func RegisterWindowStrategy(name string, w WindowStrategy) {
	windowsMu.Lock()
	defer windowsMu.Unlock()
	windows[strings.ToLower(strings.TrimSpace(name))] = w
}

// WindowNames lists the registered window names.
func WindowNames() []string {
	windowsMu.RLock()
	defer windowsMu.RUnlock()
	names := make([]string, 0, len(windows))
	for name := range windows {
		names = append(names, name)
	}
	return names
}
