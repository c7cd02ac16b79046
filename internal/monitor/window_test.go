package monitor

import (
	"testing"
	"time"
)

func TestWindowStrategies(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Wednesday
	at := time.Date(2024, 6, 5, 1, 15, 0, 0, rome)

	tests := []struct {
		name string
		want time.Time
	}{
		{WindowDaily, time.Date(2024, 6, 5, 0, 0, 0, 0, rome)},
		{WindowWeekly, time.Date(2024, 6, 3, 0, 0, 0, 0, rome)},
		{WindowMonthly, time.Date(2024, 6, 1, 0, 0, 0, 0, rome)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := GetWindowStrategy(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			start, end := w.Bounds(at)
			if !start.Equal(tt.want) {
				t.Errorf("start = %v, want %v", start, tt.want)
			}
			if !end.Equal(at) {
				t.Errorf("end = %v, want %v", end, at)
			}
		})
	}
}

func TestWeeklyWindowOnSunday(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)
	start, _ := WeeklyWindow{}.Bounds(sunday)
	if want := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestGetWindowStrategyDefaultsToDaily(t *testing.T) {
	w, err := GetWindowStrategy("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := w.(DailyWindow); !ok {
		t.Errorf("expected DailyWindow, got %T", w)
	}
	if _, err := GetWindowStrategy("hourly"); err == nil {
		t.Error("expected error for unknown window")
	}
}

type fixedWindow struct{ span time.Duration }

func (f fixedWindow) Bounds(now time.Time) (time.Time, time.Time) {
	return now.Add(-f.span), now
}

func TestRegisterWindowStrategy(t *testing.T) {
	RegisterWindowStrategy("Rolling24h", fixedWindow{span: 24 * time.Hour})
	w, err := GetWindowStrategy("rolling24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	start, _ := w.Bounds(at)
	if !start.Equal(at.Add(-24 * time.Hour)) {
		t.Errorf("unexpected start %v", start)
	}
}
