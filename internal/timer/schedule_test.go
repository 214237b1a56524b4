package timer

import (
	"testing"
	"time"
)

func TestNextDailyRun(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2025, 7, 7, 3, 0, 0, 0, loc), time.Date(2025, 7, 7, 4, 30, 0, 0, loc)},
		{"already passed", time.Date(2025, 7, 7, 4, 30, 0, 0, loc), time.Date(2025, 7, 8, 4, 30, 0, 0, loc)},
		{"end of month", time.Date(2025, 7, 31, 22, 0, 0, 0, loc), time.Date(2025, 8, 1, 4, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDailyRun(tt.now, "04:30")
			if err != nil {
				t.Fatalf("NextDailyRun failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := NextDailyRun(time.Now(), "4.30"); err == nil {
		t.Error("expected error for invalid clock")
	}
}

func TestNextIntervalRun(t *testing.T) {
	loc := time.UTC
	day := func(d, h, m int) time.Time { return time.Date(2025, 7, d, h, m, 0, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before range", day(7, 2, 0), day(7, 6, 30)},
		{"inside range", day(7, 10, 15), day(7, 12, 15)},
		{"past range", day(7, 18, 0), day(8, 6, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextIntervalRun(tt.now, 2*time.Hour, "04:30", "19:00")
			if err != nil {
				t.Fatalf("NextIntervalRun failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := NextIntervalRun(day(7, 10, 0), 0, "04:30", "19:00"); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := NextIntervalRun(day(7, 10, 0), time.Hour, "19:00", "04:30"); err == nil {
		t.Error("expected error for empty range")
	}
}
