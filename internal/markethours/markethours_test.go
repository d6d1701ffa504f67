package markethours

import (
	"testing"
	"time"
)

func TestInWindow(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday window open", time.Date(2026, 8, 26, 7, 0, 0, 0, KST), true},
		{"weekday mid-session", time.Date(2026, 8, 26, 11, 30, 0, 0, KST), true},
		{"weekday last minute", time.Date(2026, 8, 26, 15, 59, 0, 0, KST), true},
		{"weekday window closed", time.Date(2026, 8, 26, 16, 0, 0, 0, KST), false},
		{"weekday pre-window", time.Date(2026, 8, 26, 6, 59, 0, 0, KST), false},
		{"saturday", time.Date(2026, 8, 29, 10, 0, 0, 0, KST), false},
		{"sunday", time.Date(2026, 8, 30, 10, 0, 0, 0, KST), false},
		{"utc conversion", time.Date(2026, 8, 26, 1, 0, 0, 0, time.UTC), true}, // 10:00 KST
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(tt.t); got != tt.want {
				t.Errorf("InWindow(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestCadence(t *testing.T) {
	market := 10 * time.Minute
	off := 30 * time.Minute

	in := time.Date(2026, 8, 26, 10, 0, 0, 0, KST)
	if got := Cadence(in, market, off); got != market {
		t.Errorf("Cadence in window = %v, want %v", got, market)
	}

	out := time.Date(2026, 8, 26, 22, 0, 0, 0, KST)
	if got := Cadence(out, market, off); got != off {
		t.Errorf("Cadence off hours = %v, want %v", got, off)
	}
}
