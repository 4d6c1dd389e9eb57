package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "zero never expires", expiresAt: time.Time{}, want: false},
		{name: "future", expiresAt: now.Add(time.Minute), want: false},
		{name: "exactly now", expiresAt: now, want: false},
		{name: "past", expiresAt: now.Add(-time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt, now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOlderThan(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 300 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "fresh", elapsed: 0, want: false},
		{name: "299s", elapsed: 299 * time.Second, want: false},
		{name: "exactly 300s", elapsed: 300 * time.Second, want: false},
		{name: "301s", elapsed: 301 * time.Second, want: true},
		{name: "clock went backwards", elapsed: -time.Minute, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOlderThan(created, maxAge, created.Add(tt.elapsed)); got != tt.want {
				t.Errorf("IsOlderThan(+%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}
