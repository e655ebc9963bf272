package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsSince(t *testing.T) {
	now := time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
		ok     bool
	}{
		{"", time.Date(2024, 5, 13, 15, 30, 0, 0, time.UTC), true},
		{"daily", time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), true},
		{"weekly", time.Date(2024, 6, 5, 15, 30, 0, 0, time.UTC), true},
		{"monthly", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"yearly", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"hourly", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, ok := statsSince(tt.period, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
