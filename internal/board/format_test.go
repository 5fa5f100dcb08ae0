package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-(2*time.Hour + 15*time.Minute)), "2h 15m ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAge(tt.t, now))
		})
	}
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "0/0", FormatProgress(0, 0))
	assert.Equal(t, "1/4 (25%)", FormatProgress(1, 4))
	assert.Equal(t, "3/3 (100%)", FormatProgress(3, 3))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.5, Ratio(1, 2))
	assert.Equal(t, 1.0, Ratio(5, 2))
}
