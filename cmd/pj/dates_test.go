package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 30, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)},
		{"today", time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)},
		{"2025-12-31", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseDate("qwzx", now)
	assert.Error(t, err)
}
