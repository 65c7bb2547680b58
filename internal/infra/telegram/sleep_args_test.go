package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSleepArg(t *testing.T) {
	now := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		arg     string
		want    time.Time
		wantErr bool
	}{
		{name: "duration", arg: "1h30m", want: now.Add(90 * time.Minute)},
		{name: "clock later today", arg: "18:45", want: time.Date(2024, 5, 10, 18, 45, 0, 0, time.UTC)},
		{name: "clock tomorrow", arg: "09:00", want: time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC)},
		{name: "clock equal to now rolls over", arg: "14:00", want: time.Date(2024, 5, 11, 14, 0, 0, 0, time.UTC)},
		{name: "rfc3339", arg: "2024-05-12T08:00:00Z", want: time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC)},
		{name: "negative duration", arg: "-5m", wantErr: true},
		{name: "garbage", arg: "tomorrow-ish", wantErr: true},
		{name: "empty", arg: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSleepArg(tt.arg, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestFormatUntil(t *testing.T) {
	now := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, "now", formatUntil(now.Add(-time.Minute), now))
	assert.Equal(t, "in 1h30m (2024-05-10 15:30 UTC)", formatUntil(now.Add(90*time.Minute), now))
	assert.Equal(t, "in 5m (2024-05-10 14:05 UTC)", formatUntil(now.Add(5*time.Minute), now))
}
