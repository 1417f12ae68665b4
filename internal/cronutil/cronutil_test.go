package cronutil_test

import (
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/cronutil"
	"github.com/stretchr/testify/require"
)

func TestIsValid(t *testing.T) {
	cases := map[string]bool{
		"* * * * *":     true,
		"0 8 * * *":     true,
		"*/5 9-17 * * 1-5": true,
		"not a cron":    false,
		"60 * * * *":    false,
	}
	for expr, want := range cases {
		require.Equal(t, want, cronutil.IsValid(expr), expr)
	}
}

func TestNextAfterStrictlyGreater(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC)
	next, err := cronutil.NextAfter("* * * * *", now)
	require.NoError(t, err)
	require.True(t, next.After(now))
	require.Equal(t, time.Date(2024, 1, 1, 12, 2, 0, 0, time.UTC), next)
}

func TestNextAfterInvalid(t *testing.T) {
	_, err := cronutil.NextAfter("garbage", time.Now())
	require.Error(t, err)
}
