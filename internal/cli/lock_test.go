package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/store/storetest"
)

func TestPrintLocks(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	require.NoError(t, printLocks(ctx, s, &out, "sleep", now))
	assert.Equal(t, "No locks for page 'sleep'.\n", out.String())

	insertLock(t, s, "sleep", "a", now.Add(-48*time.Hour), 24*time.Hour)
	insertLock(t, s, "sleep", "b", now.Add(-time.Hour), 0)

	out.Reset()
	require.NoError(t, printLocks(ctx, s, &out, "sleep", now))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `sleep-cta-1\s+b\s+AUTOLOCK_WINNER\s+2026-03-01T11:00:00Z\s+never\s+valid$`, lines[1])
	assert.Regexp(t, `sleep-cta-1\s+a\s+AUTOLOCK_WINNER\s+2026-02-27T12:00:00Z\s+2026-02-28T12:00:00Z\s+expired$`, lines[2])
}

func TestClearLocks(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	now := time.Now()

	insertLock(t, s, "sleep", "a", now.Add(-48*time.Hour), time.Hour)
	insertLock(t, s, "sleep", "b", now, 0)
	insertLock(t, s, "joint", "a", now, 0)

	var out bytes.Buffer
	require.NoError(t, clearLocks(ctx, s, &out, "sleep"))
	assert.Equal(t, "Deleted 2 lock(s) for page 'sleep'\n", out.String())

	locks, err := s.ListLocks(ctx, "sleep")
	require.NoError(t, err)
	assert.Empty(t, locks)

	locks, err = s.ListLocks(ctx, "joint")
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}
