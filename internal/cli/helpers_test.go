package cli

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/config"
	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

// useConfig installs a loaded default config for the duration of a test.
func useConfig(t *testing.T, db string) *config.Config {
	t.Helper()

	vp := config.New()
	vp.Set("db", db)
	c, err := config.Load(vp, "")
	require.NoError(t, err)

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return c
}

func seedPolicy(t *testing.T, s *store.SQLStore, page string, lock bool) {
	t.Helper()

	minEnters, minLift := 2, 0.1
	_, err := s.UpsertExperiment(context.Background(), &store.Experiment{
		Page:                page,
		TestID:              page + "-cta-1",
		Variants:            `["a","b"]`,
		MinEntersPerVariant: &minEnters,
		MinAbsLift:          &minLift,
		LockEnabled:         lock,
		Active:              true,
	})
	require.NoError(t, err)
}

// seedTraffic records n test sessions per variant; every "b" session clicks.
func seedTraffic(t *testing.T, s *store.SQLStore, page string, n int) {
	t.Helper()

	rec := experiment.NewRecorder(s, nil)
	ctx := context.Background()
	for _, variant := range []string{"a", "b"} {
		for i := 0; i < n; i++ {
			sid := fmt.Sprintf("%s-%s-%d", page, variant, i)
			_, err := rec.Record(ctx, experiment.RawEvent{SessionID: sid, Page: page, EventName: store.EventEnterPage, Variant: variant, IsTest: true})
			require.NoError(t, err)
			if variant == "b" {
				_, err = rec.Record(ctx, experiment.RawEvent{SessionID: sid, Page: page, EventName: store.EventCTAClick, Variant: variant, IsTest: true})
				require.NoError(t, err)
			}
		}
	}
}

func insertLock(t *testing.T, s *store.SQLStore, page, winner string, lockedAt time.Time, ttl time.Duration) {
	t.Helper()

	lock := &store.WinnerLock{Page: page, TestID: page + "-cta-1", Winner: winner, Reason: experiment.ReasonAutolockWinner, LockedAt: lockedAt}
	if ttl > 0 {
		exp := lockedAt.Add(ttl)
		lock.ExpiresAt = &exp
	}
	_, err := s.InsertLock(context.Background(), lock)
	require.NoError(t, err)
}
