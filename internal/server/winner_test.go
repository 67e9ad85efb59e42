package server_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/server"
	"github.com/headline-goat/funnel-goat/internal/store"
)

// seedTraffic posts test traffic where variant b converts every session and
// variant a none.
func seedTraffic(t *testing.T, srv *server.Server, page string, perVariant int) {
	t.Helper()
	for i := 0; i < perVariant; i++ {
		for _, v := range []string{"a", "b"} {
			sid := fmt.Sprintf("%s-%d", v, i)
			w := do(t, srv, http.MethodPost, "/api/event",
				fmt.Sprintf(`{"sid":%q,"page":%q,"event_name":"enter_page","variant":%q,"is_test":true}`, sid, page, v))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			if v == "b" {
				w = do(t, srv, http.MethodPost, "/api/event",
					fmt.Sprintf(`{"sid":%q,"page":%q,"event_name":"cta_click","variant":"b","is_test":true}`, sid, page))
				require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			}
		}
	}
}

func TestWinner_MissingPage(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/cta-winner", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required param: page", decode(t, w)["error"])
}

func TestWinner_NoExperiment(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/cta-winner?page=sleep", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["has_active_experiment"])
	assert.Equal(t, false, body["winner_locked"])
	assert.Nil(t, body["winner"])
	assert.Equal(t, "NO_ACTIVE_EXPERIMENT", body["reason"])
}

func TestWinner_NoWinnerYet(t *testing.T) {
	srv, s := setupTestServer(t)
	seedExperiment(t, s, "sleep", true)

	w := do(t, srv, http.MethodGet, "/api/cta-winner?page=SLEEP", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "sleep", body["page"])
	assert.Equal(t, "sleep-cta", body["test_id"])
	assert.Equal(t, true, body["has_active_experiment"])
	assert.Nil(t, body["winner"])
	assert.Equal(t, "MIN_ENTERS_PER_VARIANT_NOT_MET", body["reason"])
	assert.Equal(t, []any{}, body["metrics"])
	assert.Contains(t, body, "debug")
	assert.Contains(t, body, "policy")
}

func TestWinner_SelectsAndLocks(t *testing.T) {
	srv, s := setupTestServer(t)
	seedExperiment(t, s, "sleep", true)
	seedTraffic(t, srv, "sleep", 3)

	w := do(t, srv, http.MethodGet, "/api/cta-winner?page=sleep", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "b", body["winner"])
	assert.Equal(t, "WINNER_SELECTED", body["reason"])
	assert.Equal(t, true, body["winner_locked"])
	lockWrite, ok := body["lock_write"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, lockWrite["ok"])
	assert.Equal(t, string(store.WriteProfileFull), lockWrite["profile"])

	// Second call is served from the lock
	w = do(t, srv, http.MethodGet, "/api/cta-winner?page=sleep", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "b", body["winner"])
	assert.Equal(t, true, body["winner_locked"])
	lock, ok := body["lock"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AUTOLOCK_WINNER", lock["reason"])

	locks, err := s.ListLocks(context.Background(), "sleep")
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}

func TestWinner_NoLockWhenDisabled(t *testing.T) {
	srv, s := setupTestServer(t)
	seedExperiment(t, s, "joint", false)
	seedTraffic(t, srv, "joint", 3)

	w := do(t, srv, http.MethodGet, "/api/cta-winner?page=joint", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "b", body["winner"])
	assert.Equal(t, false, body["winner_locked"])
	assert.NotContains(t, body, "lock_write")
}

func TestWinner_StorageFailure(t *testing.T) {
	srv, s := setupTestServer(t)
	require.NoError(t, s.Close())

	w := do(t, srv, http.MethodGet, "/api/cta-winner?page=sleep", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to read active experiment", decode(t, w)["error"])
}
