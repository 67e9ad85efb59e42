package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/server"
	"github.com/headline-goat/funnel-goat/internal/store"
	"github.com/headline-goat/funnel-goat/internal/store/storetest"
)

func setupTestServer(t *testing.T, opts ...func(*server.Options)) (*server.Server, *store.SQLStore) {
	t.Helper()

	s := storetest.Open(t)
	o := server.Options{
		FunnelSteps:   []string{"sleep", "joint", "fatigue", "bp"},
		CompleteEvent: "complete",
	}
	for _, fn := range opts {
		fn(&o)
	}
	return server.New(s, o), s
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func seedExperiment(t *testing.T, s *store.SQLStore, page string, lock bool) {
	t.Helper()
	_, err := s.UpsertExperiment(context.Background(), &store.Experiment{
		Page:                page,
		TestID:              page + "-cta",
		Variants:            `["a","b"]`,
		MinEntersPerVariant: intPtr(2),
		MinAbsLift:          floatPtr(0.1),
		LockEnabled:         lock,
		LockTTLHours:        intPtr(24),
		Active:              true,
	})
	require.NoError(t, err)
}

func do(t *testing.T, srv *server.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
