package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

const maxEventBody = 64 << 10

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	WriteProfile     string `json:"write_profile"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		WriteProfile:  string(s.store.WriteProfile()),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	status := http.StatusOK
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		log.Error().Err(err).Msg("health check failed")
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	resp.ExperimentsCount = len(exps)

	writeJSON(w, status, resp)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(r.Context(), clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "Too many requests"})
		return
	}

	raw, err := decodeEvent(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if raw.UserAgent == "" {
		raw.UserAgent = r.UserAgent()
	}

	res, err := s.recorder.Record(r.Context(), raw)
	if experiment.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("page", raw.Page).Msg("failed to record event")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "DB insert failed", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": res.Duplicate})
}

type winnerResponse struct {
	OK                  bool                   `json:"ok"`
	Page                string                 `json:"page"`
	TestID              *string                `json:"test_id,omitempty"`
	HasActiveExperiment bool                   `json:"has_active_experiment"`
	WinnerLocked        bool                   `json:"winner_locked"`
	Winner              *string                `json:"winner"`
	Reason              string                 `json:"reason,omitempty"`
	Lock                *store.WinnerLock      `json:"lock,omitempty"`
	Policy              *experiment.Policy     `json:"policy,omitempty"`
	Metrics             *[]store.VariantMetric `json:"metrics,omitempty"`
	Debug               *experiment.PickDebug  `json:"debug,omitempty"`
	LockWrite           *experiment.LockWrite  `json:"lock_write,omitempty"`
}

func (s *Server) handleWinner(w http.ResponseWriter, r *http.Request) {
	page := experiment.NormalizePage(r.URL.Query().Get("page"))
	if page == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Missing required param: page"})
		return
	}

	d, err := s.engine.Decide(r.Context(), page)
	if experiment.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("page", page).Msg("failed to decide winner")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": storageMessage(err), "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, newWinnerResponse(d))
}

func newWinnerResponse(d *experiment.Decision) winnerResponse {
	resp := winnerResponse{
		OK:                  true,
		Page:                d.Page,
		HasActiveExperiment: d.HasExperiment(),
		Reason:              d.Reason,
		Policy:              d.Policy,
	}
	if d.TestID != "" {
		resp.TestID = &d.TestID
	}
	if d.Winner != "" {
		resp.Winner = &d.Winner
	}

	switch d.State {
	case experiment.StateLocked:
		resp.WinnerLocked = true
		resp.Lock = d.Lock
	case experiment.StateWinnerSelected:
		resp.Metrics = &d.Metrics
		resp.LockWrite = d.LockWrite
		resp.WinnerLocked = d.LockWrite != nil && d.LockWrite.OK
	case experiment.StateNoWinner:
		resp.Metrics = &d.Metrics
		resp.Debug = d.Debug
	}

	return resp
}

func storageMessage(err error) string {
	var se *experiment.StorageError
	if !errors.As(err, &se) {
		return "Unknown error"
	}
	switch se.Op {
	case "read policy":
		return "Failed to read active experiment"
	case "read lock":
		return "Failed to read lock"
	case "read metrics":
		return "Failed to read metrics"
	default:
		return "Storage failure"
	}
}

// decodeEvent collapses the accepted field aliases into a RawEvent. Scalar
// identifiers may arrive as strings or numbers.
func decodeEvent(r io.Reader) (experiment.RawEvent, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return experiment.RawEvent{}, errors.New("invalid JSON body")
	}

	raw := experiment.RawEvent{
		SessionID: firstScalar(body, "sid", "session_id"),
		Page:      firstScalar(body, "page", "category"),
		EventName: firstScalar(body, "event_name", "action"),
		Variant:   firstScalar(body, "variant"),
		IsTest:    truthy(body["is_test"]),
		UserAgent: firstScalar(body, "ua"),
	}

	if ts, ok := body["ts"]; ok && !isNull(ts) {
		t, err := parseTimestamp(ts)
		if err != nil {
			return raw, err
		}
		raw.ClientTime = &t
	}

	if meta, ok := body["meta"]; ok && !isNull(meta) {
		if err := json.Unmarshal(meta, &raw.Metadata); err != nil {
			return raw, errors.New("meta must be an object")
		}
	}

	return raw, nil
}

// firstScalar returns the first non-null key among keys as a string.
func firstScalar(body map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := body[k]
		if !ok || isNull(v) {
			continue
		}
		return scalarString(v)
	}
	return ""
}

func scalarString(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func truthy(raw json.RawMessage) bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x == "true" || x == "1"
	default:
		return false
	}
}

// parseTimestamp accepts an RFC 3339 string or Unix milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, errors.New("invalid ts")
	}
	switch x := v.(type) {
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, errors.New("invalid ts: expected RFC 3339 or Unix milliseconds")
		}
		return t, nil
	default:
		return time.Time{}, errors.New("invalid ts")
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
