package experiment

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"github.com/rs/zerolog/log"

	"github.com/headline-goat/funnel-goat/internal/store"
)

const (
	EnterBucket   = 10 * time.Second
	DefaultBucket = time.Second

	bucketLayout = "2006-01-02T15:04:05.000Z"
)

// RawEvent is an inbound funnel event before validation.
type RawEvent struct {
	SessionID  string
	Page       string
	EventName  string
	Variant    string
	IsTest     bool
	ClientTime *time.Time
	Metadata   map[string]any
	UserAgent  string
}

// Result is the outcome of Record. Duplicate events are still successes.
type Result struct {
	Event     *store.Event
	Duplicate bool
}

// EventWriter is the append-only event log.
type EventWriter interface {
	InsertEvent(ctx context.Context, e *store.Event) error
}

// Publisher mirrors stored events to an external stream.
type Publisher interface {
	Publish(ctx context.Context, e *store.Event) error
}

type Recorder struct {
	events    EventWriter
	publisher Publisher

	// Clock supplies server time when an event carries none.
	Clock func() time.Time
	// Timeout bounds each Record call when positive.
	Timeout time.Duration

	pageLabels  labelSet
	eventLabels labelSet
}

// NewRecorder returns a recorder writing to events. publisher may be nil.
func NewRecorder(events EventWriter, publisher Publisher) *Recorder {
	return &Recorder{
		events:      events,
		publisher:   publisher,
		Clock:       time.Now,
		pageLabels:  newLabelSet(),
		eventLabels: newLabelSet(store.EventEnterPage, store.EventCTAClick, store.EventComplete),
	}
}

// TrackLabels lets the given pages and event names appear as metric labels.
// Anything else is counted under "other". Call it before serving traffic.
func (r *Recorder) TrackLabels(pages, events []string) {
	r.pageLabels.add(pages...)
	r.eventLabels.add(events...)
}

func (r *Recorder) count(page, name, outcome string) {
	eventsRecorded.WithLabelValues(r.pageLabels.value(page), r.eventLabels.value(name), outcome).Inc()
}

// Record validates, buckets and stores one event. Retries that land in the
// same bucket produce the same dedup key and come back as Duplicate.
func (r *Recorder) Record(ctx context.Context, raw RawEvent) (*Result, error) {
	sid := strings.TrimSpace(raw.SessionID)
	page := NormalizePage(raw.Page)
	name := strings.TrimSpace(raw.EventName)

	var verr *ValidationError
	switch {
	case sid == "":
		verr = &ValidationError{Field: "session_id"}
	case page == "":
		verr = &ValidationError{Field: "page"}
	case name == "":
		verr = &ValidationError{Field: "event_name"}
	}
	if verr != nil {
		r.count(page, name, "invalid")
		return nil, verr
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	occurred := r.Clock()
	if raw.ClientTime != nil && !raw.ClientTime.IsZero() {
		occurred = *raw.ClientTime
	}
	occurred = occurred.UTC()
	bucket := BucketTime(name, occurred)

	var variant *string
	if v := strings.TrimSpace(raw.Variant); v != "" {
		variant = &v
	}

	e := &store.Event{
		EventID:    uuid.NewString(),
		SessionID:  sid,
		Page:       page,
		EventName:  name,
		Variant:    variant,
		IsTest:     raw.IsTest,
		OccurredAt: occurred,
		BucketTime: bucket,
		DedupKey:   DedupKey(sid, page, name, variant, raw.IsTest, bucket),
		Metadata:   raw.Metadata,
		UserAgent:  raw.UserAgent,
		DeviceType: DeviceType(raw.UserAgent),
	}

	err := r.events.InsertEvent(ctx, e)
	if errors.Is(err, store.ErrConflict) {
		r.count(page, name, "duplicate")
		return &Result{Event: e, Duplicate: true}, nil
	}
	if err != nil {
		r.count(page, name, "error")
		return nil, &StorageError{Op: "insert event", Err: err}
	}
	r.count(page, name, "stored")

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.count(page, name, "publish_error")
			log.Warn().Err(err).Str("event_id", e.EventID).Msg("failed to publish event")
		}
	}

	return &Result{Event: e}, nil
}

// NormalizePage trims and lower-cases a page key.
func NormalizePage(page string) string {
	return strings.ToLower(strings.TrimSpace(page))
}

// BucketWidth is 10s for page entries and 1s for everything else.
func BucketWidth(eventName string) time.Duration {
	if eventName == store.EventEnterPage {
		return EnterBucket
	}
	return DefaultBucket
}

// BucketTime floors t to the bucket width of eventName, in UTC.
func BucketTime(eventName string, t time.Time) time.Time {
	w := BucketWidth(eventName).Milliseconds()
	ms := t.UnixMilli()
	floored := ms / w * w
	if ms < 0 && ms%w != 0 {
		floored -= w
	}
	return time.UnixMilli(floored).UTC()
}

// DedupKey is the hex SHA-1 of the event identity within its bucket.
func DedupKey(sid, page, eventName string, variant *string, isTest bool, bucket time.Time) string {
	v := ""
	if variant != nil {
		v = *variant
	}
	flag := "0"
	if isTest {
		flag = "1"
	}

	raw := strings.Join([]string{sid, page, eventName, v, flag, bucket.UTC().Format(bucketLayout)}, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DeviceType classifies a User-Agent as mobile, bot or desktop. An empty
// header yields "".
func DeviceType(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	if parsed.Mobile() {
		return "mobile"
	}
	return "desktop"
}
