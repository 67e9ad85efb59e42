package experiment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

type fakeEvents struct {
	byKey map[string]*store.Event
	err   error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{byKey: make(map[string]*store.Event)}
}

func (f *fakeEvents) InsertEvent(_ context.Context, e *store.Event) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byKey[e.DedupKey]; ok {
		return store.ErrConflict
	}
	e.ID = int64(len(f.byKey) + 1)
	f.byKey[e.DedupKey] = e
	return nil
}

type fakePublisher struct {
	published []*store.Event
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, e *store.Event) error {
	f.published = append(f.published, e)
	return f.err
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) *time.Time {
	t := t0.Add(offset)
	return &t
}

func TestRecorder_Validation(t *testing.T) {
	r := experiment.NewRecorder(newFakeEvents(), nil)

	tests := []struct {
		name  string
		raw   experiment.RawEvent
		field string
	}{
		{"missing session", experiment.RawEvent{Page: "sleep", EventName: "enter_page"}, "session_id"},
		{"blank page", experiment.RawEvent{SessionID: "s1", Page: "  ", EventName: "enter_page"}, "page"},
		{"missing event", experiment.RawEvent{SessionID: "s1", Page: "sleep"}, "event_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Record(context.Background(), tt.raw)
			var ve *experiment.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRecorder_NormalizesAndEnriches(t *testing.T) {
	events := newFakeEvents()
	r := experiment.NewRecorder(events, nil)

	res, err := r.Record(context.Background(), experiment.RawEvent{
		SessionID:  "s1",
		Page:       "  Sleep ",
		EventName:  "cta_click",
		Variant:    "b",
		IsTest:     true,
		ClientTime: at(1500 * time.Millisecond),
		Metadata:   map[string]any{"cta": "hero"},
		UserAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	e := res.Event
	assert.Equal(t, "sleep", e.Page)
	require.NotNil(t, e.Variant)
	assert.Equal(t, "b", *e.Variant)
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, "mobile", e.DeviceType)
	assert.Equal(t, t0.Add(time.Second), e.BucketTime)
	assert.Len(t, e.DedupKey, 40)
	assert.Len(t, events.byKey, 1)
}

func TestRecorder_RetryIsIdempotent(t *testing.T) {
	events := newFakeEvents()
	r := experiment.NewRecorder(events, nil)

	raw := experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: "enter_page", Variant: "a", ClientTime: at(0)}

	first, err := r.Record(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := r.Record(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Event.DedupKey, second.Event.DedupKey)
	assert.Len(t, events.byKey, 1)
}

func TestRecorder_Bucketing(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		first     time.Duration
		second    time.Duration
		wantDupes bool
	}{
		{"entries 3s apart share a bucket", store.EventEnterPage, 1 * time.Second, 4 * time.Second, true},
		{"entries across a 10s boundary", store.EventEnterPage, 9 * time.Second, 12 * time.Second, false},
		{"clicks within the same second", store.EventCTAClick, 100 * time.Millisecond, 900 * time.Millisecond, true},
		{"clicks 1.5s apart", store.EventCTAClick, 0, 1500 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := experiment.NewRecorder(newFakeEvents(), nil)
			raw := experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: tt.event, Variant: "a"}

			raw.ClientTime = at(tt.first)
			_, err := r.Record(context.Background(), raw)
			require.NoError(t, err)

			raw.ClientTime = at(tt.second)
			res, err := r.Record(context.Background(), raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDupes, res.Duplicate)
		})
	}
}

func TestRecorder_UsesClockWithoutClientTime(t *testing.T) {
	r := experiment.NewRecorder(newFakeEvents(), nil)
	r.Clock = func() time.Time { return t0.Add(7 * time.Second) }

	res, err := r.Record(context.Background(), experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: "enter_page"})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(7*time.Second), res.Event.OccurredAt)
	assert.Equal(t, t0, res.Event.BucketTime)
	assert.Nil(t, res.Event.Variant)
}

func TestRecorder_StorageError(t *testing.T) {
	events := newFakeEvents()
	events.err = errors.New("disk full")
	r := experiment.NewRecorder(events, nil)

	_, err := r.Record(context.Background(), experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: "enter_page"})
	require.Error(t, err)
	assert.True(t, experiment.IsStorage(err))
	assert.False(t, experiment.IsValidation(err))
}

func TestRecorder_PublishesStoredEventsOnly(t *testing.T) {
	pub := &fakePublisher{}
	r := experiment.NewRecorder(newFakeEvents(), pub)
	raw := experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: "cta_click", ClientTime: at(0)}

	_, err := r.Record(context.Background(), raw)
	require.NoError(t, err)
	_, err = r.Record(context.Background(), raw)
	require.NoError(t, err)

	assert.Len(t, pub.published, 1)
}

func TestRecorder_PublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := experiment.NewRecorder(newFakeEvents(), pub)

	res, err := r.Record(context.Background(), experiment.RawEvent{SessionID: "s1", Page: "sleep", EventName: "cta_click"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestBucketTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 19, 999_000_000, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC), experiment.BucketTime(store.EventEnterPage, ts))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 19, 0, time.UTC), experiment.BucketTime(store.EventCTAClick, ts))
}

func TestDedupKey(t *testing.T) {
	bucket := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	v := "a"

	key := experiment.DedupKey("s1", "sleep", "enter_page", &v, true, bucket)
	assert.Equal(t, key, experiment.DedupKey("s1", "sleep", "enter_page", &v, true, bucket))

	// sha1("s1|sleep|enter_page|a|1|2026-03-01T12:00:10.000Z")
	assert.Equal(t, "9840f360f3814ba84b928224bd47d85c5627fd31", key)
	assert.NotEqual(t, key, experiment.DedupKey("s1", "sleep", "enter_page", &v, false, bucket))
	assert.NotEqual(t, key, experiment.DedupKey("s1", "sleep", "enter_page", nil, true, bucket))
	assert.NotEqual(t, key, experiment.DedupKey("s2", "sleep", "enter_page", &v, true, bucket))
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, "", experiment.DeviceType(""))
	assert.Equal(t, "desktop", experiment.DeviceType("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"))
	assert.Equal(t, "bot", experiment.DeviceType("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
}
