package publish

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_ReportsAsyncFailures(t *testing.T) {
	w := newWriter([]string{"localhost:9092"}, "funnel-events")
	assert.True(t, w.Async)
	require.NotNil(t, w.Completion)

	before := testutil.ToFloat64(publishFailures)
	w.Completion([]kafka.Message{{Key: []byte("s1")}, {Key: []byte("s2")}}, errors.New("leader not available"))
	assert.Equal(t, before+2, testutil.ToFloat64(publishFailures))

	w.Completion([]kafka.Message{{Key: []byte("s3")}}, nil)
	assert.Equal(t, before+2, testutil.ToFloat64(publishFailures), "delivered batches are not failures")
}
