package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 20*time.Millisecond)
	assert.Less(t, d, 5*time.Second)
}

func TestTimerObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_sync_duration_seconds",
		Help: "test",
	})

	timer := NewTimer()
	timer.ObserveDuration(h)
	timer.ObserveDuration(h)

	assert.Equal(t, 1, testutil.CollectAndCount(h))
}

func TestTimerObserveDurationVec(t *testing.T) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_resolver_attempt_duration_seconds",
		Help: "test",
	}, []string{"method"})

	timer := NewTimer()
	timer.ObserveDurationVec(h, "standard")
	timer.ObserveDurationVec(h, "proxy")
	timer.ObserveDurationVec(h, "proxy")

	assert.Equal(t, 2, testutil.CollectAndCount(h))
}
