package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystop/internal/domain"
)

func TestCollectorCountsEvents(t *testing.T) {
	c := NewCollector(82, 33*time.Second)
	d := 412.5

	for _, ev := range []domain.TrackerEvent{
		{Type: domain.EventLoginFailed, State: domain.StateAwaitingBus},
		{Type: domain.EventLoginFailed, State: domain.StateAwaitingBus},
		{Type: domain.EventStateChanged, State: domain.StateTracking},
		{Type: domain.EventPosition, State: domain.StateTracking, DistanceMeters: &d},
		{Type: domain.EventPosition, State: domain.StateTracking},
		{Type: domain.EventPollFailed, State: domain.StateTracking},
		{Type: domain.EventStateChanged, State: domain.StateAwaitingBus},
	} {
		c.Broadcast(ev)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(c.LoginAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.LoginFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollFailures))
	assert.Equal(t, 412.5, testutil.ToFloat64(c.DistanceMeters))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.State.WithLabelValues(string(domain.StateAwaitingBus))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.State.WithLabelValues(string(domain.StateTracking))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Arrivals))

	c.Broadcast(domain.TrackerEvent{Type: domain.EventArrived, State: domain.StateArrived})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Arrivals))
}

func TestCollectorStaticGauges(t *testing.T) {
	c := NewCollector(82, 33*time.Second)
	assert.Equal(t, 82.0, testutil.ToFloat64(c.ThresholdMeters))
	assert.Equal(t, 33.0, testutil.ToFloat64(c.PollInterval))

	c.NATSSetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector(82, 33*time.Second)
	c.NATSPublishedInc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "mystop_nats_published_total 1")
	assert.Contains(t, body, `mystop_tracker_state{state="awaiting_bus"} 1`)
}
