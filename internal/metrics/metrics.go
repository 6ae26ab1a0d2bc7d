package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mystop/internal/domain"
)

var trackerStates = []domain.TrackerState{
	domain.StateAwaitingBus,
	domain.StateTracking,
	domain.StateArrived,
}

// Collector turns tracker events into Prometheus series.
type Collector struct {
	reg *prometheus.Registry

	LoginAttempts prometheus.Counter
	LoginFailures prometheus.Counter
	Samples       prometheus.Counter
	PollFailures  prometheus.Counter
	Arrivals      prometheus.Counter

	DistanceMeters prometheus.Gauge
	State          *prometheus.GaugeVec // one-hot over tracker states

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	ThresholdMeters prometheus.Gauge
	PollInterval    prometheus.Gauge // seconds
}

func NewCollector(thresholdMeters float64, pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LoginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_login_attempts_total",
			Help: "Total login attempts against the school service.",
		}),
		LoginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_login_failures_total",
			Help: "Logins that did not yield an active bus.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_position_samples_total",
			Help: "Total bus position samples received.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_position_poll_failures_total",
			Help: "Position polls that sent the tracker back to login.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_arrivals_total",
			Help: "Times the bus was detected at the stop.",
		}),
		DistanceMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mystop_distance_to_stop_meters",
			Help: "Last computed distance between the bus and the stop.",
		}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mystop_tracker_state",
			Help: "1 for the tracker's current state, 0 otherwise.",
		}, []string{"state"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mystop_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mystop_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mystop_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ThresholdMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mystop_arrival_threshold_meters",
			Help: "Distance under which the bus counts as arrived.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mystop_poll_interval_seconds",
			Help: "Position poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.LoginAttempts, c.LoginFailures,
		c.Samples, c.PollFailures, c.Arrivals,
		c.DistanceMeters, c.State,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.ThresholdMeters, c.PollInterval,
	)

	c.ThresholdMeters.Set(thresholdMeters)
	c.PollInterval.Set(pollInterval.Seconds())
	c.setState(domain.StateAwaitingBus)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) Broadcast(ev domain.TrackerEvent) {
	switch ev.Type {
	case domain.EventStateChanged:
		// Tracking is only ever entered through a successful login.
		if ev.State == domain.StateTracking {
			c.LoginAttempts.Inc()
		}
		c.setState(ev.State)
	case domain.EventLoginFailed:
		c.LoginAttempts.Inc()
		c.LoginFailures.Inc()
	case domain.EventPosition:
		c.Samples.Inc()
		if ev.DistanceMeters != nil {
			c.DistanceMeters.Set(*ev.DistanceMeters)
		}
	case domain.EventPollFailed:
		c.PollFailures.Inc()
	case domain.EventArrived:
		c.Arrivals.Inc()
	}
}

func (c *Collector) setState(s domain.TrackerState) {
	for _, st := range trackerStates {
		v := 0.0
		if st == s {
			v = 1
		}
		c.State.WithLabelValues(string(st)).Set(v)
	}
}

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
