package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mystop/internal/domain"
	"mystop/pkg/geo"
	"mystop/pkg/mystopapi"
)

// SessionClient is the school service as seen by the tracker.
type SessionClient interface {
	Login(ctx context.Context) (*domain.PositionSample, error)
	FetchCurrentPosition(ctx context.Context) (*domain.PositionSample, error)
	FetchRecentPosition(ctx context.Context) (*domain.PositionSample, error)
	StudentScans(ctx context.Context) []domain.ScanEvent
	Bus() domain.BusState
}

// Broadcaster receives every event the tracker emits.
type Broadcaster interface {
	Broadcast(ev domain.TrackerEvent)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on the wall clock.
var TimerSleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

type Options struct {
	ThresholdMeters    float64
	PollInterval       time.Duration
	LoginRetryInterval time.Duration
	UseRecentPosition  bool
	ReportScans        bool
}

// Tracker drives one bus-to-stop approach: it logs in until the bus is
// running, polls its position, and stops once it is within the threshold.
type Tracker struct {
	client       SessionClient
	sleeper      Sleeper
	broadcasters []Broadcaster
	opts         Options
	logger       *slog.Logger
	now          func() time.Time

	state  domain.TrackerState
	sample *domain.PositionSample
}

func New(client SessionClient, sleeper Sleeper, opts Options, logger *slog.Logger, broadcasters ...Broadcaster) *Tracker {
	if sleeper == nil {
		sleeper = TimerSleeper
	}
	return &Tracker{
		client:       client,
		sleeper:      sleeper,
		broadcasters: broadcasters,
		opts:         opts,
		logger:       logger.With("component", "tracker"),
		now:          time.Now,
		state:        domain.StateAwaitingBus,
	}
}

func (t *Tracker) State() domain.TrackerState {
	return t.state
}

// Run steps the state machine until the bus arrives or ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("tracking started",
		"threshold_m", t.opts.ThresholdMeters,
		"poll_interval", t.opts.PollInterval,
		"login_retry_interval", t.opts.LoginRetryInterval,
	)
	t.emit(domain.TrackerEvent{Type: domain.EventStateChanged})

	for {
		delay := t.Step(ctx)
		if t.state == domain.StateArrived {
			if t.opts.ReportScans {
				t.reportScans(ctx)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if delay <= 0 {
			continue
		}
		if err := t.sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Step performs one transition and returns how long to wait before the next.
func (t *Tracker) Step(ctx context.Context) time.Duration {
	switch t.state {
	case domain.StateAwaitingBus:
		return t.awaitBus(ctx)
	case domain.StateTracking:
		return t.poll(ctx)
	default:
		return 0
	}
}

func (t *Tracker) awaitBus(ctx context.Context) time.Duration {
	sample, err := t.client.Login(ctx)
	if err != nil {
		if errors.Is(err, mystopapi.ErrBusInactive) {
			t.logger.Warn("bus is not currently running", "retry_in", t.opts.LoginRetryInterval)
		} else {
			t.logger.Error("login failed", "error", err, "retry_in", t.opts.LoginRetryInterval)
		}
		t.emit(domain.TrackerEvent{Type: domain.EventLoginFailed, Error: err.Error()})
		return t.opts.LoginRetryInterval
	}

	bus := t.client.Bus()
	if sample == nil {
		sample = &domain.PositionSample{}
	}
	if _, _, ok := sample.Position(); !ok {
		t.logger.Warn("bus is running but reports no position", "vehicle_id", bus.VehicleID, "retry_in", t.opts.LoginRetryInterval)
		t.emit(domain.TrackerEvent{Type: domain.EventLoginFailed, Sample: sample, Error: "bus position unknown"})
		return t.opts.LoginRetryInterval
	}
	t.logger.Info("bus is running", "vehicle_id", bus.VehicleID, "route", bus.RouteNumber)
	t.setState(domain.StateTracking)
	return t.observe(sample)
}

func (t *Tracker) poll(ctx context.Context) time.Duration {
	fetch := t.client.FetchCurrentPosition
	if t.opts.UseRecentPosition {
		fetch = t.client.FetchRecentPosition
	}

	sample, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, mystopapi.ErrBusInactive) {
			t.logger.Warn("bus went inactive")
		} else {
			t.logger.Error("position poll failed", "error", err)
		}
		t.emit(domain.TrackerEvent{Type: domain.EventPollFailed, Error: err.Error()})
		t.sample = nil
		t.setState(domain.StateAwaitingBus)
		return 0
	}

	return t.observe(sample)
}

// observe evaluates a fresh sample and decides whether the bus has arrived.
func (t *Tracker) observe(sample *domain.PositionSample) time.Duration {
	t.sample = sample

	distance, ok := t.distance(sample)
	attrs := []any{
		"latitude", fmtCoord(sample.Latitude),
		"longitude", fmtCoord(sample.Longitude),
		"direction", sample.Heading,
		"log_time", sample.LogTime,
	}
	ev := domain.TrackerEvent{Type: domain.EventPosition, Sample: sample}
	if ok {
		attrs = append(attrs, "distance_m", distance)
		ev.DistanceMeters = &distance
	} else {
		t.logger.Warn("stop or bus position unknown, cannot compute distance to stop")
	}
	t.logger.Info("bus position", attrs...)
	t.emit(ev)

	if ok && distance < t.opts.ThresholdMeters {
		t.logger.Info("bus is at bus stop", "distance_m", distance)
		t.setState(domain.StateArrived)
		t.emit(domain.TrackerEvent{Type: domain.EventArrived, Sample: sample, DistanceMeters: &distance})
		return 0
	}
	return t.opts.PollInterval
}

func (t *Tracker) distance(sample *domain.PositionSample) (float64, bool) {
	lat, lon, ok := sample.Position()
	if !ok {
		return 0, false
	}
	stopLat, stopLon, ok := t.client.Bus().Stop()
	if !ok {
		return 0, false
	}
	return geo.DistanceMeters(lat, lon, stopLat, stopLon), true
}

func (t *Tracker) reportScans(ctx context.Context) {
	scans := t.client.StudentScans(ctx)
	t.logger.Info("student scans", "count", len(scans))
	for _, s := range scans {
		t.logger.Debug("student scan", "scan", s)
	}
	t.emit(domain.TrackerEvent{Type: domain.EventScans, Scans: scans})
}

func (t *Tracker) setState(s domain.TrackerState) {
	if t.state == s {
		return
	}
	t.logger.Debug("state changed", "from", t.state, "to", s)
	t.state = s
	t.emit(domain.TrackerEvent{Type: domain.EventStateChanged})
}

func (t *Tracker) emit(ev domain.TrackerEvent) {
	ev.State = t.state
	ev.Bus = t.client.Bus()
	ev.Time = t.now()
	for _, b := range t.broadcasters {
		b.Broadcast(ev)
	}
}

func fmtCoord(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
