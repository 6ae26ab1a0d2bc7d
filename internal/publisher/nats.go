package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"mystop/internal/domain"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards tracker events to NATS subjects of the form
// <prefix>.<route>.<event type>.
type NATSPublisher struct {
	conn    Conn
	nc      *nats.Conn
	prefix  string
	metrics PublisherMetrics
	logger  *slog.Logger
}

func NewNATSPublisher(url, prefix string, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "nats_publisher")
	nc, err := nats.Connect(url,
		nats.Name("mystop"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := NewPublisher(nc, prefix, m, logger)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, metrics: m, logger: logger}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Broadcast publishes ev. Failures are logged and counted, never returned.
func (p *NATSPublisher) Broadcast(ev domain.TrackerEvent) {
	subject := Subject(p.prefix, ev.Bus.RouteNumber, ev.Type)
	b, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encoding event failed", "error", err)
		return
	}

	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		p.logger.Warn("nats publish failed", "subject", subject, "error", err)
		return
	}
	p.logger.Debug("nats publish", "subject", subject)
}

func Subject(prefix, route string, typ domain.EventType) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(prefix), subjectToken(route), subjectToken(string(typ)))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
