package store

import (
	"sync"
	"time"

	"mystop/internal/domain"
)

// Status is the latest known view of the tracked bus.
type Status struct {
	State          domain.TrackerState    `json:"state"`
	Bus            domain.BusState        `json:"bus"`
	Sample         *domain.PositionSample `json:"sample,omitempty"`
	DistanceMeters *float64               `json:"distanceMeters,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
	Scans          []domain.ScanEvent     `json:"scans,omitempty"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// StatusStore folds tracker events into a single snapshot.
type StatusStore struct {
	mu       sync.RWMutex
	status   Status
	attempts int
}

func NewStatusStore() *StatusStore {
	return &StatusStore{status: Status{State: domain.StateAwaitingBus}}
}

func (s *StatusStore) Broadcast(ev domain.TrackerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.status
	st.State = ev.State
	st.Bus = ev.Bus
	st.UpdatedAt = ev.Time

	switch ev.Type {
	case domain.EventPosition, domain.EventArrived:
		st.Sample = ev.Sample
		st.DistanceMeters = ev.DistanceMeters
		st.LastError = ""
		s.attempts++
	case domain.EventLoginFailed:
		st.LastError = ev.Error
		s.attempts++
	case domain.EventPollFailed:
		st.Sample = nil
		st.DistanceMeters = nil
		st.LastError = ev.Error
	case domain.EventScans:
		st.Scans = ev.Scans
	}
}

// Snapshot returns a copy of the current status.
func (s *StatusStore) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.status
	if out.Sample != nil {
		sample := *out.Sample
		out.Sample = &sample
	}
	if out.DistanceMeters != nil {
		d := *out.DistanceMeters
		out.DistanceMeters = &d
	}
	out.Scans = append([]domain.ScanEvent(nil), out.Scans...)
	return out
}

// Ready reports whether at least one login attempt has completed.
func (s *StatusStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts > 0
}
