package domain

import "time"

// Credentials identify the parent account and the school it belongs to.
type Credentials struct {
	Username       string `validate:"required"`
	Password       string `validate:"required"`
	DeviceID       string `validate:"required,uuid"`
	SchoolID       string `validate:"required"`
	ServiceBaseURL string `validate:"required,url"`
}

// Session holds the server-issued identifiers from the last successful login.
type Session struct {
	SessionID       string `json:"sessionId,omitempty"`
	LoginID         string `json:"loginId,omitempty"`
	StudentRecordID string `json:"studentRecordId,omitempty"`
}

// BusState describes the bus matched to the student during login.
// An empty VehicleID means no trackable bus is known.
type BusState struct {
	VehicleID     string   `json:"vehicleId,omitempty"`
	RouteNumber   string   `json:"routeNumber,omitempty"`
	StopLatitude  *float64 `json:"stopLatitude,omitempty"`
	StopLongitude *float64 `json:"stopLongitude,omitempty"`
}

// Active reports whether a trackable bus is known for this session.
func (b BusState) Active() bool {
	return b.VehicleID != ""
}

// Stop returns the configured stop coordinates if both are known.
func (b BusState) Stop() (lat, lon float64, ok bool) {
	if b.StopLatitude == nil || b.StopLongitude == nil {
		return 0, 0, false
	}
	return *b.StopLatitude, *b.StopLongitude, true
}

// PositionSample is one reported bus position.
type PositionSample struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Heading   string   `json:"heading,omitempty"`
	LogTime   string   `json:"logTime,omitempty"`
}

// Position returns the sample coordinates if both are present.
func (p PositionSample) Position() (lat, lon float64, ok bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}

// ScanEvent is a single student scan record, fields kept verbatim from the
// school service.
type ScanEvent map[string]any

// TrackerState is the arrival tracker's position in its state machine.
type TrackerState string

const (
	StateAwaitingBus TrackerState = "awaiting_bus"
	StateTracking    TrackerState = "tracking"
	StateArrived     TrackerState = "arrived"
)

// EventType classifies tracker events.
type EventType string

const (
	EventStateChanged EventType = "state"
	EventPosition     EventType = "position"
	EventLoginFailed  EventType = "login_failed"
	EventPollFailed   EventType = "poll_failed"
	EventArrived      EventType = "arrived"
	EventScans        EventType = "scans"
)

// TrackerEvent is emitted by the tracker for every observable step.
type TrackerEvent struct {
	Type           EventType       `json:"type"`
	State          TrackerState    `json:"state"`
	Bus            BusState        `json:"bus"`
	Sample         *PositionSample `json:"sample,omitempty"`
	DistanceMeters *float64        `json:"distanceMeters,omitempty"`
	Scans          []ScanEvent     `json:"scans,omitempty"`
	Error          string          `json:"error,omitempty"`
	Time           time.Time       `json:"time"`
}
