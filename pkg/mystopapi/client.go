package mystopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mystop/internal/domain"
	"mystop/pkg/geo"
)

const (
	userAgent  = "Tyler My Stop/1.0.0.0"
	deviceType = "Script"
	sidHeader  = "X-SID"
)

var (
	// ErrBusInactive means the upstream reported the matched bus as not running.
	ErrBusInactive = errors.New("bus is not active")
	// ErrNoBusData means a response lacked the expected bus payload.
	ErrNoBusData = errors.New("no bus data in response")
)

// Client talks to a single school's service. It owns the session and bus
// state obtained at login; callers only read copies through Session and Bus.
type Client struct {
	baseURL    string
	creds      domain.Credentials
	deviceName string
	httpClient *http.Client
	logger     *slog.Logger

	session     domain.Session
	bus         domain.BusState
	vehicleRaw  json.RawMessage
	recordIDRaw json.RawMessage
}

func New(creds domain.Credentials, deviceName string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(creds.ServiceBaseURL, "/"),
		creds:      creds,
		deviceName: deviceName,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "school_client"),
	}
}

// Session returns a copy of the current session identifiers.
func (c *Client) Session() domain.Session {
	return c.session
}

// Bus returns a copy of the current bus state.
func (c *Client) Bus() domain.BusState {
	bus := c.bus
	if bus.StopLatitude != nil {
		v := *bus.StopLatitude
		bus.StopLatitude = &v
	}
	if bus.StopLongitude != nil {
		v := *bus.StopLongitude
		bus.StopLongitude = &v
	}
	return bus
}

type loginRequest struct {
	UserName   string `json:"UserName"`
	Password   string `json:"Password"`
	DeviceID   string `json:"DeviceId"`
	DeviceType string `json:"DeviceType"`
	DeviceName string `json:"DeviceName"`
	SchoolGUID string `json:"SchoolGUID"`
}

type apiBusData struct {
	IsActive    bool            `json:"IsActive"`
	RPVehicleID json.RawMessage `json:"RPVehicleId"`
	Latitude    flexFloat       `json:"Latitude"`
	Longitude   flexFloat       `json:"Longitude"`
	Heading     flexString      `json:"Heading"`
	LogTime     flexString      `json:"LogTime"`
}

func (b *apiBusData) sample() *domain.PositionSample {
	return &domain.PositionSample{
		Latitude:  b.Latitude.ptr(),
		Longitude: b.Longitude.ptr(),
		Heading:   string(b.Heading),
		LogTime:   string(b.LogTime),
	}
}

type apiMatchedRoute struct {
	Route         flexString `json:"Route"`
	StopLatitude  flexFloat  `json:"StopLatitude"`
	StopLongitude flexFloat  `json:"StopLongitude"`
}

type apiStudent struct {
	RecordID       json.RawMessage  `json:"RecordID"`
	MatchedBusData *apiBusData      `json:"MatchedBusData"`
	MatchedRoute   *apiMatchedRoute `json:"MatchedRoute"`
}

type loginResponse struct {
	SessionID flexString   `json:"SessionID"`
	LoginGUID flexString   `json:"LoginGUID"`
	Students  []apiStudent `json:"Students"`
}

// Login authenticates and resolves the student's matched bus. It returns the
// bus's current position only when the bus is active; any other outcome
// leaves the client with no vehicle and returns an error.
func (c *Client) Login(ctx context.Context) (*domain.PositionSample, error) {
	body := loginRequest{
		UserName:   c.creds.Username,
		Password:   c.creds.Password,
		DeviceID:   c.creds.DeviceID,
		DeviceType: deviceType,
		DeviceName: c.deviceName,
		SchoolGUID: c.creds.SchoolID,
	}

	var resp loginResponse
	if err := c.post(ctx, "/api/admin/loginuser", body, &resp); err != nil {
		c.invalidate()
		return nil, fmt.Errorf("login: %w", err)
	}

	if len(resp.Students) == 0 {
		c.invalidate()
		return nil, fmt.Errorf("login: response missing students: %w", ErrNoBusData)
	}
	student := resp.Students[0]
	matched := student.MatchedBusData
	if matched == nil {
		c.invalidate()
		return nil, fmt.Errorf("login: response missing matched bus data: %w", ErrNoBusData)
	}
	if !matched.IsActive {
		c.invalidate()
		return nil, ErrBusInactive
	}

	vehicleID := rawText(matched.RPVehicleID)
	if vehicleID == "" {
		c.invalidate()
		return nil, fmt.Errorf("login: matched bus has no vehicle id: %w", ErrNoBusData)
	}

	route := student.MatchedRoute
	if route == nil {
		c.invalidate()
		return nil, fmt.Errorf("login: response missing matched route: %w", ErrNoBusData)
	}

	c.session = domain.Session{
		SessionID:       string(resp.SessionID),
		LoginID:         string(resp.LoginGUID),
		StudentRecordID: rawText(student.RecordID),
	}
	c.recordIDRaw = student.RecordID
	c.vehicleRaw = matched.RPVehicleID

	bus := domain.BusState{
		VehicleID:     vehicleID,
		RouteNumber:   string(route.Route),
		StopLatitude:  route.StopLatitude.ptr(),
		StopLongitude: route.StopLongitude.ptr(),
	}
	c.bus = bus

	c.logger.Debug("login succeeded", "vehicle_id", vehicleID, "route", bus.RouteNumber)
	return matched.sample(), nil
}

type vehicleDataRequest struct {
	VehicleID json.RawMessage `json:"VehicleId"`
}

type vehicleDataResponse struct {
	StuBusData *apiBusData `json:"StuBusData"`
}

// FetchCurrentPosition polls the live position of the tracked vehicle. The
// heading is returned as reported, without compass conversion.
func (c *Client) FetchCurrentPosition(ctx context.Context) (*domain.PositionSample, error) {
	if !c.bus.Active() {
		return nil, ErrBusInactive
	}

	var resp vehicleDataResponse
	if err := c.post(ctx, "/api/student/vehicledata", vehicleDataRequest{VehicleID: c.vehicleRaw}, &resp); err != nil {
		c.invalidate()
		return nil, fmt.Errorf("vehicle data: %w", err)
	}
	if resp.StuBusData == nil {
		c.invalidate()
		return nil, fmt.Errorf("vehicle data: %w", ErrNoBusData)
	}
	if !resp.StuBusData.IsActive {
		c.invalidate()
		return nil, ErrBusInactive
	}

	return resp.StuBusData.sample(), nil
}

type recentPoint struct {
	Latitude       flexFloat  `json:"Latitude"`
	Longitude      flexFloat  `json:"Longitude"`
	HeadingDegrees flexFloat  `json:"HeadingDegrees"`
	LogTime        flexString `json:"LogTime"`
}

type recentVehicleDataResponse struct {
	BusData []recentPoint `json:"BusData"`
}

// recentPointIndex is where the upstream history places its latest point;
// index 0 is a stale duplicate.
const recentPointIndex = 1

// FetchRecentPosition reads the short position history and returns its
// latest point with the heading converted to a compass label.
func (c *Client) FetchRecentPosition(ctx context.Context) (*domain.PositionSample, error) {
	if !c.bus.Active() {
		return nil, ErrBusInactive
	}

	path := "/api/student/recentvehicledata?rpVehicleId=" + url.QueryEscape(c.bus.VehicleID)

	var resp *recentVehicleDataResponse
	if err := c.post(ctx, path, nil, &resp); err != nil {
		c.invalidate()
		return nil, fmt.Errorf("recent vehicle data: %w", err)
	}
	if resp == nil || len(resp.BusData) <= recentPointIndex {
		c.invalidate()
		return nil, fmt.Errorf("recent vehicle data: %w", ErrNoBusData)
	}

	point := resp.BusData[recentPointIndex]
	sample := &domain.PositionSample{
		Latitude:  point.Latitude.ptr(),
		Longitude: point.Longitude.ptr(),
		LogTime:   string(point.LogTime),
	}
	if point.HeadingDegrees.Valid {
		sample.Heading = geo.DirectionFromDegrees(point.HeadingDegrees.Value)
	}
	return sample, nil
}

type scanRecord struct {
	RecordID json.RawMessage `json:"RecordID"`
}

type studentScansRequest struct {
	StuRecordList []scanRecord `json:"StuRecordList"`
}

type studentScansResponse struct {
	Students []struct {
		StudentScans []struct {
			Scans []domain.ScanEvent `json:"Scans"`
		} `json:"StudentScans"`
	} `json:"Students"`
}

// StudentScans returns the student's scan events. Any failure, including an
// unexpected response shape, yields an empty list.
func (c *Client) StudentScans(ctx context.Context) []domain.ScanEvent {
	recordID := c.recordIDRaw
	if len(recordID) == 0 {
		recordID = json.RawMessage("null")
	}
	body := studentScansRequest{StuRecordList: []scanRecord{{RecordID: recordID}}}

	var resp studentScansResponse
	if err := c.post(ctx, "/api/student/studentscans", body, &resp); err != nil {
		c.logger.Warn("failed to fetch student scans", "error", err)
		return []domain.ScanEvent{}
	}
	if len(resp.Students) == 0 || len(resp.Students[0].StudentScans) == 0 || resp.Students[0].StudentScans[0].Scans == nil {
		c.logger.Warn("student scans response has unexpected shape")
		return []domain.ScanEvent{}
	}
	return resp.Students[0].StudentScans[0].Scans
}

func (c *Client) invalidate() {
	c.session = domain.Session{}
	c.bus.VehicleID = ""
	c.vehicleRaw = nil
	c.recordIDRaw = nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	setCommonHeaders(req)
	if c.session.SessionID != "" {
		req.Header.Set(sidHeader, c.session.SessionID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("school service response",
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNoBusData
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func setCommonHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "Keep-Alive")
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s flexString
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return string(s)
}
