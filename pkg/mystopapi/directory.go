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
	"strings"
	"time"

	"mystop/internal/domain"
)

// Directory lists the schools served by the tracking provider.
type Directory struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDirectory(baseURL string, timeout time.Duration, logger *slog.Logger) *Directory {
	return &Directory{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "school_directory"),
	}
}

type apiSchool struct {
	Account    flexString `json:"Account"`
	Serial     flexString `json:"Serial"`
	ServiceURL flexString `json:"ServiceUrl"`
	Latitude   flexFloat  `json:"Latitude"`
	Longitude  flexFloat  `json:"Longitude"`
}

type clientListResponse struct {
	Clients *[]apiSchool `json:"Clients"`
}

type closestRequest struct {
	AppType   int     `json:"AppType"`
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	Distance  float64 `json:"Distance"`
}

// ListAll returns every school in the directory. Failures are logged and
// produce an empty list.
func (d *Directory) ListAll(ctx context.Context) []domain.School {
	schools, err := d.fetch(ctx, http.MethodGet, "/api/ClientList/getall", nil)
	if err != nil {
		d.logger.Error("failed to get school list", "error", err)
		return []domain.School{}
	}
	return schools
}

// ListClosest returns schools within distance of the given point. Failures
// are logged and produce an empty list.
func (d *Directory) ListClosest(ctx context.Context, lat, lon, distance float64) []domain.School {
	body := closestRequest{AppType: 1, Latitude: lat, Longitude: lon, Distance: distance}
	schools, err := d.fetch(ctx, http.MethodPost, "/api/ClientList/getclosest", body)
	if err != nil {
		d.logger.Error("failed to get closest school list", "error", err)
		return []domain.School{}
	}
	return schools
}

func (d *Directory) fetch(ctx context.Context, method, path string, body any) ([]domain.School, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setCommonHeaders(req)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var list clientListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if list.Clients == nil {
		return nil, errors.New("response missing Clients")
	}

	schools := make([]domain.School, 0, len(*list.Clients))
	for _, s := range *list.Clients {
		schools = append(schools, domain.School{
			ID:         string(s.Serial),
			Name:       string(s.Account),
			ServiceURL: string(s.ServiceURL),
			Latitude:   s.Latitude.Value,
			Longitude:  s.Longitude.Value,
		})
	}

	d.logger.Debug("fetched school list", "path", path, "count", len(schools))
	return schools, nil
}
