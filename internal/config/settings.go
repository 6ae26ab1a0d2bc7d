package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"mystop/internal/domain"
)

// Settings file keys.
const (
	KeyUsername        = "Username"
	KeyPassword        = "Password"
	KeyDeviceID        = "DeviceID"
	KeySchoolGUID      = "SchoolGUID"
	KeyServiceURL      = "ServiceUrl"
	KeySchoolLatitude  = "SchoolLatitude"
	KeySchoolLongitude = "SchoolLongitude"
)

// Settings is the flat key=value file holding account and school details.
// Key order is preserved across load and save; empty values count as unset.
type Settings struct {
	path   string
	keys   []string
	values map[string]string
}

// LoadSettings reads path. A missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path, values: make(map[string]string)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		s.Set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return s, nil
}

func (s *Settings) Path() string {
	return s.path
}

func (s *Settings) Get(key string) string {
	return s.values[key]
}

func (s *Settings) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Missing reports whether any of keys is unset or empty.
func (s *Settings) Missing(keys ...string) bool {
	for _, k := range keys {
		if s.values[k] == "" {
			return true
		}
	}
	return false
}

// Save writes the settings back to their file atomically.
func (s *Settings) Save() error {
	var b strings.Builder
	for _, k := range s.keys {
		fmt.Fprintf(&b, "%s=%s\n", k, s.values[k])
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Credentials builds validated credentials from the settings.
func (s *Settings) Credentials() (domain.Credentials, error) {
	creds := domain.Credentials{
		Username:       s.Get(KeyUsername),
		Password:       s.Get(KeyPassword),
		DeviceID:       s.Get(KeyDeviceID),
		SchoolID:       s.Get(KeySchoolGUID),
		ServiceBaseURL: s.Get(KeyServiceURL),
	}
	if err := validator.New().Struct(creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("invalid settings in %s: %w", s.path, err)
	}
	return creds, nil
}
