package setup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystop/internal/config"
	"mystop/internal/domain"
)

type fakeDirectory struct {
	all     []domain.School
	closest []domain.School

	allCalls     int
	closestCalls int
	closestArgs  [3]float64
}

func (d *fakeDirectory) ListAll(ctx context.Context) []domain.School {
	d.allCalls++
	return d.all
}

func (d *fakeDirectory) ListClosest(ctx context.Context, lat, lon, distance float64) []domain.School {
	d.closestCalls++
	d.closestArgs = [3]float64{lat, lon, distance}
	return d.closest
}

var schools = []domain.School{
	{ID: "guid-1", Name: "Maple Elementary", ServiceURL: "https://maple.example.com/", Latitude: 40.1, Longitude: -75.25},
	{ID: "guid-2", Name: "Oak Middle", ServiceURL: "https://oak.example.com/", Latitude: 40.2, Longitude: -75.3},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptySettings(t *testing.T) *config.Settings {
	t.Helper()
	s, err := config.LoadSettings(filepath.Join(t.TempDir(), "vst_mystop.conf"))
	require.NoError(t, err)
	return s
}

func TestSelectSchool(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "first", input: "1\n", want: "guid-1"},
		{name: "last without newline", input: "2", want: "guid-2"},
		{name: "reprompts on garbage", input: "abc\n\n0\n3\n2\n", want: "guid-2"},
		{name: "input exhausted", input: "9\n", wantErr: true},
		{name: "no input", input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tc.input), &out)

			got, err := SelectSchool(context.Background(), schools, p, discardLogger())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.ID)
			assert.Contains(t, out.String(), "1. Maple Elementary\n2. Oak Middle\n")
		})
	}
}

func TestSelectSchoolEmpty(t *testing.T) {
	p := NewPrompter(strings.NewReader("1\n"), io.Discard)
	_, err := SelectSchool(context.Background(), nil, p, discardLogger())
	assert.ErrorIs(t, err, ErrNoSchools)
}

func TestEnsureSettingsFreshInstall(t *testing.T) {
	settings := emptySettings(t)
	dir := &fakeDirectory{all: schools}
	p := NewPrompter(strings.NewReader("parent\nsecret\n1\n"), io.Discard)

	err := EnsureSettings(context.Background(), settings, dir, nil, p, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, dir.allCalls)
	assert.Equal(t, 0, dir.closestCalls)
	assert.Equal(t, "parent", settings.Get(config.KeyUsername))
	assert.Equal(t, "secret", settings.Get(config.KeyPassword))
	assert.Equal(t, "guid-1", settings.Get(config.KeySchoolGUID))
	assert.Equal(t, "https://maple.example.com/", settings.Get(config.KeyServiceURL))
	assert.Equal(t, "40.1", settings.Get(config.KeySchoolLatitude))
	assert.Equal(t, "-75.25", settings.Get(config.KeySchoolLongitude))

	id, err := uuid.Parse(settings.Get(config.KeyDeviceID))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())

	reloaded, err := config.LoadSettings(settings.Path())
	require.NoError(t, err)
	creds, err := reloaded.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "guid-1", creds.SchoolID)
}

func TestEnsureSettingsUsesClosestSearch(t *testing.T) {
	settings := emptySettings(t)
	settings.Set(config.KeyUsername, "parent")
	settings.Set(config.KeyPassword, "secret")
	dir := &fakeDirectory{closest: schools[1:]}
	p := NewPrompter(strings.NewReader("1\n"), io.Discard)
	search := &config.SchoolSearch{Latitude: 40, Longitude: -75, Distance: 10}

	err := EnsureSettings(context.Background(), settings, dir, search, p, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, dir.allCalls)
	assert.Equal(t, [3]float64{40, -75, 10}, dir.closestArgs)
	assert.Equal(t, "guid-2", settings.Get(config.KeySchoolGUID))
}

func TestEnsureSettingsNoSchools(t *testing.T) {
	settings := emptySettings(t)
	dir := &fakeDirectory{}
	p := NewPrompter(strings.NewReader("parent\nsecret\n"), io.Discard)

	err := EnsureSettings(context.Background(), settings, dir, nil, p, discardLogger())
	assert.ErrorIs(t, err, ErrNoSchools)

	_, statErr := os.Stat(settings.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureSettingsComplete(t *testing.T) {
	settings := emptySettings(t)
	settings.Set(config.KeyUsername, "parent")
	settings.Set(config.KeyPassword, "secret")
	settings.Set(config.KeyDeviceID, "4b6f1b7e-3b0e-4a57-9c1e-1f3c7d0a9e11")
	settings.Set(config.KeySchoolGUID, "guid-1")
	settings.Set(config.KeyServiceURL, "https://maple.example.com/")
	settings.Set(config.KeySchoolLatitude, "40.1")
	settings.Set(config.KeySchoolLongitude, "-75.25")
	dir := &fakeDirectory{all: schools}

	err := EnsureSettings(context.Background(), settings, dir, nil, NewPrompter(strings.NewReader(""), io.Discard), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, dir.allCalls)
	assert.Equal(t, "4b6f1b7e-3b0e-4a57-9c1e-1f3c7d0a9e11", settings.Get(config.KeyDeviceID))
	assert.FileExists(t, settings.Path())
}

func TestEnsureSettingsCancelledWhilePrompting(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	settings := emptySettings(t)
	dir := &fakeDirectory{all: schools}
	p := NewPrompter(in, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- EnsureSettings(ctx, settings, dir, nil, p, discardLogger())
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("setup kept waiting for input after cancel")
	}
	assert.Equal(t, 0, dir.allCalls)
	assert.NoFileExists(t, settings.Path())
}

func TestSelectSchoolCancelledMidSelection(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	p := NewPrompter(in, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := SelectSchool(ctx, schools, p, discardLogger())
		done <- err
	}()

	// An invalid answer keeps the selection loop going.
	_, err := io.WriteString(w, "7\n")
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("selection kept waiting for input after cancel")
	}
}
