package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"mystop/internal/config"
	"mystop/internal/domain"
)

var ErrNoSchools = errors.New("no schools available to select")

// Directory lists schools for selection.
type Directory interface {
	ListAll(ctx context.Context) []domain.School
	ListClosest(ctx context.Context, lat, lon, distance float64) []domain.School
}

var schoolKeys = []string{
	config.KeySchoolGUID,
	config.KeyServiceURL,
	config.KeySchoolLatitude,
	config.KeySchoolLongitude,
}

// EnsureSettings fills in whatever the settings file lacks, asking the user
// where needed, and saves the result.
func EnsureSettings(ctx context.Context, settings *config.Settings, dir Directory, search *config.SchoolSearch, p *Prompter, logger *slog.Logger) error {
	logger = logger.With("component", "setup")

	for _, q := range []struct{ key, question string }{
		{config.KeyUsername, "Enter your username: "},
		{config.KeyPassword, "Enter your password: "},
	} {
		if !settings.Missing(q.key) {
			continue
		}
		answer, err := p.Ask(ctx, q.question)
		if err != nil {
			return err
		}
		settings.Set(q.key, answer)
	}

	if settings.Missing(config.KeyDeviceID) {
		settings.Set(config.KeyDeviceID, uuid.NewString())
		logger.Debug("generated device id")
	}

	if settings.Missing(schoolKeys...) {
		var schools []domain.School
		if search != nil {
			schools = dir.ListClosest(ctx, search.Latitude, search.Longitude, search.Distance)
		} else {
			schools = dir.ListAll(ctx)
		}
		if len(schools) == 0 {
			logger.Error("failed to retrieve school list")
			return ErrNoSchools
		}

		school, err := SelectSchool(ctx, schools, p, logger)
		if err != nil {
			return err
		}
		settings.Set(config.KeySchoolGUID, school.ID)
		settings.Set(config.KeyServiceURL, school.ServiceURL)
		settings.Set(config.KeySchoolLatitude, strconv.FormatFloat(school.Latitude, 'f', -1, 64))
		settings.Set(config.KeySchoolLongitude, strconv.FormatFloat(school.Longitude, 'f', -1, 64))
		logger.Info("school selected", "school", school.Name)
	}

	if err := settings.Save(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// SelectSchool lists schools and asks until the user picks a valid ordinal.
func SelectSchool(ctx context.Context, schools []domain.School, p *Prompter, logger *slog.Logger) (domain.School, error) {
	if len(schools) == 0 {
		return domain.School{}, ErrNoSchools
	}

	p.Println("Please select your school:")
	for i, s := range schools {
		p.Println(fmt.Sprintf("%d. %s", i+1, s.Name))
	}

	for {
		if err := ctx.Err(); err != nil {
			return domain.School{}, err
		}
		answer, err := p.Ask(ctx, "Enter the number corresponding to your school: ")
		if err != nil {
			return domain.School{}, err
		}
		n, err := strconv.Atoi(answer)
		if err != nil {
			logger.Warn("please enter a valid number", "input", answer)
			continue
		}
		if n < 1 || n > len(schools) {
			logger.Warn("invalid choice, try again", "choice", n)
			continue
		}
		return schools[n-1], nil
	}
}
