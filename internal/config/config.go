package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	PollSourceCurrent = "current"
	PollSourceRecent  = "recent"
)

type Config struct {
	LogLevel  slog.Level
	LogFormat string `validate:"oneof=text json"`

	SettingsFile   string        `validate:"required"`
	DirectoryURL   string        `validate:"required,url"`
	DeviceName     string        `validate:"required"`
	RequestTimeout time.Duration `validate:"gt=0"`

	ArrivalThresholdMeters float64       `validate:"gt=0"`
	PollInterval           time.Duration `validate:"gt=0"`
	LoginRetryInterval     time.Duration `validate:"gt=0"`
	PollSource             string        `validate:"oneof=current recent"`
	ReportScans            bool

	SchoolSearch *SchoolSearch `validate:"omitempty"`

	StatusAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	RedisEnabled      bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DirectoryCacheTTL time.Duration

	NATSURL           string
	NATSSubjectPrefix string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

// SchoolSearch restricts setup to schools near a point.
type SchoolSearch struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	Distance  float64 `validate:"gt=0"`
}

func Load() (*Config, error) {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:  getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		SettingsFile:   getEnv("MYSTOP_SETTINGS_FILE", "vst_mystop.conf"),
		DirectoryURL:   getEnv("MYSTOP_DIRECTORY_URL", "https://mystopclientlistapi.azurewebsites.net/"),
		DeviceName:     getEnv("MYSTOP_DEVICE_NAME", "Home-Assistant"),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 10*time.Second),

		ArrivalThresholdMeters: getFloatEnv("ARRIVAL_THRESHOLD_METERS", 82),
		PollInterval:           getDurationEnv("POLL_INTERVAL", 33*time.Second),
		LoginRetryInterval:     getDurationEnv("LOGIN_RETRY_INTERVAL", 300*time.Second),
		PollSource:             strings.ToLower(getEnv("POLL_SOURCE", PollSourceCurrent)),
		ReportScans:            getBoolEnv("REPORT_SCANS", false),

		StatusAddr:      getEnv("STATUS_ADDR", ""),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),

		RedisEnabled:      getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getIntEnv("REDIS_DB", 0),
		DirectoryCacheTTL: getDurationEnv("DIRECTORY_CACHE_TTL", 24*time.Hour),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "mystop"),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	search, err := loadSchoolSearch()
	if err != nil {
		return nil, err
	}
	cfg.SchoolSearch = search

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadSchoolSearch() (*SchoolSearch, error) {
	lat, lon := os.Getenv("SCHOOL_SEARCH_LAT"), os.Getenv("SCHOOL_SEARCH_LON")
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("SCHOOL_SEARCH_LAT and SCHOOL_SEARCH_LON must be set together")
	}

	search := &SchoolSearch{Distance: getFloatEnv("SCHOOL_SEARCH_DISTANCE", 10)}
	var err error
	if search.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_SEARCH_LAT %q: %w", lat, err)
	}
	if search.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_SEARCH_LON %q: %w", lon, err)
	}
	return search, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
