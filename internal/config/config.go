package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/traffic-data-etl/internal/calendar"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Config holds all job settings, populated from environment variables and an
// optional catalog file for the segment map and calendar tables.
type Config struct {
	TelraamAPIKey     string
	TelraamBaseURL    string
	TelraamTimeout    time.Duration
	TelraamMaxRetries int
	TelraamRetryBase  time.Duration
	SegmentDelay      time.Duration
	ProjectEpoch      time.Time

	WeatherBaseURL string
	WeatherLat     float64
	WeatherLon     float64
	WeatherPlace   string
	WeatherTimeout time.Duration

	// Location is the zone every join is aligned to.
	Location *time.Location
	DataDir  string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	SyncSchedule    string

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
	ParquetExport  bool
	LedgerPath     string

	CatalogFile string
	Segments    []domain.Segment
	Holidays    []calendar.Holiday
	Vacations   []calendar.Vacation
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	telraamTimeout, err := parseDuration("TELRAAM_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryBase, err := parseDuration("TELRAAM_RETRY_BASE", "5s")
	if err != nil {
		return nil, err
	}
	segmentDelay, err := parseDuration("SEGMENT_DELAY", "2s")
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parseDuration("WEATHER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseInt("TELRAAM_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 || maxRetries > 10 {
		return nil, errors.New("invalid TELRAAM_MAX_RETRIES: must be between 1 and 10")
	}

	lat, err := parseFloat("WEATHER_LAT", 50.8279)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("WEATHER_LON", 3.2651)
	if err != nil {
		return nil, err
	}

	epochStr := sharedcfg.EnvOrDefault("PROJECT_EPOCH", domain.DefaultProjectEpoch.Format(time.RFC3339))
	epoch, err := time.Parse(time.RFC3339, epochStr)
	if err != nil {
		return nil, errors.New("invalid PROJECT_EPOCH: want RFC3339, e.g. 2025-11-01T00:00:00Z")
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("LOCAL_TIMEZONE", "Europe/Brussels"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}

	cfg := &Config{
		TelraamAPIKey:     os.Getenv("TELRAAM_API_KEY"),
		TelraamBaseURL:    sharedcfg.EnvOrDefault("TELRAAM_BASE_URL", "https://telraam-api.net/v1"),
		TelraamTimeout:    telraamTimeout,
		TelraamMaxRetries: maxRetries,
		TelraamRetryBase:  retryBase,
		SegmentDelay:      segmentDelay,
		ProjectEpoch:      epoch.UTC(),

		WeatherBaseURL: sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),
		WeatherLat:     lat,
		WeatherLon:     lon,
		WeatherPlace:   sharedcfg.EnvOrDefault("WEATHER_PLACE", "kortrijk"),
		WeatherTimeout: weatherTimeout,

		Location: loc,
		DataDir:  sharedcfg.EnvOrDefault("DATA_DIR", "data"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		SyncSchedule:    sharedcfg.EnvOrDefault("SYNC_SCHEDULE", "5 * * * *"),

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "traffic-weather-merged"),
		ParquetExport:  os.Getenv("PARQUET_EXPORT") == "true",
		LedgerPath:     os.Getenv("LEDGER_PATH"),

		CatalogFile: os.Getenv("CATALOG_FILE"),
	}

	cat, err := LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	cfg.Segments = cat.Segments
	cfg.Holidays = cat.Holidays
	cfg.Vacations = cat.Vacations

	if cfg.WeatherLat < -90 || cfg.WeatherLat > 90 {
		return nil, errors.New("invalid WEATHER_LAT: must be between -90 and 90")
	}
	if cfg.WeatherLon < -180 || cfg.WeatherLon > 180 {
		return nil, errors.New("invalid WEATHER_LON: must be between -180 and 180")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// RequireTelraam reports whether the settings needed to call the sensor API are present.
func (c *Config) RequireTelraam() error {
	if c.TelraamAPIKey == "" {
		return errors.New("TELRAAM_API_KEY is required to sync traffic data")
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
