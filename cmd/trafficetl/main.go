// Command trafficetl keeps local Telraam traffic histories current and builds
// the traffic, weather and calendar dataset from them.
//
// Usage:
//
//	trafficetl [sync|integrate|run|calendar|serve]
//
// run is the default. serve exposes /healthz, /readyz, /metrics and /runs and
// executes run on SYNC_SCHEDULE.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/traffic-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/traffic-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-data-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/traffic-data-etl/internal/adapter/parquet"
	"github.com/couchcryptid/traffic-data-etl/internal/adapter/telraam"
	"github.com/couchcryptid/traffic-data-etl/internal/calendar"
	"github.com/couchcryptid/traffic-data-etl/internal/config"
	"github.com/couchcryptid/traffic-data-etl/internal/ingest"
	"github.com/couchcryptid/traffic-data-etl/internal/ledger"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
	"github.com/couchcryptid/traffic-data-etl/internal/pipeline"
	"github.com/couchcryptid/traffic-data-etl/internal/scheduler"
	"github.com/couchcryptid/traffic-data-etl/internal/store"
)

const mergedParquetFile = "traffic_weather_calendar_integrated.parquet"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, command, cfg, logger); err != nil {
		logger.Error("command failed", "command", command, "error", err)
		stop()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, command string, cfg *config.Config, logger *slog.Logger) error {
	cal, err := calendar.New(cfg.Holidays, cfg.Vacations)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}

	if command == "calendar" {
		return writeCalendar(cfg, cal, logger)
	}

	switch command {
	case "sync", "run", "serve":
		if err := cfg.RequireTelraam(); err != nil {
			return err
		}
	case "integrate":
	default:
		return fmt.Errorf("unknown command %q: want sync, integrate, run, calendar or serve", command)
	}

	metrics := observability.NewMetrics()
	d, err := wire(cfg, cal, metrics, logger)
	if err != nil {
		return err
	}
	defer d.close(logger)

	switch command {
	case "sync":
		_, err = d.pipeline.Sync(ctx)
	case "integrate":
		_, err = d.pipeline.Integrate(ctx)
	case "run":
		_, err = d.pipeline.Run(ctx)
	case "serve":
		err = serve(ctx, cfg, d, logger)
	}
	return err
}

// deps holds the wired pipeline and the resources to release afterwards.
type deps struct {
	pipeline *pipeline.Pipeline
	ledger   *ledger.Ledger
	writer   *kafkaadapter.Writer
}

func wire(cfg *config.Config, cal *calendar.Calendar, metrics *observability.Metrics, logger *slog.Logger) (*deps, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	segments := store.NewSegmentStore(cfg.DataDir)
	raw := store.NewRawStore(cfg.DataDir)
	engine := ingest.NewEngine(
		telraam.NewClient(cfg, metrics, logger),
		segments, raw,
		cfg.ProjectEpoch, cfg.SegmentDelay,
		metrics, logger,
	)

	stages := pipeline.Stages{
		Sync:         engine,
		Traffic:      raw,
		Weather:      openmeteo.NewClient(cfg, metrics, logger),
		WeatherStore: store.NewWeatherStore(cfg.DataDir, cfg.WeatherPlace, cfg.Location),
		Merged:       store.NewMergedStore(cfg.DataDir, cfg.Location),
		Calendar:     cal,
	}

	d := &deps{}
	if cfg.KafkaEnabled {
		d.writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		stages.Publisher = d.writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}
	if cfg.ParquetExport {
		stages.Exporter = parquet.NewExporter(logger)
		stages.ExportPath = filepath.Join(cfg.DataDir, mergedParquetFile)
	}
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			d.close(logger)
			return nil, err
		}
		d.ledger = l
		stages.Ledger = l
	}

	d.pipeline = pipeline.New(stages, cfg.Segments, cfg.Location, logger, metrics)
	return d, nil
}

func (d *deps) close(logger *slog.Logger) {
	if d.writer != nil {
		if err := d.writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if d.ledger != nil {
		if err := d.ledger.Close(); err != nil {
			logger.Error("ledger close error", "error", err)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, d *deps, logger *slog.Logger) error {
	var runs httpadapter.RunLister
	if d.ledger != nil {
		runs = d.ledger
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, d.pipeline, runs, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(cfg.SyncSchedule, true, d.pipeline, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
	return nil
}

func writeCalendar(cfg *config.Config, cal *calendar.Calendar, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	holidays, vacations := cal.Holidays(), cal.VacationDays()
	if err := store.NewCalendarStore(cfg.DataDir).Save(holidays, vacations); err != nil {
		return err
	}
	logger.Info("calendar written", "dir", cfg.DataDir, "holidays", len(holidays), "vacation_days", len(vacations))
	return nil
}
