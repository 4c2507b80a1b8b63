package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "sensor_gateway/docs"
	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/config"
	"sensor_gateway/internal/export"
	"sensor_gateway/internal/handlers"
	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/repository"
	"sensor_gateway/internal/repository/db"
	"sensor_gateway/internal/server"
	"sensor_gateway/internal/service"
	"sensor_gateway/internal/store"
	"sensor_gateway/internal/transport"
)

const retentionPeriod = 24 * time.Hour

// @title        Sensor Gateway API
// @version      1.0
// @description  Telemetry, daily statistics and relay control for LoRa sensor nodes.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load configs/config.yml, .env and environment
	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalw("error reading config", "err", err)
	}
	log.SetLevel(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalw("invalid timezone", "timezone", cfg.Ingest.Timezone, "err", err)
	}

	// open DB only when something needs it
	sqlDB, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(sqlDB, cfg.Persistence.Driver, cfg.Persistence.Path)
	if !cfg.Auth.Enabled {
		repos.Operators = nil
	}
	st := store.New(cfg.Ingest.MaxHistory, store.WithLocation(loc))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broadcast.NewHub(broadcast.DefaultSendBuffer, log)
	sinks, closeSinks := buildSinks(ctx, cfg, hub, log)

	services := service.NewService(repos, st, service.Deps{
		Opener: transport.Link{Address: cfg.Serial.Port, BaudRate: cfg.Serial.BaudRate},
		Sinks:  sinks,
		Log:    log,
		Ingest: service.IngestOptions{
			ReadBuffer:        cfg.Serial.ReadBuffer,
			ReconnectInterval: cfg.Serial.ReconnectInterval,
			MaxFrameBytes:     cfg.Ingest.MaxFrameBytes,
			LegacyJSON:        cfg.Ingest.LegacyJSON,
			SinkQueue:         cfg.Ingest.SinkQueue,
		},
		RetentionDays: cfg.Persistence.RetentionDays,
		Auth: service.AuthOptions{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
	})

	// restore daily stats; a broken snapshot must not keep the gateway down
	if err := services.Load(ctx); err != nil {
		log.Errorw("failed to load daily stats snapshot", "err", err)
	}

	scheduler := service.NewScheduler(log)
	startTasks(ctx, scheduler, services, st, cfg, log)

	// start ingest
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := services.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("ingest stopped", "err", err)
		}
	}()

	// start HTTP server
	apiHandler := handlers.NewHandler(services, hub, handlers.LinkInfo{
		Path:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
	}, log)
	srv := &server.Server{}
	runHTTPServer(srv, cfg.HTTP.Port, server.WithCORS(apiHandler.InitRoutes(), cfg.HTTP.AllowedOrigins), log)

	// graceful shutdown
	waitForShutdown(log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer shutdownCancel()

	shutdown(shutdownCtx, shutdownSteps{
		cancel:     cancel,
		tasks:      scheduler,
		ingestDone: ingestDone,
		snapshot:   services,
		http:       srv,
		release: []func(){
			closeSinks,
			func() { closeDB(sqlDB, log) },
		},
	}, log)
}

// shutdownSteps is everything the ordered teardown touches.
type shutdownSteps struct {
	cancel     context.CancelFunc
	tasks      interface{ StopAll() }
	ingestDone <-chan struct{}
	snapshot   interface{ Save(context.Context) error }
	http       interface{ Shutdown(context.Context) error }
	release    []func()
}

// shutdown stops ingestion and the scheduled tasks, writes the final daily
// stats snapshot while the stores are still open, then releases resources in
// the given order.
func shutdown(ctx context.Context, s shutdownSteps, log *logger.Logger) {
	log.Infow("shutting down gateway...")
	s.cancel()
	s.tasks.StopAll()
	<-s.ingestDone

	if err := s.snapshot.Save(ctx); err != nil {
		log.Errorw("final daily stats snapshot failed", "err", err)
	}
	if err := s.http.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	for _, release := range s.release {
		release()
	}
}

// openDB initializes SQLite when the sqlite snapshot driver or operator auth is on.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	if cfg.Persistence.Driver != repository.DriverSQLite && !cfg.Auth.Enabled {
		return nil, nil
	}
	log.Infow("opening sqlite", "path", cfg.DB.Path)
	return db.InitDB(cfg.DB.Path)
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if sqlDB == nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// buildSinks returns the push hub plus whichever exporters are enabled, and a
// func that closes the exporters.
func buildSinks(ctx context.Context, cfg config.Config, hub *broadcast.Hub, log *logger.Logger) ([]service.Sink, func()) {
	sinks := []service.Sink{hub}
	var closers []func()

	if cfg.Influx.Enabled {
		influx := export.NewInfluxSink(export.InfluxOptions{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		sinks = append(sinks, influx)
		closers = append(closers, influx.Close)
		log.Infow("influxdb export enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	}

	if cfg.Redis.Enabled {
		rs, err := export.NewRedisSink(ctx, export.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Errorw("redis export disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			sinks = append(sinks, rs)
			closers = append(closers, func() {
				if err := rs.Close(); err != nil {
					log.Errorw("failed to close redis", "err", err)
				}
			})
			log.Infow("redis export enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

// startTasks schedules the periodic snapshot and the nightly retention cleanup.
func startTasks(ctx context.Context, sch *service.Scheduler, services *service.Service, st *store.Store, cfg config.Config, log *logger.Logger) {
	every := cfg.Persistence.BackupInterval
	sch.Every(ctx, "backup", every, every, func(ctx context.Context) {
		if err := services.Save(ctx); err != nil {
			log.Errorw("daily stats backup failed", "err", err)
		}
	})

	first := service.UntilMidnight(st.Now(), st.Location())
	sch.Every(ctx, "retention", first, retentionPeriod, func(ctx context.Context) {
		removed, err := services.Cleanup(ctx)
		if err != nil {
			log.Errorw("daily stats cleanup failed", "err", err)
			return
		}
		log.Infow("daily stats cleanup done", "removed", removed)
	})
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler http.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http server listening", "port", port)
		if err := srv.Run(port, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT or SIGTERM.
func waitForShutdown(log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("signal received", "signal", sig.String())
}
