// Package server wires configuration, persistence, rate limiting, event
// publishing and the verification services into a running process serving
// the HTTP API and the gRPC health probe.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/config"
	"github.com/storefeedback/qrverify/internal/server/events"
	"github.com/storefeedback/qrverify/internal/server/ratelimit"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
	"github.com/storefeedback/qrverify/internal/server/services"

	gs "github.com/storefeedback/qrverify/internal/server/grpc"
	hs "github.com/storefeedback/qrverify/internal/server/http"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	limiter     ratelimit.Limiter
	publisher   events.Publisher
	fraud       *services.FraudDetector
	sessions    *services.SessionManager
	coordinator *services.Coordinator
	proxies     []netip.Prefix
	closers     []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	proxies, err := hs.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	app.proxies = proxies

	repos, err := app.openRepositories(ctx)
	if err != nil {
		return nil, err
	}
	app.repos = repos

	if err := app.openLimiter(ctx); err != nil {
		app.close()
		return nil, err
	}
	if err := app.openPublishers(ctx); err != nil {
		app.close()
		return nil, err
	}

	app.fraud = services.NewFraudDetector(repos, app.limiter, c, logger)
	app.sessions = services.NewSessionManager(repos, c.SessionTTL, logger)
	app.coordinator = services.NewCoordinator(repos, app.sessions, app.fraud, app.publisher, c, logger)

	return app, nil
}

func (app *App) openRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, using in-memory storage")
		m := repomanager.NewMemoryRepositoryManager()
		if app.config.SeedFile != "" {
			seed, err := repomanager.LoadSeed(app.config.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("seed init error: %w", err)
			}
			if err := repomanager.Seed(ctx, m, seed); err != nil {
				return nil, fmt.Errorf("seed init error: %w", err)
			}
			app.logger.Info(ctx, "seed loaded", "stores", len(seed.Stores), "transactions", len(seed.Transactions))
		}
		return m, nil
	}

	m, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}
	app.closers = append(app.closers, m)
	return m, nil
}

func (app *App) openLimiter(ctx context.Context) error {
	if app.config.RedisURL == "" {
		app.logger.Warn(ctx, "no redis configured, rate limits are per instance")
		app.limiter = ratelimit.NewMemoryLimiter()
		return nil
	}

	client, err := ratelimit.Connect(ctx, app.config.RedisURL)
	if err != nil {
		return fmt.Errorf("redis init error: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping error: %w", err)
	}
	app.closers = append(app.closers, client)
	app.limiter = ratelimit.NewRedisLimiter(client)
	return nil
}

func (app *App) openPublishers(ctx context.Context) error {
	var pubs events.Multi

	if len(app.config.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(app.config.KafkaBrokers, app.config.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka init error: %w", err)
		}
		pubs = append(pubs, p)
	}

	if app.config.S3Bucket != "" {
		p, err := events.NewS3Archiver(ctx, events.S3Config{
			Region:       app.config.S3Region,
			AccessKey:    app.config.S3RootUser,
			SecretKey:    app.config.S3RootPassword,
			BaseEndpoint: app.config.S3BaseEndpoint,
			Bucket:       app.config.S3Bucket,
			Prefix:       app.config.S3Prefix,
		})
		if err != nil {
			_ = pubs.Close()
			return fmt.Errorf("s3 init error: %w", err)
		}
		pubs = append(pubs, p)
	}

	if len(pubs) == 0 {
		app.publisher = events.Nop{}
		return nil
	}
	app.publisher = pubs
	app.closers = append(app.closers, pubs)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc, ready func()) {
	handler := hs.NewHandler(app.coordinator, app.sessions, []byte(app.config.SecretKey), app.proxies, app.logger)
	srv := hs.NewServer(app.config.EndpointAddrHTTP, hs.NewRouter(handler))

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	ready()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc, s *gs.GRPCServer) {
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// pruneLimiter drops idle in-process rate-limit windows.
func (app *App) pruneLimiter(ctx context.Context) {
	l, ok := app.limiter.(*ratelimit.MemoryLimiter)
	if !ok {
		return
	}
	ticker := time.NewTicker(app.config.RateLimitWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(app.config.RateLimitWindow)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	health := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc, health)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, func() { health.SetServing(true) })
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessions.RunSweeper(ctx, app.config.SweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.pruneLimiter(ctx)
	}()

	wg.Wait()

	app.fraud.Close()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close error", "error", err)
		}
	}
	app.closers = nil
}
