package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/config"
	"github.com/storefeedback/qrverify/internal/server/events"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/ratelimit"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
)

// 14:30 in Stockholm.
var t0 = time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.VerificationFinalized
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev events.VerificationFinalized) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	cfg         *config.Config
	clock       *clock
	repos       *repomanager.MemoryRepositoryManager
	fraud       *FraudDetector
	sessions    *SessionManager
	coordinator *Coordinator
	publisher   *capturePublisher
}

func newTestEnv(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, fn := range tweak {
		fn(cfg)
	}

	c := &clock{now: t0}
	repos := repomanager.NewMemoryRepositoryManager()
	log := logging.Nop()

	limiter := ratelimit.NewMemoryLimiter()
	fraud := NewFraudDetector(repos, limiter, cfg, log)
	fraud.now = c.Now

	sessions := NewSessionManager(repos, cfg.SessionTTL, log)
	sessions.now = c.Now

	pub := &capturePublisher{}
	coord := NewCoordinator(repos, sessions, fraud, pub, cfg, log)
	coord.now = c.Now

	ctx := context.Background()
	require.NoError(t, repos.Stores().Upsert(ctx, &models.Store{
		ID: "store-1", Name: "ICA Nära Odenplan", BusinessName: "ICA AB", Address: "Odengatan 1", QRVersion: 2, Active: true,
	}))
	require.NoError(t, repos.Stores().Upsert(ctx, &models.Store{ID: "closed", Name: "Closed", QRVersion: 1}))
	require.NoError(t, repos.Transactions().Create(ctx, &models.Transaction{
		ID: "pos-1", StoreID: "store-1", Time: t0.Add(-30 * time.Second), Amount: decimal.RequireFromString("125.50"),
	}))

	t.Cleanup(fraud.Close)

	return &testEnv{cfg: cfg, clock: c, repos: repos, fraud: fraud, sessions: sessions, coordinator: coord, publisher: pub}
}

func (e *testEnv) scan(t *testing.T, client ClientInfo) *ScanResult {
	t.Helper()
	res, err := e.coordinator.HandleScan(context.Background(), e.scanRequest(client))
	require.NoError(t, err)
	return res
}

func (e *testEnv) scanRequest(client ClientInfo) ScanRequest {
	return ScanRequest{
		StoreID:   "store-1",
		QRVersion: "2",
		Timestamp: unixString(e.clock.Now().Add(-time.Hour)),
		Client:    client,
	}
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

var browser = ClientInfo{IPAddress: "192.0.2.10", UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"}
