package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/models"
)

func createSession(t *testing.T, env *testEnv) *models.Session {
	t.Helper()
	store, err := env.repos.Stores().GetByID(context.Background(), "store-1")
	require.NoError(t, err)
	s, err := env.sessions.Create(context.Background(), store, 2, browser, FraudVerdict{Allowed: true})
	require.NoError(t, err)
	return s
}

func TestSessionManager_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	store, err := env.repos.Stores().GetByID(ctx, "store-1")
	require.NoError(t, err)

	s, err := env.sessions.Create(ctx, store, 2, browser, FraudVerdict{Allowed: true, FraudWarning: true, Risk: RiskAssessment{Score: 0.6}})
	require.NoError(t, err)

	assert.Equal(t, models.SessionPending, s.Status)
	assert.Len(t, s.Token, 48)
	assert.True(t, common.ValidSessionToken(s.Token))
	assert.True(t, s.ExpiresAt.Equal(t0.Add(15*time.Minute)))
	assert.True(t, s.FraudWarning)
	assert.Equal(t, 0.6, s.RiskScore)

	other := createSession(t, env)
	assert.NotEqual(t, s.Token, other.Token)
}

func TestSessionManager_CreateRejectsInactiveStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	closed, err := env.repos.Stores().GetByID(ctx, "closed")
	require.NoError(t, err)

	_, err = env.sessions.Create(ctx, closed, 1, browser, FraudVerdict{Allowed: true})
	assert.ErrorIs(t, err, common.ErrStoreNotFound)

	_, err = env.sessions.Create(ctx, nil, 1, browser, FraudVerdict{Allowed: true})
	assert.ErrorIs(t, err, common.ErrStoreNotFound)
}

func TestSessionManager_ValidateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	got, err := env.sessions.ValidateAndGet(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = env.sessions.ValidateAndGet(ctx, "short")
	assert.ErrorIs(t, err, common.ErrInvalidSessionToken)

	_, err = env.sessions.ValidateAndGet(ctx, "0123456789abcdef0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)

	changed, err := env.sessions.UpdateStatus(ctx, s.Token, models.SessionCompleted)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = env.sessions.ValidateAndGet(ctx, s.Token)
	assert.ErrorIs(t, err, common.ErrSessionInvalidState)
}

func TestSessionManager_LazyExpiryWithoutSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	env.clock.Advance(15 * time.Minute)
	_, err := env.sessions.ValidateAndGet(ctx, s.Token)
	require.NoError(t, err, "the deadline itself is still valid")

	env.clock.Advance(time.Second)
	_, err = env.sessions.ValidateAndGet(ctx, s.Token)
	assert.ErrorIs(t, err, common.ErrSessionExpired)

	stored, err := env.repos.Sessions().GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.Status, "lazy expiry is persisted")

	_, err = env.sessions.Lookup(ctx, s.Token)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestSessionManager_UpdateStatusIsNoOpFromTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	changed, err := env.sessions.UpdateStatus(ctx, s.Token, models.SessionFailed)
	require.NoError(t, err)
	assert.True(t, changed)

	for _, target := range []models.SessionStatus{models.SessionCompleted, models.SessionExpired, models.SessionFailed} {
		changed, err := env.sessions.UpdateStatus(ctx, s.Token, target)
		require.NoError(t, err, "retries are tolerated")
		assert.False(t, changed)
	}

	stored, err := env.repos.Sessions().GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, stored.Status)
}

func TestSessionManager_UpdateStatusAfterDeadlineExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	env.clock.Advance(env.cfg.SessionTTL + time.Nanosecond)

	changed, err := env.sessions.UpdateStatus(ctx, s.Token, models.SessionCompleted)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := env.repos.Sessions().GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.Status)
}

func TestSessionManager_TransitionRechecksDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	// s was read while pending; the deadline passes before the write.
	env.clock.Advance(env.cfg.SessionTTL + time.Second)

	changed, err := env.sessions.transition(ctx, env.repos.Sessions(), s, models.SessionFailed)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.SessionExpired, s.Status)

	stored, err := env.repos.Sessions().GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.Status)
}

func TestSessionManager_UpdateStatusErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := createSession(t, env)

	_, err := env.sessions.UpdateStatus(ctx, s.Token, models.SessionPending)
	assert.ErrorIs(t, err, common.ErrSessionInvalidState)

	_, err = env.sessions.UpdateStatus(ctx, "0123456789abcdef0123456789abcdef", models.SessionFailed)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestSessionManager_CleanupExpiredSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale1 := createSession(t, env)
	stale2 := createSession(t, env)
	done := createSession(t, env)
	_, err := env.sessions.UpdateStatus(ctx, done.Token, models.SessionCompleted)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	fresh := createSession(t, env)
	env.clock.Advance(6 * time.Minute)

	n, err := env.sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = env.sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the sweep is idempotent")

	for token, want := range map[string]models.SessionStatus{
		stale1.Token: models.SessionExpired,
		stale2.Token: models.SessionExpired,
		done.Token:   models.SessionCompleted,
		fresh.Token:  models.SessionPending,
	} {
		s, err := env.repos.Sessions().GetByToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, want, s.Status)
	}
}

func TestSessionManager_RunSweeper(t *testing.T) {
	env := newTestEnv(t)
	s := createSession(t, env)
	env.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.sessions.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		stored, err := env.repos.Sessions().GetByToken(context.Background(), s.Token)
		return err == nil && stored.Status == models.SessionExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
