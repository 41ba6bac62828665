package repomanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/models"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMemoryWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()

	err := m.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		require.NoError(t, repos.Verifications().Create(ctx, &models.Verification{ID: "v-1", SessionID: "s-1"}))
		return errors.New("session update failed")
	})
	require.Error(t, err)

	exists, err := m.Verifications().ExistsForSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryWithTx_RollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()
	require.NoError(t, m.Sessions().Create(ctx, &models.Session{ID: "s-1", Token: "tok-1", Status: models.SessionPending}))

	err := m.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		require.NoError(t, repos.Verifications().Create(ctx, &models.Verification{ID: "v-1", SessionID: "s-1"}))
		_, err := repos.Sessions().Transition(ctx, "s-1", models.SessionPending, models.SessionCompleted, t0)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, m.Sessions().Create(ctx, &models.Session{ID: "s-2", Token: "tok-other", Status: models.SessionPending}))
			assert.NoError(t, m.FraudLogs().Append(ctx, &models.FraudLog{StoreID: "store-1", IPAddress: "192.0.2.1"}))
		}()
		<-done

		return errors.New("session update failed")
	})
	require.Error(t, err)

	other, err := m.Sessions().GetByToken(ctx, "tok-other")
	require.NoError(t, err)
	assert.Equal(t, "s-2", other.ID)
	assert.Equal(t, 1, m.DB().FraudLogs().Len())

	s1, err := m.Sessions().GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, s1.Status)

	exists, err := m.Verifications().ExistsForSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		return repos.Verifications().Create(ctx, &models.Verification{ID: "v-1", SessionID: "s-1"})
	}))

	_, err := m.Verifications().GetByID(ctx, "v-1")
	assert.NoError(t, err)
	assert.NoError(t, m.RunMigrations(ctx))
	assert.NoError(t, m.Close())
}

func TestMemoryWithTx_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()

	assert.Panics(t, func() {
		_ = m.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
			_ = repos.Stores().Upsert(ctx, &models.Store{ID: "store-1"})
			panic("boom")
		})
	})

	_, err := m.Stores().GetByID(ctx, "store-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLoadSeedAndSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	content := `stores:
  - id: store-1
    name: ICA Nära Odenplan
    business_name: ICA AB
  - id: store-2
    name: Closed
    qr_version: 3
    active: false
transactions:
  - id: t-1
    store_id: store-1
    time: 2026-03-10T12:00:00Z
    amount: "125.5"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, f.Stores, 2)

	ctx := context.Background()
	m := NewMemoryRepositoryManager()
	require.NoError(t, Seed(ctx, m, f))

	s1, err := m.Stores().GetByID(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 1, s1.QRVersion)
	assert.True(t, s1.Active)

	s2, err := m.Stores().GetByID(ctx, "store-2")
	require.NoError(t, err)
	assert.Equal(t, 3, s2.QRVersion)
	assert.False(t, s2.Active)

	tx, err := m.Transactions().FindClosest(ctx, "store-1", t0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "125.50", tx.Amount.StringFixed(2))
}

func TestSeed_InvalidAmountRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()
	f := &SeedFile{
		Stores:       []seedStore{{ID: "store-1"}},
		Transactions: []seedTransaction{{ID: "t-1", StoreID: "store-1", Time: t0, Amount: "lots"}},
	}

	assert.ErrorContains(t, Seed(ctx, m, f), "invalid amount")
	_, err := m.Stores().GetByID(ctx, "store-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLoadSeed_Errors(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stores: [:::"), 0o600))
	_, err = LoadSeed(path)
	assert.Error(t, err)
}
