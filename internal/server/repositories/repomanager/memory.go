package repomanager

import (
	"context"
	"sync"

	"github.com/storefeedback/qrverify/internal/server/repositories/fraudlogs"
	"github.com/storefeedback/qrverify/internal/server/repositories/memory"
	"github.com/storefeedback/qrverify/internal/server/repositories/sessions"
	"github.com/storefeedback/qrverify/internal/server/repositories/stores"
	"github.com/storefeedback/qrverify/internal/server/repositories/transactions"
	"github.com/storefeedback/qrverify/internal/server/repositories/verifications"
)

// MemoryRepositoryManager serves every repository from one in-process memory.DB.
// Units of work are serialised; on error only the unit's own writes are undone.
type MemoryRepositoryManager struct {
	db   *memory.DB
	txMu sync.Mutex
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{db: memory.New()}
}

func (m *MemoryRepositoryManager) Sessions() sessions.Repository           { return m.db.Sessions() }
func (m *MemoryRepositoryManager) Verifications() verifications.Repository { return m.db.Verifications() }
func (m *MemoryRepositoryManager) FraudLogs() fraudlogs.Repository         { return m.db.FraudLogs() }
func (m *MemoryRepositoryManager) Stores() stores.Repository               { return m.db.Stores() }
func (m *MemoryRepositoryManager) Transactions() transactions.Repository   { return m.db.Transactions() }

// DB exposes the backing store for inspection in tests.
func (m *MemoryRepositoryManager) DB() *memory.DB { return m.db }

// RunMigrations is a no-op; the memory gateway has no schema.
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := m.db.Begin()
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		tx.Commit()
	}()

	return fn(ctx, memoryTxRepos{tx: tx})
}

func (m *MemoryRepositoryManager) Close() error { return nil }

type memoryTxRepos struct {
	tx *memory.Tx
}

func (r memoryTxRepos) Sessions() sessions.Repository           { return r.tx.Sessions() }
func (r memoryTxRepos) Verifications() verifications.Repository { return r.tx.Verifications() }
func (r memoryTxRepos) FraudLogs() fraudlogs.Repository         { return r.tx.FraudLogs() }
func (r memoryTxRepos) Stores() stores.Repository               { return r.tx.Stores() }
func (r memoryTxRepos) Transactions() transactions.Repository   { return r.tx.Transactions() }
