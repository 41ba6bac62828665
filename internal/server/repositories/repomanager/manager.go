package repomanager

import (
	"context"

	"github.com/storefeedback/qrverify/internal/server/repositories/fraudlogs"
	"github.com/storefeedback/qrverify/internal/server/repositories/sessions"
	"github.com/storefeedback/qrverify/internal/server/repositories/stores"
	"github.com/storefeedback/qrverify/internal/server/repositories/transactions"
	"github.com/storefeedback/qrverify/internal/server/repositories/verifications"
)

// Repositories is the persistence gateway seen by the services.
type Repositories interface {
	Sessions() sessions.Repository
	Verifications() verifications.Repository
	FraudLogs() fraudlogs.Repository
	Stores() stores.Repository
	Transactions() transactions.Repository
}

// RepositoryManager vends repositories bound to a backend and runs units of
// work atomically. Repositories handed to fn share one transaction.
type RepositoryManager interface {
	Repositories
	RunMigrations(ctx context.Context) error
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}
