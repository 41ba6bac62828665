// Package memory is an in-process gateway backing every repository with maps.
// It is used when no database DSN is configured and by service tests.
package memory

import (
	"sync"

	"github.com/storefeedback/qrverify/internal/server/models"
)

// DB holds all tables behind one lock.
type DB struct {
	mu            sync.RWMutex
	sessions      map[string]models.Session
	tokens        map[string]string
	verifications map[string]models.Verification
	bySession     map[string]string
	fraudLogs     []models.FraudLog
	stores        map[string]models.Store
	transactions  map[string][]models.Transaction
}

func New() *DB {
	return &DB{
		sessions:      map[string]models.Session{},
		tokens:        map[string]string{},
		verifications: map[string]models.Verification{},
		bySession:     map[string]string{},
		stores:        map[string]models.Store{},
		transactions:  map[string][]models.Transaction{},
	}
}

// Tx is a unit of work over the DB. Writes made through its repositories
// record an undo entry; Rollback reverts only those writes, leaving anything
// other callers wrote in the meantime in place.
type Tx struct {
	db   *DB
	undo []func()
}

func (db *DB) Begin() *Tx {
	return &Tx{db: db}
}

// record must be called with db.mu held. A nil Tx records nothing.
func (tx *Tx) record(fn func()) {
	if tx == nil {
		return
	}
	tx.undo = append(tx.undo, fn)
}

// Rollback reverts the unit of work's writes in reverse order.
func (tx *Tx) Rollback() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// Commit keeps the writes.
func (tx *Tx) Commit() {
	tx.db.mu.Lock()
	tx.undo = nil
	tx.db.mu.Unlock()
}

func (tx *Tx) Sessions() *SessionRepository { return &SessionRepository{db: tx.db, tx: tx} }
func (tx *Tx) Verifications() *VerificationRepository {
	return &VerificationRepository{db: tx.db, tx: tx}
}
func (tx *Tx) FraudLogs() *FraudLogRepository       { return &FraudLogRepository{db: tx.db, tx: tx} }
func (tx *Tx) Stores() *StoreRepository             { return &StoreRepository{db: tx.db, tx: tx} }
func (tx *Tx) Transactions() *TransactionRepository { return &TransactionRepository{db: tx.db, tx: tx} }

func (db *DB) Sessions() *SessionRepository           { return &SessionRepository{db: db} }
func (db *DB) Verifications() *VerificationRepository { return &VerificationRepository{db: db} }
func (db *DB) FraudLogs() *FraudLogRepository         { return &FraudLogRepository{db: db} }
func (db *DB) Stores() *StoreRepository               { return &StoreRepository{db: db} }
func (db *DB) Transactions() *TransactionRepository   { return &TransactionRepository{db: db} }
