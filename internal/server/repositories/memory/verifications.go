package memory

import (
	"context"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/models"
)

type VerificationRepository struct {
	db *DB
	tx *Tx
}

func (r *VerificationRepository) Create(_ context.Context, v *models.Verification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.bySession[v.SessionID]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := r.db.verifications[v.ID]; ok {
		return common.ErrorAlreadyExists
	}
	r.db.verifications[v.ID] = *v
	r.db.bySession[v.SessionID] = v.ID
	id, sessionID := v.ID, v.SessionID
	r.tx.record(func() {
		delete(r.db.verifications, id)
		delete(r.db.bySession, sessionID)
	})
	return nil
}

func (r *VerificationRepository) GetByID(_ context.Context, id string) (*models.Verification, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	v, ok := r.db.verifications[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &v, nil
}

func (r *VerificationRepository) ExistsForSession(_ context.Context, sessionID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	_, ok := r.db.bySession[sessionID]
	return ok, nil
}
