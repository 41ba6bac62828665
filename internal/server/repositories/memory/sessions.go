package memory

import (
	"context"
	"time"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/models"
)

type SessionRepository struct {
	db *DB
	tx *Tx
}

func (r *SessionRepository) Create(_ context.Context, s *models.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.sessions[s.ID]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := r.db.tokens[s.Token]; ok {
		return common.ErrorAlreadyExists
	}
	r.db.sessions[s.ID] = *s
	r.db.tokens[s.Token] = s.ID
	id, token := s.ID, s.Token
	r.tx.record(func() {
		delete(r.db.sessions, id)
		delete(r.db.tokens, token)
	})
	return nil
}

func (r *SessionRepository) GetByToken(_ context.Context, token string) (*models.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, ok := r.db.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	s := r.db.sessions[id]
	return &s, nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *SessionRepository) Transition(_ context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	prev := s
	s.Status = to
	s.UpdatedAt = at
	r.db.sessions[id] = s
	r.tx.record(func() { r.db.sessions[id] = prev })
	return true, nil
}

func (r *SessionRepository) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, s := range r.db.sessions {
		if s.Status == models.SessionPending && s.ExpiresAt.Before(now) {
			id, prev := id, s
			r.tx.record(func() { r.db.sessions[id] = prev })
			s.Status = models.SessionExpired
			s.UpdatedAt = now
			r.db.sessions[id] = s
			n++
		}
	}
	return n, nil
}
