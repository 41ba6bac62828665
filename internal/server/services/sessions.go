package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
	"github.com/storefeedback/qrverify/internal/server/repositories/sessions"
)

// tokenAttempts bounds retries on the (practically impossible) token collision.
const tokenAttempts = 3

// SessionManager owns the session state machine:
//
//	pending -> completed | failed | expired
//
// Terminal states never change again. Expiry is enforced lazily on every
// read and eventually by the sweep.
type SessionManager struct {
	repos repomanager.RepositoryManager
	ttl   time.Duration
	log   logging.Logger
	now   func() time.Time
}

func NewSessionManager(repos repomanager.RepositoryManager, ttl time.Duration, log logging.Logger) *SessionManager {
	return &SessionManager{repos: repos, ttl: ttl, log: log.With("module", "sessions"), now: time.Now}
}

// Create opens a pending session for an active store. The caller has already
// passed the fraud gate; its verdict is stored on the session.
func (m *SessionManager) Create(ctx context.Context, store *models.Store, qrVersion int, client ClientInfo, verdict FraudVerdict) (*models.Session, error) {
	if store == nil || !store.Active {
		return nil, common.ErrStoreNotFound
	}

	now := m.now()
	s := &models.Session{
		ID:           uuid.NewString(),
		StoreID:      store.ID,
		QRVersion:    qrVersion,
		Status:       models.SessionPending,
		FraudWarning: verdict.FraudWarning,
		RiskScore:    verdict.Risk.Score,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		UpdatedAt:    now,
	}

	for i := 0; i < tokenAttempts; i++ {
		token, err := common.MakeRandHexString(common.SessionTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		s.Token = token

		err = m.repos.Sessions().Create(ctx, s)
		if err == nil {
			m.log.Info(ctx, "session created",
				"session_id", s.ID, "store_id", s.StoreID, "fraud_warning", s.FraudWarning)
			return s, nil
		}
		if !errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	return nil, fmt.Errorf("create session: %w", common.ErrorAlreadyExists)
}

// Lookup fetches a session by token and applies lazy expiry, without
// constraining the status. Expired sessions yield SESSION_EXPIRED.
func (m *SessionManager) Lookup(ctx context.Context, token string) (*models.Session, error) {
	if !common.ValidSessionToken(token) {
		return nil, common.ErrInvalidSessionToken
	}

	s, err := m.repos.Sessions().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := m.now()
	if s.Status == models.SessionPending && s.Expired(now) {
		if _, err := m.repos.Sessions().Transition(ctx, s.ID, models.SessionPending, models.SessionExpired, now); err != nil {
			m.log.Warn(ctx, "lazy expiry write failed", "session_id", s.ID, "error", err)
		}
		s.Status = models.SessionExpired
	}
	if s.Status == models.SessionExpired {
		return nil, common.ErrSessionExpired
	}
	return s, nil
}

// ValidateAndGet returns the session only while it can still accept a submission.
func (m *SessionManager) ValidateAndGet(ctx context.Context, token string) (*models.Session, error) {
	s, err := m.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := requirePending(s); err != nil {
		return nil, err
	}
	return s, nil
}

func requirePending(s *models.Session) error {
	if s.Status != models.SessionPending {
		return common.ErrSessionInvalidState.WithMessage(fmt.Sprintf("session is %s", s.Status))
	}
	return nil
}

// UpdateStatus moves a pending session to a terminal status. It reports
// whether the session changed; a session already in a terminal state is left
// untouched and no error is returned. A pending session past its deadline is
// expired instead.
func (m *SessionManager) UpdateStatus(ctx context.Context, token string, to models.SessionStatus) (bool, error) {
	s, err := m.repos.Sessions().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, common.ErrSessionNotFound
		}
		return false, fmt.Errorf("get session: %w", err)
	}
	return m.transition(ctx, m.repos.Sessions(), s, to)
}

// transition is the single write path for session status. It is also used
// inside the submission unit of work with transactional repositories.
func (m *SessionManager) transition(ctx context.Context, repo sessions.Repository, s *models.Session, to models.SessionStatus) (bool, error) {
	if !to.Terminal() {
		return false, common.ErrSessionInvalidState.WithMessage(fmt.Sprintf("cannot move a session to %s", to))
	}
	if s.Status.Terminal() {
		m.log.Debug(ctx, "ignoring transition out of terminal state", "session_id", s.ID, "status", s.Status, "target", to)
		return false, nil
	}

	now := m.now()
	if s.Expired(now) {
		if _, err := repo.Transition(ctx, s.ID, models.SessionPending, models.SessionExpired, now); err != nil {
			return false, fmt.Errorf("expire session: %w", err)
		}
		s.Status = models.SessionExpired
		m.log.Debug(ctx, "session expired before transition", "session_id", s.ID, "target", to)
		return false, nil
	}

	changed, err := repo.Transition(ctx, s.ID, models.SessionPending, to, now)
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	if changed {
		s.Status = to
	}
	return changed, nil
}

// CleanupExpiredSessions marks pending sessions past their deadline as expired.
// Safe to run concurrently with live traffic and with itself.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := m.repos.Sessions().ExpirePending(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	if n > 0 {
		m.log.Info(ctx, "expired stale sessions", "count", n)
	}
	return n, nil
}

// RunSweeper calls CleanupExpiredSessions every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CleanupExpiredSessions(ctx); err != nil {
				m.log.Error(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
