package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/dbx"
	"github.com/storefeedback/qrverify/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectSession = `SELECT id, store_id, qr_version, session_token, status, fraud_warning,
		 risk_score, ip_address, user_agent, created_at, expires_at, updated_at
		 FROM verification_sessions`

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO verification_sessions (id, store_id, qr_version, session_token, status,
		 fraud_warning, risk_score, ip_address, user_agent, created_at, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 `

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.StoreID, s.QRVersion, s.Token, s.Status, s.FraudWarning, s.RiskScore,
		s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt, s.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getOne(ctx, selectSession+" WHERE session_token = $1", token)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getOne(ctx, selectSession+" WHERE id = $1", id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID, &s.StoreID, &s.QRVersion, &s.Token, &s.Status, &s.FraudWarning,
		&s.RiskScore, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	query :=
		`UPDATE verification_sessions SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4
		 `

	res, err := r.db.ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE verification_sessions SET status = 'expired', updated_at = $1
		 WHERE status = 'pending' AND expires_at < $1
		 `

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
