package verifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

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

func (r *PostgresRepository) Create(ctx context.Context, v *models.Verification) error {
	results, err := json.Marshal(v.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	var amount decimal.NullDecimal
	if v.TransactionAmount != nil {
		amount = decimal.NewNullDecimal(*v.TransactionAmount)
	}
	var at sql.NullTime
	if v.TransactionTime != nil {
		at = sql.NullTime{Time: *v.TransactionTime, Valid: true}
	}

	query :=
		`INSERT INTO verifications (id, session_id, store_id, transaction_time, transaction_amount,
		 phone_raw, phone_e164, phone_national, status, results, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 `

	_, err = r.db.ExecContext(ctx, query,
		v.ID, v.SessionID, v.StoreID, at, amount,
		v.PhoneRaw, v.PhoneE164, v.PhoneNational, v.Status, results, v.SubmittedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Verification, error) {
	query :=
		`SELECT id, session_id, store_id, transaction_time, transaction_amount,
		 phone_raw, phone_e164, phone_national, status, results, submitted_at
		 FROM verifications WHERE id = $1
		 `

	var (
		v       models.Verification
		at      sql.NullTime
		amount  decimal.NullDecimal
		results []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.SessionID, &v.StoreID, &at, &amount,
		&v.PhoneRaw, &v.PhoneE164, &v.PhoneNational, &v.Status, &results, &v.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if at.Valid {
		v.TransactionTime = &at.Time
	}
	if amount.Valid {
		v.TransactionAmount = &amount.Decimal
	}
	if err := json.Unmarshal(results, &v.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) ExistsForSession(ctx context.Context, sessionID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM verifications WHERE session_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
