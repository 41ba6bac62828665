package transactions

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

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transaction) error {
	query :=
		`INSERT INTO pos_transactions (id, store_id, occurred_at, amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, t.ID, t.StoreID, t.Time, t.Amount); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindClosest(ctx context.Context, storeID string, at time.Time, within time.Duration) (*models.Transaction, error) {
	query :=
		`SELECT id, store_id, occurred_at, amount FROM pos_transactions
		 WHERE store_id = $1 AND occurred_at BETWEEN $2 AND $3
		 ORDER BY ABS(EXTRACT(EPOCH FROM (occurred_at - $4::timestamptz))) ASC
		 LIMIT 1
		 `

	t := &models.Transaction{}
	err := r.db.QueryRowContext(ctx, query, storeID, at.Add(-within), at.Add(within), at).
		Scan(&t.ID, &t.StoreID, &t.Time, &t.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}
