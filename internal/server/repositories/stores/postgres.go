package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Store, error) {
	query :=
		`SELECT id, name, business_name, address, qr_version, active FROM stores
		 WHERE id = $1
		 `

	s := &models.Store{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.BusinessName, &s.Address, &s.QRVersion, &s.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Store) error {
	query :=
		`INSERT INTO stores (id, name, business_name, address, qr_version, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, business_name = EXCLUDED.business_name,
		 address = EXCLUDED.address, qr_version = EXCLUDED.qr_version, active = EXCLUDED.active
		 `

	if _, err := r.db.ExecContext(ctx, query, s.ID, s.Name, s.BusinessName, s.Address, s.QRVersion, s.Active); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RotateQR(ctx context.Context, id string) (int, error) {
	query :=
		`UPDATE stores SET qr_version = qr_version + 1
		 WHERE id = $1
		 RETURNING qr_version
		 `

	var version int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}
