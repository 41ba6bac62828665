package fraudlogs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storefeedback/qrverify/internal/dbx"
	"github.com/storefeedback/qrverify/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, l *models.FraudLog) error {
	factors := l.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	encoded, err := json.Marshal(factors)
	if err != nil {
		return fmt.Errorf("encode risk factors: %w", err)
	}

	query :=
		`INSERT INTO fraud_logs (id, store_id, ip_address, user_agent, session_token,
		 attempt_kind, risk_score, risk_factors, blocked, access_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 `

	_, err = r.db.ExecContext(ctx, query,
		l.ID, l.StoreID, l.IPAddress, l.UserAgent, l.SessionToken,
		l.Kind, l.RiskScore, encoded, l.Blocked, l.AccessTimestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, storeID, ip, ua string, since time.Time) (models.AccessStats, error) {
	query :=
		`SELECT
		   (SELECT COUNT(*) FROM fraud_logs
		     WHERE store_id = $1 AND ip_address = $2 AND access_timestamp >= $4),
		   (SELECT COUNT(DISTINCT user_agent) FROM fraud_logs
		     WHERE store_id = $1 AND ip_address = $2 AND user_agent <> '' AND access_timestamp >= $4),
		   (SELECT COUNT(DISTINCT ip_address) FROM fraud_logs
		     WHERE store_id = $1 AND user_agent = $3 AND $3 <> '' AND access_timestamp >= $4)
		 `

	var st models.AccessStats
	err := r.db.QueryRowContext(ctx, query, storeID, ip, ua, since).
		Scan(&st.OriginAttempts, &st.OriginUserAgents, &st.UserAgentOrigins)
	if err != nil {
		return models.AccessStats{}, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}
