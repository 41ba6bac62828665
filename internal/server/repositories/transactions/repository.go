// Package transactions reads point-of-sale records used as the expected side of a verification.
package transactions

import (
	"context"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Transaction) error
	// FindClosest returns the store's transaction nearest to at, no further
	// than within away. No candidate yields common.ErrorNotFound.
	FindClosest(ctx context.Context, storeID string, at time.Time, within time.Duration) (*models.Transaction, error)
}
