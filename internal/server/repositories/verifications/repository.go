// Package verifications persists submitted customer claims and their verdicts.
package verifications

import (
	"context"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type Repository interface {
	// Create inserts v. A second verification for the same session yields common.ErrorAlreadyExists.
	Create(ctx context.Context, v *models.Verification) error
	GetByID(ctx context.Context, id string) (*models.Verification, error)
	ExistsForSession(ctx context.Context, sessionID string) (bool, error)
}
