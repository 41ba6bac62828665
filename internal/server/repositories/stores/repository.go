// Package stores persists the stores whose QR codes open sessions.
package stores

import (
	"context"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Store, error)
	Upsert(ctx context.Context, s *models.Store) error
	// RotateQR bumps the store's QR version, invalidating previously printed codes.
	RotateQR(ctx context.Context, id string) (int, error)
}
