// Package sessions persists verification sessions.
package sessions

import (
	"context"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// Transition moves the session from one status to another only if it is
	// still in from. It reports whether a row changed.
	Transition(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error)
	// ExpirePending marks every pending session whose deadline passed before now as expired.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}
