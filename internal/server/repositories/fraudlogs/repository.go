// Package fraudlogs stores the append-only attempt log used for risk scoring.
package fraudlogs

import (
	"context"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, l *models.FraudLog) error
	// Stats summarises attempts at storeID since the given time for the
	// origin ip and for the user agent ua.
	Stats(ctx context.Context, storeID, ip, ua string, since time.Time) (models.AccessStats, error)
}
