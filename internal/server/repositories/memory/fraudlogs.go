package memory

import (
	"context"
	"slices"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
)

type FraudLogRepository struct {
	db *DB
	tx *Tx
}

func (r *FraudLogRepository) Append(_ context.Context, l *models.FraudLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	entry := *l
	entry.RiskFactors = slices.Clone(l.RiskFactors)
	r.db.fraudLogs = append(r.db.fraudLogs, entry)
	idx := len(r.db.fraudLogs) - 1
	r.tx.record(func() { r.db.fraudLogs = slices.Delete(r.db.fraudLogs, idx, idx+1) })
	return nil
}

func (r *FraudLogRepository) Stats(_ context.Context, storeID, ip, ua string, since time.Time) (models.AccessStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var st models.AccessStats
	agents := map[string]struct{}{}
	origins := map[string]struct{}{}
	for _, l := range r.db.fraudLogs {
		if l.StoreID != storeID || l.AccessTimestamp.Before(since) {
			continue
		}
		if l.IPAddress == ip {
			st.OriginAttempts++
			if l.UserAgent != "" {
				agents[l.UserAgent] = struct{}{}
			}
		}
		if ua != "" && l.UserAgent == ua {
			origins[l.IPAddress] = struct{}{}
		}
	}
	st.OriginUserAgents = len(agents)
	st.UserAgentOrigins = len(origins)
	return st, nil
}

// Len returns the number of appended log entries.
func (r *FraudLogRepository) Len() int {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.fraudLogs)
}
