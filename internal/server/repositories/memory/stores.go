package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/server/models"
)

type StoreRepository struct {
	db *DB
	tx *Tx
}

func (r *StoreRepository) GetByID(_ context.Context, id string) (*models.Store, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.stores[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *StoreRepository) Upsert(_ context.Context, s *models.Store) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	id := s.ID
	prev, existed := r.db.stores[id]
	r.db.stores[id] = *s
	r.tx.record(func() {
		if existed {
			r.db.stores[id] = prev
		} else {
			delete(r.db.stores, id)
		}
	})
	return nil
}

func (r *StoreRepository) RotateQR(_ context.Context, id string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.stores[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	prev := s
	s.QRVersion++
	r.db.stores[id] = s
	r.tx.record(func() { r.db.stores[id] = prev })
	return s.QRVersion, nil
}

type TransactionRepository struct {
	db *DB
	tx *Tx
}

func (r *TransactionRepository) Create(_ context.Context, t *models.Transaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	list := r.db.transactions[t.StoreID]
	for _, existing := range list {
		if existing.ID == t.ID {
			return nil
		}
	}
	list = append(list, *t)
	sort.Slice(list, func(i, j int) bool { return list[i].Time.Before(list[j].Time) })
	r.db.transactions[t.StoreID] = list
	storeID, txID := t.StoreID, t.ID
	r.tx.record(func() {
		r.db.transactions[storeID] = slices.DeleteFunc(r.db.transactions[storeID], func(x models.Transaction) bool {
			return x.ID == txID
		})
	})
	return nil
}

func (r *TransactionRepository) FindClosest(_ context.Context, storeID string, at time.Time, within time.Duration) (*models.Transaction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var (
		best     *models.Transaction
		bestDist time.Duration
	)
	for i := range r.db.transactions[storeID] {
		t := r.db.transactions[storeID][i]
		dist := t.Time.Sub(at).Abs()
		if dist > within {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = &t, dist
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	return best, nil
}
