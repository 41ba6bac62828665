package repomanager

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/storefeedback/qrverify/internal/server/models"
)

// SeedFile lists stores and POS transactions to load at startup.
//
//	stores:
//	  - id: store-1
//	    name: ICA Nära Odenplan
//	    qr_version: 1
//	transactions:
//	  - id: t-1
//	    store_id: store-1
//	    time: 2026-03-10T14:30:00+01:00
//	    amount: "125.50"
type SeedFile struct {
	Stores       []seedStore       `yaml:"stores"`
	Transactions []seedTransaction `yaml:"transactions"`
}

type seedStore struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	BusinessName string `yaml:"business_name"`
	Address      string `yaml:"address"`
	QRVersion    int    `yaml:"qr_version"`
	Active       *bool  `yaml:"active"`
}

type seedTransaction struct {
	ID      string    `yaml:"id"`
	StoreID string    `yaml:"store_id"`
	Time    time.Time `yaml:"time"`
	Amount  string    `yaml:"amount"`
}

// LoadSeed reads a YAML seed file from path.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Seed writes every store and transaction in f through repos in one unit of work.
func Seed(ctx context.Context, m RepositoryManager, f *SeedFile) error {
	return m.WithTx(ctx, func(ctx context.Context, repos Repositories) error {
		for _, s := range f.Stores {
			if s.ID == "" {
				return fmt.Errorf("seed store without id")
			}
			store := &models.Store{
				ID:           s.ID,
				Name:         s.Name,
				BusinessName: s.BusinessName,
				Address:      s.Address,
				QRVersion:    max(s.QRVersion, 1),
				Active:       s.Active == nil || *s.Active,
			}
			if err := repos.Stores().Upsert(ctx, store); err != nil {
				return fmt.Errorf("seed store %s: %w", s.ID, err)
			}
		}
		for _, t := range f.Transactions {
			amount, err := decimal.NewFromString(t.Amount)
			if err != nil {
				return fmt.Errorf("seed transaction %s: invalid amount %q", t.ID, t.Amount)
			}
			tx := &models.Transaction{ID: t.ID, StoreID: t.StoreID, Time: t.Time, Amount: amount.Round(2)}
			if err := repos.Transactions().Create(ctx, tx); err != nil {
				return fmt.Errorf("seed transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}
