package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Store is a physical store whose QR codes start verification sessions.
type Store struct {
	ID           string
	Name         string
	BusinessName string
	Address      string
	QRVersion    int
	Active       bool
}

// StoreInfo is the display subset of a store returned to customers.
type StoreInfo struct {
	StoreID      string `json:"store_id"`
	StoreName    string `json:"store_name"`
	BusinessName string `json:"business_name"`
	Address      string `json:"address,omitempty"`
}

// Info returns the customer-facing view of the store.
func (s *Store) Info() StoreInfo {
	return StoreInfo{StoreID: s.ID, StoreName: s.Name, BusinessName: s.BusinessName, Address: s.Address}
}

// Transaction is a point-of-sale record the customer cannot see directly.
type Transaction struct {
	ID      string
	StoreID string
	Time    time.Time
	Amount  decimal.Decimal
}
