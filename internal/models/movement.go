package models

import (
	"time"

	"github.com/gocql/gocql"
)

// StockMovement est le flux plat d'audit écrit dans ScyllaDB après chaque
// mutation du ledger Mongo. Le document produit reste la source de vérité,
// ce flux sert au reporting trans-produits.
type StockMovement struct {
	ID          gocql.UUID `json:"id"`
	ProductID   string     `json:"product_id"`
	VariationID string     `json:"variation_id,omitempty"`
	Type        string     `json:"type"`
	Quantity    int        `json:"quantity"`
	PrevStock   int        `json:"prev_stock"`
	NewStock    int        `json:"new_stock"`
	OrderID     string     `json:"order_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type StockAlert struct {
	ID             gocql.UUID `json:"id"`
	ProductID      string     `json:"product_id"`
	ProductTitle   string     `json:"product_title"`
	CurrentStock   int        `json:"current_stock"`
	ThresholdStock int        `json:"threshold_stock"`
	AlertType      string     `json:"alert_type"` // "low_stock", "out_of_stock"
	IsResolved     bool       `json:"is_resolved"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
