package stock

import (
	"context"
	"log"
	"time"

	"github.com/gocql/gocql"

	"souq_back_end/internal/models"
)

// ScyllaFeed duplique les mouvements de stock dans des tables plates ScyllaDB
// pour le reporting trans-produits et les alertes de stock faible. Toutes les
// écritures sont best-effort : un échec est loggé, jamais propagé.
type ScyllaFeed struct {
	Session *gocql.Session
}

func NewScyllaFeed(session *gocql.Session) *ScyllaFeed {
	return &ScyllaFeed{Session: session}
}

func (f *ScyllaFeed) Record(ctx context.Context, m Movement) {
	if f == nil || f.Session == nil {
		return
	}

	variationID := ""
	if m.Target.VariationID != nil {
		variationID = m.Target.VariationID.Hex()
	}

	query := `
		INSERT INTO stock_movements (
			id, product_id, variation_id, type, quantity, prev_stock, new_stock, order_id, reason, user_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := f.Session.Query(query,
		gocql.TimeUUID(), m.Target.ProductID.Hex(), variationID, m.Type, m.Quantity,
		m.PrevStock, m.NewStock, m.OrderID, m.Reason, m.Actor, time.Now(),
	).WithContext(ctx).Exec(); err != nil {
		log.Printf("⚠️ Erreur enregistrement mouvement stock: %v", err)
	}
}

// CheckLowStock crée une alerte si le produit passe sous son seuil, sauf si
// une alerte non résolue existe déjà.
func (f *ScyllaFeed) CheckLowStock(ctx context.Context, p models.Product) {
	if f == nil || f.Session == nil {
		return
	}

	available := p.AvailableStock()
	var alertType string
	switch {
	case available == 0:
		alertType = "out_of_stock"
	case available <= p.LowStockThreshold:
		alertType = "low_stock"
	default:
		return
	}

	var existing gocql.UUID
	checkQuery := `SELECT id FROM stock_alerts WHERE product_id = ? AND is_resolved = false LIMIT 1 ALLOW FILTERING`
	if err := f.Session.Query(checkQuery, p.ID.Hex()).WithContext(ctx).Scan(&existing); err == nil {
		return // alerte déjà ouverte
	}

	insertQuery := `
		INSERT INTO stock_alerts (
			id, product_id, product_title, current_stock, threshold_stock, alert_type, is_resolved, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := f.Session.Query(insertQuery,
		gocql.TimeUUID(), p.ID.Hex(), p.Title, available, p.LowStockThreshold,
		alertType, false, time.Now(),
	).WithContext(ctx).Exec(); err != nil {
		log.Printf("⚠️ Erreur création alerte stock: %v", err)
	} else {
		log.Printf("🚨 Alerte stock créée pour %s: %s", p.Title, alertType)
	}
}

// Movements liste les derniers mouvements, optionnellement filtrés par produit.
func (f *ScyllaFeed) Movements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var query string
	var args []interface{}
	if productID != "" {
		query = `SELECT id, product_id, variation_id, type, quantity, prev_stock, new_stock, order_id, reason, user_id, created_at
				 FROM stock_movements WHERE product_id = ? LIMIT ? ALLOW FILTERING`
		args = []interface{}{productID, limit}
	} else {
		query = `SELECT id, product_id, variation_id, type, quantity, prev_stock, new_stock, order_id, reason, user_id, created_at
				 FROM stock_movements LIMIT ?`
		args = []interface{}{limit}
	}

	iter := f.Session.Query(query, args...).WithContext(ctx).Iter()
	defer iter.Close()

	var movements []models.StockMovement
	var m models.StockMovement
	for iter.Scan(&m.ID, &m.ProductID, &m.VariationID, &m.Type, &m.Quantity,
		&m.PrevStock, &m.NewStock, &m.OrderID, &m.Reason, &m.UserID, &m.CreatedAt) {
		movements = append(movements, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return movements, nil
}

// OpenAlerts liste les alertes de stock non résolues.
func (f *ScyllaFeed) OpenAlerts(ctx context.Context) ([]models.StockAlert, error) {
	query := `SELECT id, product_id, product_title, current_stock, threshold_stock, alert_type, is_resolved, created_at
			  FROM stock_alerts WHERE is_resolved = false ALLOW FILTERING`

	iter := f.Session.Query(query).WithContext(ctx).Iter()
	defer iter.Close()

	var alerts []models.StockAlert
	var a models.StockAlert
	for iter.Scan(&a.ID, &a.ProductID, &a.ProductTitle, &a.CurrentStock,
		&a.ThresholdStock, &a.AlertType, &a.IsResolved, &a.CreatedAt) {
		alerts = append(alerts, a)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ResolveAlert marque une alerte comme traitée.
func (f *ScyllaFeed) ResolveAlert(ctx context.Context, alertID gocql.UUID) error {
	query := `UPDATE stock_alerts SET is_resolved = true, resolved_at = ? WHERE id = ?`
	return f.Session.Query(query, time.Now(), alertID).WithContext(ctx).Exec()
}
