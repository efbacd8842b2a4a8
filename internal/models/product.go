package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product est le document central du marketplace : le stock, les variations
// et les historiques vivent dans le MÊME document pour que chaque mutation
// reste atomique côté MongoDB.
type Product struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title              string              `bson:"title" json:"title"`
	Slug               string              `bson:"slug" json:"slug"`
	SKU                string              `bson:"sku,omitempty" json:"sku"`
	Description        string              `bson:"description" json:"description"`
	Price              float64             `bson:"price" json:"price"`
	DiscountPercentage float64             `bson:"discount_percentage" json:"discount_percentage"`
	PriceAfterDiscount float64             `bson:"price_after_discount" json:"price_after_discount"`
	Quantity           int                 `bson:"quantity" json:"quantity"`
	ReservedStock      int                 `bson:"reserved_stock" json:"reserved_stock"`
	Sold               int                 `bson:"sold" json:"sold"`
	LowStockThreshold  int                 `bson:"low_stock_threshold" json:"low_stock_threshold"`
	IsLowStock         bool                `bson:"is_low_stock" json:"is_low_stock"`
	Seller             primitive.ObjectID  `bson:"seller,omitempty" json:"seller"`
	HasVariations      bool                `bson:"has_variations" json:"has_variations"`
	VariationAxes      []string            `bson:"variation_axes,omitempty" json:"variation_axes"`
	Variations         []Variation         `bson:"variations,omitempty" json:"variations"`
	PriceHistory       []PriceHistoryEntry `bson:"price_history,omitempty" json:"price_history,omitempty"`
	StockHistory       []StockHistoryEntry `bson:"stock_history,omitempty" json:"stock_history,omitempty"`
	IsActive           bool                `bson:"is_active" json:"is_active"`
	CreatedAt          time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `bson:"updated_at" json:"updated_at"`
}

// Variation porte son propre stock, identifiée par sa map options
// (ex: {"Color": "Black", "Storage": "128GB"}).
type Variation struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SKU                string             `bson:"sku" json:"sku"`
	Options            map[string]string  `bson:"options" json:"options"`
	Price              float64            `bson:"price" json:"price"`
	DiscountPercentage float64            `bson:"discount_percentage" json:"discount_percentage"`
	PriceAfterDiscount float64            `bson:"price_after_discount" json:"price_after_discount"`
	Quantity           int                `bson:"quantity" json:"quantity"`
	ReservedStock      int                `bson:"reserved_stock" json:"reserved_stock"`
	Sold               int                `bson:"sold" json:"sold"`
	LowStockThreshold  int                `bson:"low_stock_threshold" json:"low_stock_threshold"`
	IsLowStock         bool               `bson:"is_low_stock" json:"is_low_stock"`
	IsActive           bool               `bson:"is_active" json:"is_active"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// Types de mouvements enregistrés dans l'historique de stock.
const (
	StockPurchase   = "purchase"
	StockSale       = "sale"
	StockReturn     = "return"
	StockAdjustment = "adjustment"
	StockReserved   = "reserved"
	StockReleased   = "released"
)

// StockHistoryEntry est append-only : jamais modifiée, jamais supprimée.
// StockHistoryEntry vit dans stock_history au niveau du produit ;
// VariationID attribue l'entrée à la variation concernée le cas échéant.
type StockHistoryEntry struct {
	Type        string              `bson:"type" json:"type"`
	Quantity    int                 `bson:"quantity" json:"quantity"`
	VariationID *primitive.ObjectID `bson:"variation_id,omitempty" json:"variation_id,omitempty"`
	OrderID     *primitive.ObjectID `bson:"order_id,omitempty" json:"order_id,omitempty"`
	Notes       string              `bson:"notes,omitempty" json:"notes,omitempty"`
	ChangedBy   string              `bson:"changed_by,omitempty" json:"changed_by,omitempty"`
	ChangedAt   time.Time           `bson:"changed_at" json:"changed_at"`
}

type PriceHistoryEntry struct {
	Price              float64   `bson:"price" json:"price"`
	DiscountPercentage float64   `bson:"discount_percentage" json:"discount_percentage"`
	PriceAfterDiscount float64   `bson:"price_after_discount" json:"price_after_discount"`
	ChangedBy          string    `bson:"changed_by,omitempty" json:"changed_by,omitempty"`
	Reason             string    `bson:"reason,omitempty" json:"reason,omitempty"`
	ChangedAt          time.Time `bson:"changed_at" json:"changed_at"`
}

// AvailableStock = quantité - réservé, jamais négatif.
func (p Product) AvailableStock() int {
	if p.Quantity < p.ReservedStock {
		return 0
	}
	return p.Quantity - p.ReservedStock
}

func (v Variation) AvailableStock() int {
	if v.Quantity < v.ReservedStock {
		return 0
	}
	return v.Quantity - v.ReservedStock
}

// EffectivePrice retourne le prix remisé si présent, sinon le prix de base.
func (p Product) EffectivePrice() float64 {
	if p.PriceAfterDiscount > 0 {
		return p.PriceAfterDiscount
	}
	return p.Price
}

func (v Variation) EffectivePrice() float64 {
	if v.PriceAfterDiscount > 0 {
		return v.PriceAfterDiscount
	}
	return v.Price
}

// ComputePriceAfterDiscount applique ceil(price * (1 - d/100)).
func ComputePriceAfterDiscount(price, discountPercentage float64) float64 {
	return math.Ceil(price * (1 - discountPercentage/100))
}
