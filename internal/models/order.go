package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Statuts de commande.
const (
	OrderPending   = "pending"
	OrderApproved  = "Approved"
	OrderShipping  = "shipping"
	OrderCompleted = "completed"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
	OrderReturned  = "returned"
	OrderDamaged   = "damaged"
)

// Sous-machine livraison, indépendante du statut de commande.
const (
	DeliveryUnassigned = "unassigned"
	DeliveryAssigned   = "assigned"
	DeliveryPickedUp   = "picked_up"
	DeliveryInTransit  = "in_transit"
	DeliveryDelivered  = "delivered"
)

// Moyens de paiement.
const (
	PaymentCashOnDelivery = "cash on delivery"
	PaymentOnline         = "online payment"
	PaymentStripe         = "Stripe"
)

// ValidPaymentMethod : seuls les moyens de paiement connus sont acceptés.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCashOnDelivery, PaymentOnline, PaymentStripe:
		return true
	}
	return false
}

type Order struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Customer primitive.ObjectID `bson:"customer" json:"customer"`

	// TrackingNumber : référence opaque communiquée au client et au livreur.
	TrackingNumber  string              `bson:"tracking_number" json:"tracking_number"`
	Items           []OrderItem         `bson:"items" json:"items"`
	CartPrice       float64             `bson:"cart_price" json:"cart_price"`
	Taxes           float64             `bson:"taxes" json:"taxes"`
	Shipping        float64             `bson:"shipping" json:"shipping"`
	TotalOrderPrice float64             `bson:"total_order_price" json:"total_order_price"`
	PaymentMethod   string              `bson:"payment_method" json:"payment_method"`
	PaymentIntentID string              `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	IsPaid          bool                `bson:"is_paid" json:"is_paid"`
	PaidAt          *time.Time          `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	Status          string              `bson:"status" json:"status"`
	ShippingAddress *ShippingAddress    `bson:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	DeliveryGuy     *primitive.ObjectID `bson:"delivery_guy,omitempty" json:"delivery_guy,omitempty"`
	DeliveryStatus  string              `bson:"delivery_status" json:"delivery_status"`
	DeliveryNotes   string              `bson:"delivery_notes,omitempty" json:"delivery_notes,omitempty"`
	AssignedAt      *time.Time          `bson:"assigned_at,omitempty" json:"assigned_at,omitempty"`
	PickedUpAt      *time.Time          `bson:"picked_up_at,omitempty" json:"picked_up_at,omitempty"`
	DeliveredAt     *time.Time          `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
}

// OrderItem : snapshot du panier. Le seller est dénormalisé volontairement,
// la propriété d'un produit peut changer après la vente.
type OrderItem struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	Product          primitive.ObjectID  `bson:"product" json:"product"`
	ProductTitle     string              `bson:"product_title,omitempty" json:"product_title,omitempty"`
	Quantity         int                 `bson:"quantity" json:"quantity"`
	Price            float64             `bson:"price" json:"price"`
	VariationID      *primitive.ObjectID `bson:"variation_id,omitempty" json:"variation_id,omitempty"`
	VariationOptions map[string]string   `bson:"variation_options,omitempty" json:"variation_options,omitempty"`
	Seller           primitive.ObjectID  `bson:"seller,omitempty" json:"seller"`
	// true quand le stock de cet item a déjà été décrémenté (vente),
	// false tant qu'il n'est que réservé. Pilote annulation vs retour.
	StockConsumed bool `bson:"stock_consumed" json:"stock_consumed"`
}

type ShippingAddress struct {
	Details    string `bson:"details" json:"details"`
	Phone      string `bson:"phone" json:"phone"`
	City       string `bson:"city" json:"city"`
	Country    string `bson:"country" json:"country"`
	PostalCode string `bson:"postal_code" json:"postal_code"`
}
