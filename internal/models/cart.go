package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cart : un seul panier actif par utilisateur (index unique sur user).
type Cart struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	User                    primitive.ObjectID `bson:"user" json:"user"`
	CartItems               []CartItem         `bson:"cart_items" json:"cart_items"`
	TotalPrice              float64            `bson:"total_price" json:"total_price"`
	TotalPriceAfterDiscount *float64           `bson:"total_price_after_discount,omitempty" json:"total_price_after_discount,omitempty"`
	CouponCode              string             `bson:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	// Identifiant de corrélation Stripe posé à la création de session checkout.
	// C'est la clé à usage unique du webhook : panier absent = déjà converti.
	PaymentIntentID string    `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// CartItem : le prix est capturé à l'ajout, il ne suit PAS le prix produit.
type CartItem struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	Product          primitive.ObjectID  `bson:"product" json:"product"`
	Quantity         int                 `bson:"quantity" json:"quantity"`
	VariationID      *primitive.ObjectID `bson:"variation_id,omitempty" json:"variation_id,omitempty"`
	VariationOptions map[string]string   `bson:"variation_options,omitempty" json:"variation_options,omitempty"`
	Price            float64             `bson:"price" json:"price"`
}
