package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Coupon : code de 8 caractères, normalisé en majuscules, remise en pourcentage.
type Coupon struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code      string             `bson:"code" json:"code"`
	Discount  float64            `bson:"discount" json:"discount"`
	Expire    time.Time          `bson:"expire" json:"expire"`
	CreatedBy string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
