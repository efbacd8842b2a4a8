package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      string             `bson:"role" json:"role"` // "user", "seller", "delivery", "admin"
	City      string             `bson:"city,omitempty" json:"city,omitempty"`
	Addresses []ShippingAddress  `bson:"addresses,omitempty" json:"addresses,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// DeliveryProfile : profil livreur avec compteurs de gains.
type DeliveryProfile struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	Status          string             `bson:"status" json:"status"` // "available", "busy", "offline"
	CurrentCity     string             `bson:"current_city,omitempty" json:"current_city,omitempty"`
	VehicleType     string             `bson:"vehicle_type,omitempty" json:"vehicle_type,omitempty"`
	TotalDeliveries int                `bson:"total_deliveries" json:"total_deliveries"`
	Earnings        float64            `bson:"earnings" json:"earnings"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}
