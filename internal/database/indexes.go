package database

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes crée les index au démarrage. L'index unique sur carts.user
// est la garantie « un seul panier par utilisateur » : un doublon créé par
// deux requêtes concurrentes est refusé par la base, pas par le code.
func ensureIndexes(ctx context.Context) {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		Carts(): {
			{
				Keys:    bson.D{{Key: "user", Value: 1}},
				Options: mongooptions.Index().SetUnique(true),
			},
		},
		Products(): {
			{Keys: bson.D{{Key: "seller", Value: 1}}},
			{Keys: bson.D{{Key: "sku", Value: 1}}},
			{Keys: bson.D{{Key: "is_low_stock", Value: 1}}},
		},
		Orders(): {
			{Keys: bson.D{{Key: "customer", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "items.seller", Value: 1}}},
			{Keys: bson.D{{Key: "payment_intent_id", Value: 1}, {Key: "is_paid", Value: 1}}},
			{Keys: bson.D{{Key: "delivery_guy", Value: 1}, {Key: "delivery_status", Value: 1}}},
		},
		Coupons(): {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: mongooptions.Index().SetUnique(true),
			},
		},
	}

	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			log.Printf("⚠️  Création d'index échouée sur %s: %v", coll.Name(), err)
		}
	}
	log.Println("✅ Index MongoDB vérifiés")
}
