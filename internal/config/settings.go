package config

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
)

const (
	settingsCacheKey = "settings:global"
	settingsCacheTTL = 5 * time.Minute
)

// Settings : paramètres de facturation modifiables par l'admin sans
// redéploiement. Les handlers les relisent à chaque commande, jamais figés
// au démarrage.
type Settings struct {
	TaxRate       float64 `bson:"tax_rate" json:"tax_rate"`             // ex: 0.14 pour 14%
	ShippingPrice float64 `bson:"shipping_price" json:"shipping_price"` // forfait par commande
	DeliveryFee   float64 `bson:"delivery_fee" json:"delivery_fee"`     // rémunération livreur par course
}

func DefaultSettings() Settings {
	return Settings{TaxRate: 0.14, ShippingPrice: 10, DeliveryFee: 10}
}

// GetSettings : Redis d'abord, Mongo ensuite, valeurs par défaut en dernier
// recours. Un souci de cache ne doit jamais bloquer un checkout.
func GetSettings(ctx context.Context) Settings {
	data, err := database.Redis.Get(ctx, settingsCacheKey).Result()
	if err == nil {
		var s Settings
		if json.Unmarshal([]byte(data), &s) == nil {
			return s
		}
	}

	var s Settings
	err = database.Settings().FindOne(ctx, bson.M{"_id": "global"}).Decode(&s)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			log.Printf("⚠️  Lecture des paramètres échouée (%v) — valeurs par défaut", err)
		}
		return DefaultSettings()
	}

	jsonData, _ := json.Marshal(s)
	database.Redis.Set(ctx, settingsCacheKey, jsonData, settingsCacheTTL)
	return s
}

// UpdateSettings écrit les paramètres et invalide le cache.
func UpdateSettings(ctx context.Context, s Settings) error {
	_, err := database.Settings().UpdateOne(ctx,
		bson.M{"_id": "global"},
		bson.M{"$set": s},
		mongooptions.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	database.Redis.Del(ctx, settingsCacheKey)
	return nil
}
