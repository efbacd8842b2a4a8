// Package delivery expose le parcours livreur : profil et disponibilité,
// commandes à proximité, auto-assignation, et la sous-machine de statut de
// livraison qui avance indépendamment du statut de commande.
package delivery

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/config"
	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/orders"
	"souq_back_end/internal/stock"
)

func ledger() *stock.Ledger {
	return stock.NewLedger(database.Products(), stock.NewScyllaFeed(database.Scylla))
}

func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	raw := c.GetString("user_id")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "non authentifié"})
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiant utilisateur invalide"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// 🟢 GET /api/delivery/profile
func GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var profile models.DeliveryProfile
	err := database.DeliveryProfiles().FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if err == mongo.ErrNoDocuments {
		// Premier accès : profil créé hors-ligne par défaut.
		profile = models.DeliveryProfile{
			UserID:    userID,
			Status:    "offline",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		res, insErr := database.DeliveryProfiles().InsertOne(ctx, profile)
		if insErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création profil"})
			return
		}
		profile.ID = res.InsertedID.(primitive.ObjectID)
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture profil"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// 🟢 PUT /api/delivery/profile — disponibilité, ville, véhicule
func UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Status      string `json:"status"`
		CurrentCity string `json:"current_city"`
		VehicleType string `json:"vehicle_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	set := bson.M{"updated_at": time.Now()}
	if req.Status != "" {
		if req.Status != "available" && req.Status != "busy" && req.Status != "offline" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Statut invalide"})
			return
		}
		set["status"] = req.Status
	}
	if req.CurrentCity != "" {
		set["current_city"] = req.CurrentCity
	}
	if req.VehicleType != "" {
		set["vehicle_type"] = req.VehicleType
	}

	ctx := c.Request.Context()
	var profile models.DeliveryProfile
	err := database.DeliveryProfiles().FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": time.Now()}},
		mongooptions.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mongooptions.After),
	).Decode(&profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour profil"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// 🟢 GET /api/delivery/orders/nearby — commandes non assignées dans la ville
// du livreur
func NearbyOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var profile models.DeliveryProfile
	if err := database.DeliveryProfiles().FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profil livreur introuvable"})
		return
	}

	filter := bson.M{
		"delivery_status": models.DeliveryUnassigned,
		"status":          bson.M{"$in": []string{models.OrderApproved, models.OrderShipping}},
	}
	if profile.CurrentCity != "" {
		filter["shipping_address.city"] = profile.CurrentCity
	}

	opts := mongooptions.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(50)
	cursor, err := database.Orders().Find(ctx, filter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commandes"})
		return
	}
	defer cursor.Close(ctx)

	list := []models.Order{}
	if err := cursor.All(ctx, &list); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur décodage commandes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// 🟢 POST /api/delivery/orders/:id/assign — auto-assignation. Le filtre
// conditionnel sur delivery_status empêche deux livreurs de prendre la même
// commande.
func AssignOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()
	var order models.Order
	err = database.Orders().FindOneAndUpdate(ctx,
		bson.M{"_id": orderID, "delivery_status": models.DeliveryUnassigned},
		bson.M{"$set": bson.M{
			"delivery_guy":    userID,
			"delivery_status": models.DeliveryAssigned,
			"assigned_at":     now,
			"updated_at":      now,
		}},
		mongooptions.FindOneAndUpdate().SetReturnDocument(mongooptions.After),
	).Decode(&order)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Commande déjà assignée ou introuvable"})
		return
	}

	database.DeliveryProfiles().UpdateOne(ctx, bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"status": "busy", "updated_at": now}})

	c.JSON(http.StatusOK, order)
}

// 🟢 PUT /api/delivery/orders/:id/status — avance la sous-machine livraison.
// picked_up fait passer la commande en shipping ; delivered déclenche la
// statusEffects décrit les effets d'un changement de statut de livraison.
type statusEffects struct {
	NoOp      bool
	PickedUp  bool
	Delivered bool
}

// deliveryEffects : la répétition du statut courant est un no-op pur — le
// crédit de course n'est déclenché que par la transition effective vers
// delivered, jamais par une relivraison.
func deliveryEffects(current, requested string) statusEffects {
	if current == requested {
		return statusEffects{NoOp: true}
	}
	return statusEffects{
		PickedUp:  requested == models.DeliveryPickedUp,
		Delivered: requested == models.DeliveryDelivered,
	}
}

// transition delivered de la commande (consommation du stock réservé) et
// crédite le livreur de sa course.
func UpdateDeliveryStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	var req struct {
		DeliveryStatus string `json:"delivery_status" binding:"required"`
		Notes          string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Statut requis"})
		return
	}

	ctx := c.Request.Context()
	var order models.Order
	err = database.Orders().FindOne(ctx, bson.M{"_id": orderID, "delivery_guy": userID}).Decode(&order)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	if !orders.CanTransitionDelivery(order.DeliveryStatus, req.DeliveryStatus) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Transition de livraison invalide : " + order.DeliveryStatus + " → " + req.DeliveryStatus,
		})
		return
	}

	effects := deliveryEffects(order.DeliveryStatus, req.DeliveryStatus)
	if effects.NoOp {
		// Relivraison du même statut : aucun effet — ni timestamp, ni
		// transition de commande, ni crédit de course.
		c.JSON(http.StatusOK, order)
		return
	}

	now := time.Now()
	set := bson.M{"delivery_status": req.DeliveryStatus, "updated_at": now}
	if req.Notes != "" {
		set["delivery_notes"] = req.Notes
	}

	switch {
	case effects.PickedUp:
		set["picked_up_at"] = now
		// La prise en charge fait avancer la commande elle-même.
		if orders.CanTransition(order.Status, models.OrderShipping) {
			set["status"] = models.OrderShipping
			order.Status = models.OrderShipping
		}
	case effects.Delivered:
		set["delivered_at"] = now
		plan, planErr := orders.PlanTransition(order, orders.AllItems, models.OrderDelivered)
		if planErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": planErr.Error()})
			return
		}
		items := orders.Apply(ctx, ledger(), order, plan, userID.Hex())
		set["status"] = plan.NewStatus
		set["items"] = items

		// Course créditée : compteur + gains au forfait courant.
		fee := config.GetSettings(ctx).DeliveryFee
		database.DeliveryProfiles().UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
			"$inc": bson.M{"total_deliveries": 1, "earnings": fee},
			"$set": bson.M{"status": "available", "updated_at": now},
		})
	}

	if _, err := database.Orders().UpdateByID(ctx, orderID, bson.M{"$set": set}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour commande"})
		return
	}

	var updated models.Order
	if err := database.Orders().FindOne(ctx, bson.M{"_id": orderID}).Decode(&updated); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Livraison mise à jour"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// 🟢 GET /api/delivery/stats — compteurs du jour et du mois
func Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var profile models.DeliveryProfile
	if err := database.DeliveryProfiles().FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profil livreur introuvable"})
		return
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	base := bson.M{"delivery_guy": userID, "delivery_status": models.DeliveryDelivered}

	today, _ := database.Orders().CountDocuments(ctx, mergeFilter(base, bson.M{"delivered_at": bson.M{"$gte": dayStart}}))
	month, _ := database.Orders().CountDocuments(ctx, mergeFilter(base, bson.M{"delivered_at": bson.M{"$gte": monthStart}}))

	fee := config.GetSettings(ctx).DeliveryFee
	c.JSON(http.StatusOK, gin.H{
		"today":            today,
		"this_month":       month,
		"total_deliveries": profile.TotalDeliveries,
		"earnings":         profile.Earnings,
		"earnings_today":   float64(today) * fee,
	})
}

func mergeFilter(base, extra bson.M) bson.M {
	out := bson.M{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
