// Package order crée les commandes depuis le panier et pilote leurs
// transitions de statut. Les effets stock passent tous par le moteur de
// transition partagé : admin, vendeur et livraison appliquent exactement les
// mêmes règles.
package order

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/config"
	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/orders"
	"souq_back_end/internal/pricing"
	"souq_back_end/internal/stock"
	"souq_back_end/internal/utils"
)

func ledger() *stock.Ledger {
	return stock.NewLedger(database.Products(), stock.NewScyllaFeed(database.Scylla))
}

// 🟢 POST /api/orders/cash/:cartId — commande paiement à la livraison.
// Tout-ou-rien : au premier article en rupture, on relâche les réservations
// déjà posées et on supprime la commande naissante.
func CreateCashOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	cartID, err := primitive.ObjectIDFromHex(c.Param("cartId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID panier invalide"})
		return
	}

	var req struct {
		ShippingAddress *models.ShippingAddress `json:"shipping_address"`
	}
	// Body optionnel : l'adresse peut venir du profil.
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	var cart models.Cart
	if err := database.Carts().FindOne(ctx, bson.M{"_id": cartID, "user": userID}).Decode(&cart); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Panier introuvable"})
		return
	}
	if len(cart.CartItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Panier vide"})
		return
	}

	order, failed := buildOrder(ctx, c, cart, userID, models.PaymentCashOnDelivery, req.ShippingAddress)
	if failed {
		return
	}

	res, err := database.Orders().InsertOne(ctx, order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création commande"})
		return
	}
	order.ID = res.InsertedID.(primitive.ObjectID)

	// Réservation séquentielle, compensée au premier échec.
	led := ledger()
	reserved := []models.OrderItem{}
	for _, item := range order.Items {
		target := stock.Target{ProductID: item.Product, VariationID: item.VariationID}
		if _, err := led.Reserve(ctx, target, item.Quantity, userID.Hex()); err != nil {
			for _, prev := range reserved {
				prevTarget := stock.Target{ProductID: prev.Product, VariationID: prev.VariationID}
				led.Release(ctx, prevTarget, prev.Quantity, userID.Hex())
			}
			database.Orders().DeleteOne(ctx, bson.M{"_id": order.ID})

			var insufficient stock.InsufficientStockError
			if errors.As(err, &insufficient) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":     "Stock insuffisant pour " + insufficient.Item,
					"available": insufficient.Available,
					"requested": insufficient.Requested,
				})
				return
			}
			if errors.Is(err, stock.ErrProductNotFound) || errors.Is(err, stock.ErrVariationNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Un article du panier n'existe plus"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur réservation stock"})
			return
		}
		reserved = append(reserved, item)
	}

	if _, err := database.Carts().DeleteOne(ctx, bson.M{"_id": cart.ID}); err != nil {
		log.Printf("⚠️ Suppression panier %s échouée après commande: %v", cart.ID.Hex(), err)
	}

	log.Printf("📦 Commande cash %s créée (%.2f) pour %s", order.ID.Hex(), order.TotalOrderPrice, userID.Hex())
	go notifyStatus(order, userID)

	c.JSON(http.StatusCreated, order)
}

// 🟢 GET /api/orders/my
func GetMyOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	opts := mongooptions.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := database.Orders().Find(ctx, bson.M{"customer": userID}, opts)
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
	c.JSON(http.StatusOK, list)
}

// 🟢 GET /api/orders/:id
func GetOrderByID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	filter := bson.M{"_id": orderID}
	if c.GetString("role") != "admin" {
		// Introuvable et non-possédée renvoient la même réponse.
		filter["customer"] = userID
	}

	var order models.Order
	if err := database.Orders().FindOne(c.Request.Context(), filter).Decode(&order); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// 🟢 GET /api/orders (admin)
func GetAllOrders(c *gin.Context) {
	ctx := c.Request.Context()
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}

	opts := mongooptions.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
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

// 🟢 PUT /api/orders/:id/status (admin) — transition via le moteur partagé,
// sélection "tous les items".
func UpdateOrderStatus(c *gin.Context) {
	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	var req struct {
		Status        string `json:"status"`
		IsPaid        *bool  `json:"is_paid"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}
	// Validé avant toute transition : un rejet ici ne doit laisser aucun
	// effet de bord.
	if req.PaymentMethod != "" && !models.ValidPaymentMethod(req.PaymentMethod) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Moyen de paiement inconnu"})
		return
	}

	ctx := c.Request.Context()
	var order models.Order
	if err := database.Orders().FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	set := bson.M{"updated_at": time.Now()}

	if req.Status != "" {
		plan, err := orders.PlanTransition(order, orders.AllItems, req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items := orders.Apply(ctx, ledger(), order, plan, c.GetString("user_id"))
		set["status"] = plan.NewStatus
		set["items"] = items
		if plan.SetDeliveredAt {
			now := time.Now()
			set["delivered_at"] = now
		}
		order.Status = plan.NewStatus
	}
	if req.IsPaid != nil {
		set["is_paid"] = *req.IsPaid
		if *req.IsPaid {
			now := time.Now()
			set["paid_at"] = now
		}
	}
	if req.PaymentMethod != "" {
		set["payment_method"] = req.PaymentMethod
	}

	if _, err := database.Orders().UpdateByID(ctx, orderID, bson.M{"$set": set}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour commande"})
		return
	}

	var updated models.Order
	if err := database.Orders().FindOne(ctx, bson.M{"_id": orderID}).Decode(&updated); err == nil {
		if req.Status != "" {
			go notifyStatus(updated, updated.Customer)
		}
		c.JSON(http.StatusOK, updated)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Commande mise à jour"})
}

// 🟢 DELETE /api/orders/:id (admin)
func DeleteOrder(c *gin.Context) {
	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	res, err := database.Orders().DeleteOne(c.Request.Context(), bson.M{"_id": orderID})
	if err != nil || res.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Commande supprimée"})
}

// --- helpers ---

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

// buildOrder transforme le panier en commande : snapshot des lignes avec le
// vendeur de chaque produit (dénormalisé au moment de la vente), taxes et
// livraison depuis les paramètres courants.
func buildOrder(ctx context.Context, c *gin.Context, cart models.Cart, customer primitive.ObjectID,
	paymentMethod string, address *models.ShippingAddress) (models.Order, bool) {

	items := make([]models.OrderItem, 0, len(cart.CartItems))
	for _, line := range cart.CartItems {
		var product models.Product
		if err := database.Products().FindOne(ctx, bson.M{"_id": line.Product}).Decode(&product); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Un article du panier n'existe plus"})
			return models.Order{}, true
		}
		items = append(items, models.OrderItem{
			ID:               primitive.NewObjectID(),
			Product:          line.Product,
			ProductTitle:     product.Title,
			Quantity:         line.Quantity,
			Price:            line.Price,
			VariationID:      line.VariationID,
			VariationOptions: line.VariationOptions,
			Seller:           product.Seller,
		})
	}

	cartPrice := cart.TotalPrice
	if cart.TotalPriceAfterDiscount != nil {
		cartPrice = *cart.TotalPriceAfterDiscount
	}

	settings := config.GetSettings(ctx)
	taxes, total := pricing.OrderTotals(cartPrice, settings.TaxRate, settings.ShippingPrice)

	if address == nil {
		var user models.User
		if err := database.Users().FindOne(ctx, bson.M{"_id": customer}).Decode(&user); err == nil && len(user.Addresses) > 0 {
			address = &user.Addresses[0]
		}
	}

	now := time.Now()
	return models.Order{
		Customer:        customer,
		TrackingNumber:  "SQ-" + uuid.NewString(),
		Items:           items,
		CartPrice:       cartPrice,
		Taxes:           taxes,
		Shipping:        settings.ShippingPrice,
		TotalOrderPrice: total,
		PaymentMethod:   paymentMethod,
		Status:          models.OrderPending,
		DeliveryStatus:  models.DeliveryUnassigned,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, false
}

// notifyStatus envoie l'email de statut au client. Lancé en goroutine, les
// échecs sont seulement loggés.
func notifyStatus(order models.Order, customer primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var user models.User
	if err := database.Users().FindOne(ctx, bson.M{"_id": customer}).Decode(&user); err != nil || user.Email == "" {
		return
	}
	if err := utils.SendOrderStatusEmail(order, user.Email, order.Status); err != nil {
		log.Printf("⚠️ Email de statut non envoyé pour %s: %v", order.ID.Hex(), err)
	}
}
