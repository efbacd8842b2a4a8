package order

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/orders"
)

// sellerView : la commande vue par un vendeur — seulement ses items, avec un
// sous-total et des taxes au prorata de sa part du panier.
type sellerView struct {
	OrderID        primitive.ObjectID `json:"order_id"`
	Status         string             `json:"status"`
	DeliveryStatus string             `json:"delivery_status"`
	IsPaid         bool               `json:"is_paid"`
	PaymentMethod  string             `json:"payment_method"`
	Items          []models.OrderItem `json:"items"`
	Subtotal       float64            `json:"subtotal"`
	ProratedTaxes  float64            `json:"prorated_taxes"`
	CreatedAt      time.Time          `json:"created_at"`
}

func buildSellerView(order models.Order, sellerID primitive.ObjectID) (sellerView, bool) {
	view := sellerView{
		OrderID:        order.ID,
		Status:         order.Status,
		DeliveryStatus: order.DeliveryStatus,
		IsPaid:         order.IsPaid,
		PaymentMethod:  order.PaymentMethod,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		if item.Seller == sellerID {
			view.Items = append(view.Items, item)
			view.Subtotal += item.Price * float64(item.Quantity)
		}
	}
	if len(view.Items) == 0 {
		return view, false
	}
	if order.CartPrice > 0 {
		view.ProratedTaxes = order.Taxes * (view.Subtotal / order.CartPrice)
	}
	return view, true
}

// 🟢 GET /api/seller/orders — commandes contenant au moins un item du vendeur
func GetSellerOrders(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	opts := mongooptions.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := database.Orders().Find(ctx, bson.M{"items.seller": sellerID}, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commandes"})
		return
	}
	defer cursor.Close(ctx)

	var all []models.Order
	if err := cursor.All(ctx, &all); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur décodage commandes"})
		return
	}

	views := []sellerView{}
	statusCounts := map[string]int{}
	for _, order := range all {
		if view, keep := buildSellerView(order, sellerID); keep {
			views = append(views, view)
			statusCounts[order.Status]++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":        views,
		"count":         len(views),
		"status_counts": statusCounts,
	})
}

// 🟢 GET /api/seller/orders/:id
func GetSellerOrderDetails(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	var order models.Order
	err = database.Orders().FindOne(c.Request.Context(),
		bson.M{"_id": orderID, "items.seller": sellerID}).Decode(&order)
	if err != nil {
		// Introuvable et non-possédée : même réponse.
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	view, _ := buildSellerView(order, sellerID)
	c.JSON(http.StatusOK, view)
}

// 🟢 PUT /api/seller/orders/:id/status — même moteur de transition que
// l'admin, restreint aux items du vendeur. Les items des autres vendeurs ne
// sont jamais touchés.
func UpdateSellerOrder(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Statut requis"})
		return
	}

	ctx := c.Request.Context()
	var order models.Order
	err = database.Orders().FindOne(ctx, bson.M{"_id": orderID, "items.seller": sellerID}).Decode(&order)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	plan, err := orders.PlanTransition(order, orders.SellerItems(sellerID), req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items := orders.Apply(ctx, ledger(), order, plan, sellerID.Hex())

	// Le statut du document commande est en dernier-écrivain-gagnant : les
	// effets stock, eux, ne concernent que les items du vendeur.
	set := bson.M{
		"status":     plan.NewStatus,
		"items":      items,
		"updated_at": time.Now(),
	}
	if plan.SetDeliveredAt {
		set["delivered_at"] = time.Now()
	}
	if _, err := database.Orders().UpdateByID(ctx, orderID, bson.M{"$set": set}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour commande"})
		return
	}

	order.Status = plan.NewStatus
	order.Items = items
	go notifyStatus(order, order.Customer)

	view, _ := buildSellerView(order, sellerID)
	c.JSON(http.StatusOK, view)
}
