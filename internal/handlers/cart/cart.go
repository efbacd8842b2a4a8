// Package cart maintient l'unique panier actif de chaque utilisateur : ajout
// avec validation du stock disponible, fusion des lignes identiques, prix
// capturé à l'ajout, coupon et totaux arrondis au multiple de 5 supérieur.
package cart

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/pricing"
	"souq_back_end/internal/variations"
)

// 🟢 GET /api/cart
func GetCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	cart, err := loadCart(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusOK, models.Cart{User: userID, CartItems: []models.CartItem{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture panier"})
		return
	}

	c.JSON(http.StatusOK, cart)
}

// 🟢 POST /api/cart/add
func AddItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		ProductID        string            `json:"product_id" binding:"required"`
		Quantity         int               `json:"quantity"`
		VariationID      string            `json:"variation_id"`
		VariationOptions map[string]string `json:"variation_options"`
		Color            string            `json:"color"`
		Size             string            `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité invalide"})
		return
	}

	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	ctx := c.Request.Context()
	product, err := loadActiveProduct(ctx, productID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}

	variation, ok := resolveVariation(c, product, req.VariationID, req.VariationOptions, req.Color, req.Size)
	if !ok {
		return
	}

	cart, err := loadCart(ctx, userID)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture panier"})
		return
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		cart = models.Cart{User: userID, CreatedAt: time.Now()}
	}

	// Fusion : même produit + même variation = on incrémente la ligne.
	lineIdx := -1
	for i, item := range cart.CartItems {
		if item.Product == productID && sameVariation(item.VariationID, variation) {
			lineIdx = i
			break
		}
	}

	inCart := 0
	if lineIdx >= 0 {
		inCart = cart.CartItems[lineIdx].Quantity
	}
	if !checkAvailable(c, product, variation, inCart+req.Quantity) {
		return
	}

	if lineIdx >= 0 {
		cart.CartItems[lineIdx].Quantity += req.Quantity
	} else {
		line := models.CartItem{
			ID:       primitive.NewObjectID(),
			Product:  productID,
			Quantity: req.Quantity,
			Price:    product.EffectivePrice(),
		}
		if variation != nil {
			vid := variation.ID
			line.VariationID = &vid
			line.VariationOptions = variation.Options
			line.Price = variation.EffectivePrice()
		}
		cart.CartItems = append(cart.CartItems, line)
	}

	if !saveCart(c, &cart) {
		return
	}

	PublishCartEvent(ctx, userID.Hex(), "item_added")
	c.JSON(http.StatusOK, cart)
}

// 🟢 PUT /api/cart/items/:itemId
func UpdateQuantity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité invalide"})
		return
	}

	itemID, err := primitive.ObjectIDFromHex(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID article invalide"})
		return
	}

	ctx := c.Request.Context()
	cart, err := loadCart(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Panier introuvable"})
		return
	}

	lineIdx := findLine(cart, itemID)
	if lineIdx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article introuvable dans le panier"})
		return
	}
	line := cart.CartItems[lineIdx]

	// On revalide le stock à la nouvelle quantité, pas seulement à l'ajout.
	product, err := loadActiveProduct(ctx, line.Product)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}
	var variation *models.Variation
	if line.VariationID != nil {
		v, found := variations.FindByID(product, line.VariationID.Hex())
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable"})
			return
		}
		variation = &v
	}
	if !checkAvailable(c, product, variation, req.Quantity) {
		return
	}

	cart.CartItems[lineIdx].Quantity = req.Quantity
	if !saveCart(c, &cart) {
		return
	}

	PublishCartEvent(ctx, userID.Hex(), "quantity_updated")
	c.JSON(http.StatusOK, cart)
}

// 🟢 PUT /api/cart/items/:itemId/variation
func ChangeVariation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		VariationID      string            `json:"variation_id"`
		VariationOptions map[string]string `json:"variation_options"`
		Color            string            `json:"color"`
		Size             string            `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	itemID, err := primitive.ObjectIDFromHex(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID article invalide"})
		return
	}

	ctx := c.Request.Context()
	cart, err := loadCart(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Panier introuvable"})
		return
	}

	lineIdx := findLine(cart, itemID)
	if lineIdx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article introuvable dans le panier"})
		return
	}
	line := cart.CartItems[lineIdx]

	product, err := loadActiveProduct(ctx, line.Product)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}

	variation, ok := resolveVariation(c, product, req.VariationID, req.VariationOptions, req.Color, req.Size)
	if !ok {
		return
	}
	if variation == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Variation requise"})
		return
	}

	// Refus si la combinaison visée existe déjà sur une autre ligne : il faut
	// fusionner via update de quantité, pas créer un doublon.
	for i, other := range cart.CartItems {
		if i != lineIdx && other.Product == line.Product && sameVariation(other.VariationID, variation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cette variation est déjà dans votre panier"})
			return
		}
	}

	if !checkAvailable(c, product, variation, line.Quantity) {
		return
	}

	vid := variation.ID
	cart.CartItems[lineIdx].VariationID = &vid
	cart.CartItems[lineIdx].VariationOptions = variation.Options
	cart.CartItems[lineIdx].Price = variation.EffectivePrice()

	if !saveCart(c, &cart) {
		return
	}

	PublishCartEvent(ctx, userID.Hex(), "variation_changed")
	c.JSON(http.StatusOK, cart)
}

// 🟢 DELETE /api/cart/items/:itemId
func RemoveItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	itemID, err := primitive.ObjectIDFromHex(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID article invalide"})
		return
	}

	ctx := c.Request.Context()
	cart, err := loadCart(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Panier introuvable"})
		return
	}

	lineIdx := findLine(cart, itemID)
	if lineIdx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article introuvable dans le panier"})
		return
	}
	cart.CartItems = append(cart.CartItems[:lineIdx], cart.CartItems[lineIdx+1:]...)

	if !saveCart(c, &cart) {
		return
	}

	PublishCartEvent(ctx, userID.Hex(), "item_removed")
	c.JSON(http.StatusOK, cart)
}

// 🟢 DELETE /api/cart
func ClearCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := database.Carts().DeleteOne(ctx, bson.M{"user": userID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur suppression panier"})
		return
	}

	PublishCartEvent(ctx, userID.Hex(), "cart_cleared")
	c.JSON(http.StatusOK, gin.H{"message": "Panier vidé"})
}

// 🟢 POST /api/cart/coupon
func ApplyCoupon(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code requis"})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if len(code) != 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le code promo doit faire 8 caractères"})
		return
	}

	ctx := c.Request.Context()
	var coupon models.Coupon
	err := database.Coupons().FindOne(ctx, bson.M{
		"code":   code,
		"expire": bson.M{"$gt": time.Now()},
	}).Decode(&coupon)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code promo invalide ou expiré"})
		return
	}

	cart, err := loadCart(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Panier introuvable"})
		return
	}

	// Un seul coupon à la fois : ré-appliquer remplace le précédent.
	cart.CouponCode = coupon.Code
	if !saveCart(c, &cart) {
		return
	}

	log.Printf("🎟️ Coupon %s appliqué (%.0f%%) pour %s", coupon.Code, coupon.Discount, userID.Hex())
	PublishCartEvent(ctx, userID.Hex(), "coupon_applied")
	c.JSON(http.StatusOK, cart)
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

func loadCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	var cart models.Cart
	err := database.Carts().FindOne(ctx, bson.M{"user": userID}).Decode(&cart)
	return cart, err
}

func loadActiveProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var p models.Product
	err := database.Products().FindOne(ctx, bson.M{"_id": id, "is_active": true}).Decode(&p)
	return p, err
}

func findLine(cart models.Cart, itemID primitive.ObjectID) int {
	for i, item := range cart.CartItems {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func sameVariation(lineVariation *primitive.ObjectID, v *models.Variation) bool {
	if lineVariation == nil {
		return v == nil
	}
	return v != nil && *lineVariation == v.ID
}

// resolveVariation applique les trois formes d'entrée : id direct, map
// d'options dynamique, ou le couple color/size historique replié en deux axes.
// Retourne (nil, true) quand le produit n'a pas de variations.
func resolveVariation(c *gin.Context, product models.Product, variationID string,
	options map[string]string, color, size string) (*models.Variation, bool) {

	if variationID != "" {
		v, found := variations.FindByID(product, variationID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable"})
			return nil, false
		}
		if !v.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cette variation n'est plus disponible"})
			return nil, false
		}
		return &v, true
	}

	if len(options) == 0 && (color != "" || size != "") {
		options = variations.FoldLegacy(color, size)
	}
	if len(options) > 0 {
		v, found := variations.Find(product, options)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable pour ces options"})
			return nil, false
		}
		if !v.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cette variation n'est plus disponible"})
			return nil, false
		}
		return &v, true
	}

	if product.HasVariations {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ce produit nécessite de choisir une variation"})
		return nil, false
	}
	return nil, true
}

// checkAvailable refuse si le stock disponible ne couvre pas la quantité
// totale demandée, en nommant l'article et les quantités.
func checkAvailable(c *gin.Context, product models.Product, v *models.Variation, wanted int) bool {
	available := product.AvailableStock()
	label := product.Title
	if v != nil {
		available = v.AvailableStock()
		label = product.Title + " (" + variations.DisplayOptions(v.Options) + ")"
	}
	if available < wanted {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Stock insuffisant pour " + label,
			"available": available,
			"requested": wanted,
		})
		return false
	}
	return true
}

// saveCart recalcule les totaux (dont le coupon éventuel) puis upsert le
// panier. L'index unique sur user garantit l'unicité même sous concurrence.
func saveCart(c *gin.Context, cart *models.Cart) bool {
	ctx := c.Request.Context()

	cart.TotalPrice = pricing.CartTotal(cart.CartItems)
	cart.TotalPriceAfterDiscount = nil
	if cart.CouponCode != "" {
		var coupon models.Coupon
		err := database.Coupons().FindOne(ctx, bson.M{
			"code":   cart.CouponCode,
			"expire": bson.M{"$gt": time.Now()},
		}).Decode(&coupon)
		if err == nil {
			discounted := pricing.DiscountedTotal(cart.TotalPrice, coupon.Discount)
			cart.TotalPriceAfterDiscount = &discounted
		} else {
			// Coupon expiré entre-temps : on le retire silencieusement.
			cart.CouponCode = ""
		}
	}
	cart.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"cart_items":                 cart.CartItems,
			"total_price":                cart.TotalPrice,
			"total_price_after_discount": cart.TotalPriceAfterDiscount,
			"coupon_code":                cart.CouponCode,
			"updated_at":                 cart.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": time.Now()},
	}
	_, err := database.Carts().UpdateOne(ctx, bson.M{"user": cart.User}, update,
		mongooptions.Update().SetUpsert(true))
	if err != nil {
		log.Printf("❌ Sauvegarde panier échouée pour %s: %v", cart.User.Hex(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur sauvegarde panier"})
		return false
	}
	return true
}
