// Package product porte le CRUD produit côté vendeur : création, prix avec
// historique append-only, recherche Elasticsearch. Le stock passe par les
// handlers d'inventaire, jamais par un update direct du document.
package product

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/services"
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

// sellerProduct charge un produit appartenant au vendeur courant (l'admin
// passe sans restriction). Introuvable et non-possédé : même réponse 404.
func sellerProduct(c *gin.Context, productID primitive.ObjectID) (models.Product, bool) {
	filter := bson.M{"_id": productID}
	if c.GetString("role") != "admin" {
		sellerID, ok := currentUser(c)
		if !ok {
			return models.Product{}, false
		}
		filter["seller"] = sellerID
	}

	var p models.Product
	if err := database.Products().FindOne(c.Request.Context(), filter).Decode(&p); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return models.Product{}, false
	}
	return p, true
}

func slugify(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), "-"))
}

// 🟢 POST /api/products (vendeur)
func CreateProduct(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Title              string  `json:"title" binding:"required"`
		SKU                string  `json:"sku"`
		Description        string  `json:"description"`
		Price              float64 `json:"price" binding:"required,gt=0"`
		DiscountPercentage float64 `json:"discount_percentage"`
		Quantity           int     `json:"quantity"`
		LowStockThreshold  int     `json:"low_stock_threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if req.Quantity < 0 || req.DiscountPercentage < 0 || req.DiscountPercentage > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité ou remise invalide"})
		return
	}
	if req.LowStockThreshold == 0 {
		req.LowStockThreshold = 5
	}

	now := time.Now()
	product := models.Product{
		Title:              req.Title,
		Slug:               slugify(req.Title),
		SKU:                strings.ToUpper(req.SKU),
		Description:        req.Description,
		Price:              req.Price,
		DiscountPercentage: req.DiscountPercentage,
		PriceAfterDiscount: models.ComputePriceAfterDiscount(req.Price, req.DiscountPercentage),
		Quantity:           req.Quantity,
		LowStockThreshold:  req.LowStockThreshold,
		IsLowStock:         stock.LowStock(req.Quantity, 0, req.LowStockThreshold),
		Seller:             sellerID,
		IsActive:           true,
		PriceHistory: []models.PriceHistoryEntry{{
			Price:              req.Price,
			DiscountPercentage: req.DiscountPercentage,
			PriceAfterDiscount: models.ComputePriceAfterDiscount(req.Price, req.DiscountPercentage),
			ChangedBy:          sellerID.Hex(),
			Reason:             "Création du produit",
			ChangedAt:          now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Quantity > 0 {
		product.StockHistory = []models.StockHistoryEntry{{
			Type:      models.StockPurchase,
			Quantity:  req.Quantity,
			Notes:     "Stock initial",
			ChangedBy: sellerID.Hex(),
			ChangedAt: now,
		}}
	}

	res, err := database.Products().InsertOne(c.Request.Context(), product)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création produit"})
		return
	}
	product.ID = res.InsertedID.(primitive.ObjectID)

	go services.IndexProduct(product)

	c.JSON(http.StatusCreated, product)
}

// 🟢 GET /api/products/:id
func GetProduct(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	var p models.Product
	err = database.Products().FindOne(c.Request.Context(),
		bson.M{"_id": productID, "is_active": true}).Decode(&p)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}

	// Les historiques ne sortent pas sur la fiche publique.
	p.StockHistory = nil
	p.PriceHistory = nil
	c.JSON(http.StatusOK, p)
}

// 🟢 GET /api/products — liste paginée, filtrable par vendeur
func GetProducts(c *gin.Context) {
	ctx := c.Request.Context()
	filter := bson.M{"is_active": true}
	if seller := c.Query("seller"); seller != "" {
		sellerID, err := primitive.ObjectIDFromHex(seller)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID vendeur invalide"})
			return
		}
		filter["seller"] = sellerID
	}

	page, limit := pagination(c)
	opts := mongooptions.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"stock_history": 0, "price_history": 0})

	cursor, err := database.Products().Find(ctx, filter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture produits"})
		return
	}
	defer cursor.Close(ctx)

	list := []models.Product{}
	if err := cursor.All(ctx, &list); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur décodage produits"})
		return
	}

	total, _ := database.Products().CountDocuments(ctx, filter)
	c.JSON(http.StatusOK, gin.H{
		"products": list,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

// 🟢 GET /api/products/search?q=
func SearchProducts(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paramètre q requis"})
		return
	}

	results, err := services.SearchProducts(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Recherche indisponible"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// 🟢 PUT /api/products/:id/price (vendeur) — change le prix, dérive
// price_after_discount, historise, réindexe.
func UpdatePrice(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	var req struct {
		Price              *float64 `json:"price"`
		DiscountPercentage *float64 `json:"discount_percentage"`
		Reason             string   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.Price == nil && req.DiscountPercentage == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prix ou remise requis"})
		return
	}

	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}

	price := p.Price
	if req.Price != nil {
		if *req.Price <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Le prix doit être positif"})
			return
		}
		price = *req.Price
	}
	discount := p.DiscountPercentage
	if req.DiscountPercentage != nil {
		if *req.DiscountPercentage < 0 || *req.DiscountPercentage > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Remise invalide"})
			return
		}
		discount = *req.DiscountPercentage
	}

	entry := models.PriceHistoryEntry{
		Price:              price,
		DiscountPercentage: discount,
		PriceAfterDiscount: models.ComputePriceAfterDiscount(price, discount),
		ChangedBy:          c.GetString("user_id"),
		Reason:             req.Reason,
		ChangedAt:          time.Now(),
	}

	ctx := c.Request.Context()
	var updated models.Product
	err = database.Products().FindOneAndUpdate(ctx,
		bson.M{"_id": productID},
		bson.M{
			"$set": bson.M{
				"price":                price,
				"discount_percentage":  discount,
				"price_after_discount": entry.PriceAfterDiscount,
				"updated_at":           time.Now(),
			},
			"$push": bson.M{"price_history": entry},
		},
		mongooptions.FindOneAndUpdate().SetReturnDocument(mongooptions.After),
	).Decode(&updated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour prix"})
		return
	}

	go services.IndexProduct(updated)

	c.JSON(http.StatusOK, gin.H{
		"id":                   updated.ID,
		"price":                updated.Price,
		"discount_percentage":  updated.DiscountPercentage,
		"price_after_discount": updated.PriceAfterDiscount,
	})
}

// 🟢 DELETE /api/products/:id (vendeur) — désactivation, jamais de
// suppression tant que des commandes référencent le produit.
func DeactivateProduct(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	if _, ok := sellerProduct(c, productID); !ok {
		return
	}

	_, err = database.Products().UpdateByID(c.Request.Context(), productID,
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now()}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur désactivation produit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit désactivé"})
}

func pagination(c *gin.Context) (page, limit int) {
	page, limit = 1, 20
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}
