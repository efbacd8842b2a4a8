package product

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/stock"
	"souq_back_end/internal/variations"
)

// stockTarget lit l'ID produit du path et l'éventuel variation_id du corps
// (ou de la query pour les GET).
func stockTarget(c *gin.Context, variationHex string) (stock.Target, bool) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return stock.Target{}, false
	}
	target := stock.Target{ProductID: productID}
	if variationHex != "" {
		variationID, err := primitive.ObjectIDFromHex(variationHex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID variation invalide"})
			return stock.Target{}, false
		}
		target.VariationID = &variationID
	}
	return target, true
}

// respondStockError traduit les erreurs du registre de stock en réponses HTTP.
func respondStockError(c *gin.Context, err error) {
	var insufficient stock.InsufficientStockError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     insufficient.Error(),
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
		return
	}
	var reserved stock.InsufficientReservedError
	if errors.As(err, &reserved) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     reserved.Error(),
			"reserved":  reserved.Reserved,
			"requested": reserved.Requested,
		})
		return
	}
	switch {
	case errors.Is(err, stock.ErrProductNotFound), errors.Is(err, stock.ErrVariationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit ou variation introuvable"})
	case errors.Is(err, stock.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflit d'écriture concurrent, réessayez"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour stock"})
	}
}

func stockSnapshot(p *models.Product, target stock.Target) gin.H {
	if target.VariationID != nil {
		if v, found := variations.FindByID(*p, target.VariationID.Hex()); found {
			return gin.H{
				"variation_id":    v.ID,
				"quantity":        v.Quantity,
				"reserved_stock":  v.ReservedStock,
				"available_stock": v.AvailableStock(),
				"is_low_stock":    v.IsLowStock,
			}
		}
	}
	return gin.H{
		"product_id":      p.ID,
		"quantity":        p.Quantity,
		"reserved_stock":  p.ReservedStock,
		"available_stock": p.AvailableStock(),
		"is_low_stock":    p.IsLowStock,
	}
}

// 🟢 POST /api/products/:id/stock/adjust (vendeur) — ajout ou retrait
// relatif. Le retrait refuse de passer sous le stock réservé.
func AdjustStock(c *gin.Context) {
	var req struct {
		Type        string `json:"type" binding:"required,oneof=add subtract"`
		Quantity    int    `json:"quantity" binding:"required,min=1"`
		Reason      string `json:"reason"`
		VariationID string `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type (add/subtract) et quantité positive requis"})
		return
	}

	target, ok := stockTarget(c, req.VariationID)
	if !ok {
		return
	}
	if _, ok := sellerProduct(c, target.ProductID); !ok {
		return
	}

	actor := c.GetString("user_id")
	var (
		updated *models.Product
		err     error
	)
	if req.Type == "add" {
		if req.Reason == "" {
			req.Reason = "Réapprovisionnement"
		}
		updated, err = ledger().AddStock(c.Request.Context(), target, req.Quantity, req.Reason, actor)
	} else {
		if req.Reason == "" {
			req.Reason = "Retrait manuel"
		}
		updated, err = ledger().SubtractStock(c.Request.Context(), target, req.Quantity, req.Reason, actor)
	}
	if err != nil {
		respondStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockSnapshot(updated, target))
}

// 🟢 PUT /api/products/:id/stock (vendeur) — correction absolue : fixe la
// quantité, le delta signé part dans l'historique.
func SetStock(c *gin.Context) {
	var req struct {
		Quantity    *int   `json:"quantity" binding:"required"`
		Reason      string `json:"reason"`
		VariationID string `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || *req.Quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité requise (≥ 0)"})
		return
	}

	target, ok := stockTarget(c, req.VariationID)
	if !ok {
		return
	}
	if _, ok := sellerProduct(c, target.ProductID); !ok {
		return
	}
	if req.Reason == "" {
		req.Reason = "Correction d'inventaire"
	}

	updated, err := ledger().AdjustAbsolute(c.Request.Context(), target, *req.Quantity,
		req.Reason, c.GetString("user_id"))
	if err != nil {
		respondStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockSnapshot(updated, target))
}

// 🟢 PUT /api/products/:id/stock/threshold (vendeur)
func SetThreshold(c *gin.Context) {
	var req struct {
		Threshold   *int   `json:"threshold" binding:"required"`
		VariationID string `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || *req.Threshold < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Seuil requis (≥ 0)"})
		return
	}

	target, ok := stockTarget(c, req.VariationID)
	if !ok {
		return
	}
	p, ok := sellerProduct(c, target.ProductID)
	if !ok {
		return
	}

	set := bson.M{"updated_at": time.Now()}
	var opts *mongooptions.UpdateOptions
	if target.VariationID != nil {
		v, found := variations.FindByID(p, target.VariationID.Hex())
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable"})
			return
		}
		set["variations.$[v].low_stock_threshold"] = *req.Threshold
		set["variations.$[v].is_low_stock"] = stock.LowStock(v.Quantity, v.ReservedStock, *req.Threshold)
		opts = mongooptions.Update().
			SetArrayFilters(mongooptions.ArrayFilters{Filters: []interface{}{bson.M{"v._id": *target.VariationID}}})
	} else {
		set["low_stock_threshold"] = *req.Threshold
		set["is_low_stock"] = stock.LowStock(p.Quantity, p.ReservedStock, *req.Threshold)
	}

	var err error
	if opts != nil {
		_, err = database.Products().UpdateByID(c.Request.Context(), p.ID, bson.M{"$set": set}, opts)
	} else {
		_, err = database.Products().UpdateByID(c.Request.Context(), p.ID, bson.M{"$set": set})
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour seuil"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Seuil mis à jour", "threshold": *req.Threshold})
}

// 🟢 POST /api/products/:id/stock/reserve (vendeur) — réservation directe,
// utilisée par les intégrations hors panier.
func ReserveStock(c *gin.Context) {
	var req struct {
		Quantity    int    `json:"quantity" binding:"required,min=1"`
		VariationID string `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité positive requise"})
		return
	}

	target, ok := stockTarget(c, req.VariationID)
	if !ok {
		return
	}
	if _, ok := sellerProduct(c, target.ProductID); !ok {
		return
	}

	updated, err := ledger().Reserve(c.Request.Context(), target, req.Quantity, c.GetString("user_id"))
	if err != nil {
		respondStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockSnapshot(updated, target))
}

// 🟢 POST /api/products/:id/stock/release (vendeur) — relâche une
// réservation, clampée : jamais d'échec pour sur-relâche.
func ReleaseStock(c *gin.Context) {
	var req struct {
		Quantity    int    `json:"quantity" binding:"required,min=1"`
		VariationID string `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité positive requise"})
		return
	}

	target, ok := stockTarget(c, req.VariationID)
	if !ok {
		return
	}
	if _, ok := sellerProduct(c, target.ProductID); !ok {
		return
	}

	updated, err := ledger().Release(c.Request.Context(), target, req.Quantity, c.GetString("user_id"))
	if err != nil {
		respondStockError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockSnapshot(updated, target))
}

// 🟢 GET /api/products/:id/stock/history (vendeur) — historique
// anté-chronologique paginé, lu depuis le document produit.
func StockHistory(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}

	entries := make([]models.StockHistoryEntry, len(p.StockHistory))
	copy(entries, p.StockHistory)
	// Append-only en base : inverser donne le plus récent d'abord.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	page, limit := pagination(c)
	start := (page - 1) * limit
	if start > len(entries) {
		start = len(entries)
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries[start:end],
		"total":   len(entries),
		"page":    page,
		"limit":   limit,
	})
}

// 🟢 GET /api/products/:id/price-history (vendeur)
func PriceHistory(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}

	entries := make([]models.PriceHistoryEntry, len(p.PriceHistory))
	copy(entries, p.PriceHistory)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	page, limit := pagination(c)
	start := (page - 1) * limit
	if start > len(entries) {
		start = len(entries)
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries[start:end],
		"total":   len(entries),
		"page":    page,
		"limit":   limit,
	})
}

// 🟢 GET /api/seller/inventory/dashboard (vendeur) — vue d'ensemble :
// totaux, valeur du stock, produits et variations sous leur seuil.
func InventoryDashboard(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	filter := bson.M{"seller": sellerID, "is_active": true}
	if c.GetString("role") == "admin" && c.Query("all") == "true" {
		filter = bson.M{"is_active": true}
	}

	opts := mongooptions.Find().SetProjection(bson.M{"stock_history": 0, "price_history": 0})
	cursor, err := database.Products().Find(c.Request.Context(), filter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur chargement inventaire"})
		return
	}
	var products []models.Product
	if err := cursor.All(c.Request.Context(), &products); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture inventaire"})
		return
	}

	var (
		totalQuantity, totalReserved, totalVariations int
		stockValue, reservedValue                     float64
		lowProducts                                   []gin.H
		lowVariations                                 []gin.H
	)
	for _, p := range products {
		if p.HasVariations {
			for _, v := range p.Variations {
				if !v.IsActive {
					continue
				}
				totalVariations++
				totalQuantity += v.Quantity
				totalReserved += v.ReservedStock
				stockValue += float64(v.AvailableStock()) * v.EffectivePrice()
				reservedValue += float64(v.ReservedStock) * v.EffectivePrice()
				if v.IsLowStock {
					lowVariations = append(lowVariations, gin.H{
						"product_id":      p.ID,
						"product_title":   p.Title,
						"variation_id":    v.ID,
						"options":         v.Options,
						"sku":             v.SKU,
						"available_stock": v.AvailableStock(),
						"threshold":       v.LowStockThreshold,
					})
				}
			}
			continue
		}
		totalQuantity += p.Quantity
		totalReserved += p.ReservedStock
		stockValue += float64(p.AvailableStock()) * p.EffectivePrice()
		reservedValue += float64(p.ReservedStock) * p.EffectivePrice()
		if p.IsLowStock {
			lowProducts = append(lowProducts, gin.H{
				"product_id":      p.ID,
				"title":           p.Title,
				"sku":             p.SKU,
				"available_stock": p.AvailableStock(),
				"threshold":       p.LowStockThreshold,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_products":     len(products),
		"total_variations":   totalVariations,
		"total_quantity":     totalQuantity,
		"total_reserved":     totalReserved,
		"total_available":    totalQuantity - totalReserved,
		"stock_value":        stockValue,
		"reserved_value":     reservedValue,
		"low_stock_products": lowProducts,
		"low_stock_variants": lowVariations,
	})
}

// 🟢 GET /api/admin/stock/movements — flux d'audit ScyllaDB, filtrable par
// product_id. 503 si le cluster d'audit n'est pas joignable.
func StockMovements(c *gin.Context) {
	if database.Scylla == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Flux d'audit indisponible"})
		return
	}

	_, limit := pagination(c)
	movements, err := stock.NewScyllaFeed(database.Scylla).Movements(
		c.Request.Context(), c.Query("product_id"), limit)
	if err != nil {
		log.Printf("❌ Erreur lecture mouvements stock: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture mouvements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "count": len(movements)})
}

// 🟢 GET /api/admin/stock/alerts — alertes de stock non résolues.
func StockAlerts(c *gin.Context) {
	if database.Scylla == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Flux d'audit indisponible"})
		return
	}

	alerts, err := stock.NewScyllaFeed(database.Scylla).OpenAlerts(c.Request.Context())
	if err != nil {
		log.Printf("❌ Erreur lecture alertes stock: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture alertes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// 🟢 PUT /api/admin/stock/alerts/:alertId/resolve
func ResolveStockAlert(c *gin.Context) {
	if database.Scylla == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Flux d'audit indisponible"})
		return
	}

	alertID, err := gocql.ParseUUID(c.Param("alertId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID alerte invalide"})
		return
	}
	if err := stock.NewScyllaFeed(database.Scylla).ResolveAlert(c.Request.Context(), alertID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur résolution alerte"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alerte résolue"})
}
