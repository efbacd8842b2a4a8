package product

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/stock"
	"souq_back_end/internal/variations"
)

// 🟢 POST /api/products/:id/variations (vendeur) — ajout d'une variation
// unique. La combinaison d'options complète ne doit pas déjà exister.
func AddVariation(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	var req struct {
		Options            map[string]string `json:"options"`
		Color              string            `json:"color"`
		Size               string            `json:"size"`
		SKU                string            `json:"sku"`
		Price              float64           `json:"price"`
		DiscountPercentage float64           `json:"discount_percentage"`
		Quantity           int               `json:"quantity"`
		LowStockThreshold  int               `json:"low_stock_threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if len(req.Options) == 0 {
		req.Options = variations.FoldLegacy(req.Color, req.Size)
	}
	if len(req.Options) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Au moins une option est requise"})
		return
	}

	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}

	if err := variations.EnsureUnique(p, req.Options); err != nil {
		var dup variations.ErrDuplicate
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	variation := newVariation(p, req.Options, req.SKU, req.Price, req.DiscountPercentage,
		req.Quantity, req.LowStockThreshold)

	if !persistVariations(c, p, []models.Variation{variation}) {
		return
	}
	c.JSON(http.StatusCreated, variation)
}

type generateRequest struct {
	Axes              []string            `json:"axes" binding:"required"`
	Values            map[string][]string `json:"values" binding:"required"`
	DefaultPrice      float64             `json:"default_price"`
	DefaultQuantity   int                 `json:"default_quantity"`
	LowStockThreshold int                 `json:"low_stock_threshold"`
	// Surcharge de prix par valeur d'option (ex: "512GB": 1299).
	PriceOverrides map[string]float64 `json:"price_overrides"`
}

// 🟢 POST /api/products/:id/variations/generate (vendeur) — produit
// cartésien des axes fournis, en sautant les combinaisons existantes.
func GenerateVariations(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	generateFromRequest(c, req)
}

// 🟢 POST /api/products/:id/variations/bulk (vendeur) — forme historique
// couleurs × tailles, repliée sur le même générateur deux-axes.
func BulkVariations(c *gin.Context) {
	var req struct {
		Colors            []string `json:"colors" binding:"required"`
		Sizes             []string `json:"sizes" binding:"required"`
		DefaultPrice      float64  `json:"default_price"`
		DefaultQuantity   int      `json:"default_quantity"`
		LowStockThreshold int      `json:"low_stock_threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Couleurs et tailles requises"})
		return
	}

	generateFromRequest(c, generateRequest{
		Axes:              []string{"Color", "Size"},
		Values:            map[string][]string{"Color": req.Colors, "Size": req.Sizes},
		DefaultPrice:      req.DefaultPrice,
		DefaultQuantity:   req.DefaultQuantity,
		LowStockThreshold: req.LowStockThreshold,
	})
}

func generateFromRequest(c *gin.Context, req generateRequest) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	for _, axis := range req.Axes {
		if len(req.Values[axis]) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune valeur pour l'axe " + axis})
			return
		}
	}

	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}

	created := []models.Variation{}
	skipped := 0
	for _, combo := range variations.GenerateCombinations(req.Axes, req.Values) {
		if variations.EnsureUnique(p, combo) != nil {
			skipped++
			continue
		}
		price := req.DefaultPrice
		for _, value := range combo {
			if override, ok := req.PriceOverrides[value]; ok {
				price = override
				break
			}
		}
		v := newVariation(p, combo, "", price, 0, req.DefaultQuantity, req.LowStockThreshold)
		created = append(created, v)
		p.Variations = append(p.Variations, v) // les combinaisons suivantes la voient
	}

	if len(created) > 0 && !persistVariations(c, p, created) {
		return
	}

	log.Printf("📦 %d variations générées (%d existantes sautées) pour %s", len(created), skipped, p.Title)
	c.JSON(http.StatusCreated, gin.H{
		"created": created,
		"count":   len(created),
		"skipped": skipped,
	})
}

// 🟢 GET /api/products/:id/variations/options — filtrage progressif : pour
// chaque axe restant, les valeurs encore disponibles (actives, en stock)
// compte tenu de la sélection en query string.
func AvailableOptions(c *gin.Context) {
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

	selected := map[string]string{}
	for key, vals := range c.Request.URL.Query() {
		if len(vals) > 0 && vals[0] != "" {
			selected[key] = vals[0]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"selected":  selected,
		"available": variations.AvailableOptions(p, selected),
	})
}

// 🟢 GET /api/products/:id/variations/stock — disponibilité d'une
// combinaison précise.
func CheckVariationStock(c *gin.Context) {
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

	selected := map[string]string{}
	for key, vals := range c.Request.URL.Query() {
		if len(vals) > 0 && vals[0] != "" {
			selected[key] = vals[0]
		}
	}

	v, found := variations.Find(p, selected)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable pour ces options"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"variation_id":    v.ID,
		"sku":             v.SKU,
		"options":         v.Options,
		"available_stock": v.AvailableStock(),
		"is_low_stock":    v.IsLowStock,
		"is_active":       v.IsActive,
		"price":           v.EffectivePrice(),
	})
}

// 🟢 PUT /api/products/:id/variations/:variationId (vendeur)
func UpdateVariation(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	variationID, err := primitive.ObjectIDFromHex(c.Param("variationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID variation invalide"})
		return
	}

	var req struct {
		Price              *float64 `json:"price"`
		DiscountPercentage *float64 `json:"discount_percentage"`
		LowStockThreshold  *int     `json:"low_stock_threshold"`
		IsActive           *bool    `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}
	current, found := variations.FindByID(p, variationID.Hex())
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable"})
		return
	}

	set := bson.M{"variations.$[v].updated_at": time.Now(), "updated_at": time.Now()}
	price := current.Price
	discount := current.DiscountPercentage
	if req.Price != nil {
		if *req.Price <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Le prix doit être positif"})
			return
		}
		price = *req.Price
		set["variations.$[v].price"] = price
	}
	if req.DiscountPercentage != nil {
		if *req.DiscountPercentage < 0 || *req.DiscountPercentage > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Remise invalide"})
			return
		}
		discount = *req.DiscountPercentage
		set["variations.$[v].discount_percentage"] = discount
	}
	if req.Price != nil || req.DiscountPercentage != nil {
		set["variations.$[v].price_after_discount"] = models.ComputePriceAfterDiscount(price, discount)
	}
	if req.LowStockThreshold != nil {
		set["variations.$[v].low_stock_threshold"] = *req.LowStockThreshold
		set["variations.$[v].is_low_stock"] = stock.LowStock(current.Quantity, current.ReservedStock, *req.LowStockThreshold)
	}
	if req.IsActive != nil {
		set["variations.$[v].is_active"] = *req.IsActive
	}

	opts := mongooptions.FindOneAndUpdate().
		SetReturnDocument(mongooptions.After).
		SetArrayFilters(mongooptions.ArrayFilters{Filters: []interface{}{bson.M{"v._id": variationID}}})

	var updated models.Product
	err = database.Products().FindOneAndUpdate(c.Request.Context(),
		bson.M{"_id": productID}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour variation"})
		return
	}

	v, _ := variations.FindByID(updated, variationID.Hex())
	c.JSON(http.StatusOK, v)
}

// 🟢 DELETE /api/products/:id/variations/:variationId (vendeur) —
// désactivation uniquement : une variation référencée par des commandes
// ouvertes ne se supprime pas.
func DeactivateVariation(c *gin.Context) {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	variationID, err := primitive.ObjectIDFromHex(c.Param("variationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID variation invalide"})
		return
	}

	p, ok := sellerProduct(c, productID)
	if !ok {
		return
	}
	if _, found := variations.FindByID(p, variationID.Hex()); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Variation introuvable"})
		return
	}

	opts := mongooptions.Update().
		SetArrayFilters(mongooptions.ArrayFilters{Filters: []interface{}{bson.M{"v._id": variationID}}})
	_, err = database.Products().UpdateByID(c.Request.Context(), productID, bson.M{
		"$set": bson.M{"variations.$[v].is_active": false, "variations.$[v].updated_at": time.Now()},
	}, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur désactivation variation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Variation désactivée"})
}

// --- helpers ---

func newVariation(p models.Product, options map[string]string, sku string,
	price, discount float64, quantity, threshold int) models.Variation {

	if price <= 0 {
		price = p.Price
	}
	if threshold == 0 {
		threshold = p.LowStockThreshold
	}
	if sku == "" {
		sku = variations.DeriveSKU(p.SKU, axesOf(p, options), options)
	}
	now := time.Now()
	return models.Variation{
		ID:                 primitive.NewObjectID(),
		SKU:                sku,
		Options:            options,
		Price:              price,
		DiscountPercentage: discount,
		PriceAfterDiscount: models.ComputePriceAfterDiscount(price, discount),
		Quantity:           quantity,
		LowStockThreshold:  threshold,
		IsLowStock:         stock.LowStock(quantity, 0, threshold),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// axesOf donne un ordre stable aux axes : ceux déjà déclarés sur le produit
// d'abord, puis les nouveaux par ordre alphabétique.
func axesOf(p models.Product, options map[string]string) []string {
	axes := append([]string{}, p.VariationAxes...)
	seen := map[string]bool{}
	for _, a := range axes {
		seen[a] = true
	}
	extra := []string{}
	for k := range options {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(axes, extra...)
}

// persistVariations pousse les nouvelles variations et synchronise
// has_variations et la liste d'axes du produit.
func persistVariations(c *gin.Context, p models.Product, newOnes []models.Variation) bool {
	axes := append([]string{}, p.VariationAxes...)
	seen := map[string]bool{}
	for _, a := range axes {
		seen[a] = true
	}
	for _, v := range newOnes {
		for axis := range v.Options {
			if !seen[axis] {
				seen[axis] = true
				axes = append(axes, axis)
			}
		}
	}

	update := bson.M{
		"$push": bson.M{"variations": bson.M{"$each": newOnes}},
		"$set": bson.M{
			"has_variations": true,
			"variation_axes": axes,
			"updated_at":     time.Now(),
		},
	}
	if _, err := database.Products().UpdateByID(c.Request.Context(), p.ID, update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur sauvegarde variations"})
		return false
	}
	return true
}
