// Package admin expose les réglages globaux de la place de marché.
package admin

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"souq_back_end/internal/config"
)

// 🟢 GET /api/admin/settings — valeurs effectives (cache Redis, Mongo,
// sinon défauts).
func GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, config.GetSettings(c.Request.Context()))
}

// 🟢 PUT /api/admin/settings — les champs omis gardent leur valeur courante.
func UpdateSettings(c *gin.Context) {
	var req struct {
		TaxRate       *float64 `json:"tax_rate"`
		ShippingPrice *float64 `json:"shipping_price"`
		DeliveryFee   *float64 `json:"delivery_fee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	settings := config.GetSettings(c.Request.Context())
	if req.TaxRate != nil {
		if *req.TaxRate < 0 || *req.TaxRate >= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Le taux de taxe doit être entre 0 et 1"})
			return
		}
		settings.TaxRate = *req.TaxRate
	}
	if req.ShippingPrice != nil {
		if *req.ShippingPrice < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Frais de livraison invalides"})
			return
		}
		settings.ShippingPrice = *req.ShippingPrice
	}
	if req.DeliveryFee != nil {
		if *req.DeliveryFee < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Commission livreur invalide"})
			return
		}
		settings.DeliveryFee = *req.DeliveryFee
	}

	if err := config.UpdateSettings(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur sauvegarde réglages"})
		return
	}

	log.Printf("✅ Réglages mis à jour: taxe=%.2f livraison=%.2f commission=%.2f",
		settings.TaxRate, settings.ShippingPrice, settings.DeliveryFee)
	c.JSON(http.StatusOK, settings)
}
