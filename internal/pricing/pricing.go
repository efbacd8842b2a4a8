// Package pricing regroupe les règles d'arrondi monétaire du marketplace.
// Tous les totaux panier/commande sont arrondis AU-DESSUS au multiple de 5.
package pricing

import (
	"math"

	"souq_back_end/internal/models"
)

// RoundUpToFive : ceil(x/5)*5.
func RoundUpToFive(x float64) float64 {
	return math.Ceil(x/5) * 5
}

// CartTotal calcule le total du panier à partir des prix capturés.
func CartTotal(items []models.CartItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return RoundUpToFive(total)
}

// DiscountedTotal applique un coupon en pourcentage sur un total déjà arrondi.
func DiscountedTotal(total, discountPercentage float64) float64 {
	return RoundUpToFive(total * (1 - discountPercentage/100))
}

// OrderTotals décompose le prix final : taxes proportionnelles au panier
// (taux fractionnaire, ex: 0.14), frais de port fixes.
func OrderTotals(cartPrice, taxRate, shipping float64) (taxes, total float64) {
	taxes = cartPrice * taxRate
	total = cartPrice + taxes + shipping
	return taxes, total
}
