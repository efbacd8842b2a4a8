package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"souq_back_end/internal/models"
)

func TestRoundUpToFive(t *testing.T) {
	assert.Equal(t, 40.0, RoundUpToFive(38))
	assert.Equal(t, 40.0, RoundUpToFive(40))
	assert.Equal(t, 5.0, RoundUpToFive(1))
	assert.Equal(t, 0.0, RoundUpToFive(0))
	assert.Equal(t, 45.0, RoundUpToFive(40.01))
}

func TestCartTotal(t *testing.T) {
	// Deux lignes à 12 et 13, quantités 1 et 2 → 38 brut → 40 arrondi.
	items := []models.CartItem{
		{Price: 12, Quantity: 1},
		{Price: 13, Quantity: 2},
	}
	assert.Equal(t, 40.0, CartTotal(items))
}

func TestCartTotalEmpty(t *testing.T) {
	assert.Equal(t, 0.0, CartTotal(nil))
}

func TestDiscountedTotal(t *testing.T) {
	// 20% sur 40 → 32 brut, remonté au multiple de 5 → 35.
	assert.Equal(t, 35.0, DiscountedTotal(40, 20))
	assert.Equal(t, 40.0, DiscountedTotal(40, 0))
	assert.Equal(t, 0.0, DiscountedTotal(40, 100))
}

func TestOrderTotals(t *testing.T) {
	// Comparaison tolérante : 100*0.14 ne tombe pas exactement sur 14 en
	// flottant binaire.
	taxes, total := OrderTotals(100, 0.14, 20)
	assert.InDelta(t, 14.0, taxes, 1e-9)
	assert.InDelta(t, 134.0, total, 1e-9)
}

func TestComputePriceAfterDiscount(t *testing.T) {
	assert.Equal(t, 80.0, models.ComputePriceAfterDiscount(100, 20))
	assert.Equal(t, 90.0, models.ComputePriceAfterDiscount(99.5, 10)) // ceil(89.55)
}
