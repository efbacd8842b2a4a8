package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestLowStock(t *testing.T) {
	// Scénario : quantity=10, threshold=2. Réserver 9 → disponible 1 → low.
	assert.True(t, LowStock(10, 9, 2))
	// Relâcher les 9 → disponible 10 → plus low.
	assert.False(t, LowStock(10, 0, 2))
	// Disponible exactement au seuil = low.
	assert.True(t, LowStock(10, 8, 2))
	// Réservé > quantité : le disponible est clampé à zéro, donc low.
	assert.True(t, LowStock(3, 5, 0))
}

func TestTargetKind(t *testing.T) {
	pid := primitive.NewObjectID()
	vid := primitive.NewObjectID()

	assert.False(t, Target{ProductID: pid}.isVariation())
	assert.True(t, Target{ProductID: pid, VariationID: &vid}.isVariation())
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := InsufficientStockError{Item: "PHONE-X-BLACK-128GB", Available: 3, Requested: 5}
	assert.Contains(t, err.Error(), "PHONE-X-BLACK-128GB")
	assert.Contains(t, err.Error(), "3")
	assert.Contains(t, err.Error(), "5")
}

func TestInsufficientReservedErrorMessage(t *testing.T) {
	err := InsufficientReservedError{Item: "Chaise", Reserved: 5, Requested: 6}
	assert.Contains(t, err.Error(), "Chaise")
	assert.Contains(t, err.Error(), "réservé")
}

func TestHistoryEntryCarriesOrderRef(t *testing.T) {
	orderID := primitive.NewObjectID()
	target := Target{ProductID: primitive.NewObjectID()}
	entry := historyEntry(target, "sale", 2, &orderID, "test", "seller-1")
	assert.Equal(t, "sale", entry.Type)
	assert.Equal(t, 2, entry.Quantity)
	assert.Equal(t, orderID, *entry.OrderID)
	assert.Equal(t, "seller-1", entry.ChangedBy)
	assert.False(t, entry.ChangedAt.IsZero())
	// Cible produit : pas d'attribution de variation.
	assert.Nil(t, entry.VariationID)
}

func TestHistoryEntryCarriesVariationRef(t *testing.T) {
	// L'historique vit au niveau du produit : une mutation ciblant une
	// variation doit porter l'id de celle-ci pour rester attribuable.
	vid := primitive.NewObjectID()
	target := Target{ProductID: primitive.NewObjectID(), VariationID: &vid}
	entry := historyEntry(target, "reserved", 3, nil, "Stock réservé pour commande", "client-7")
	assert.NotNil(t, entry.VariationID)
	assert.Equal(t, vid, *entry.VariationID)
}
