package variations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"souq_back_end/internal/models"
)

func phoneProduct() models.Product {
	return models.Product{
		SKU:           "PHONE-X",
		HasVariations: true,
		VariationAxes: []string{"Color", "Storage"},
		Variations: []models.Variation{
			{
				ID:      primitive.NewObjectID(),
				SKU:     "PHONE-X-BLACK-128GB",
				Options: map[string]string{"Color": "Black", "Storage": "128GB"},
				Quantity: 5, ReservedStock: 0, IsActive: true,
			},
			{
				ID:      primitive.NewObjectID(),
				SKU:     "PHONE-X-BLACK-256GB",
				Options: map[string]string{"Color": "Black", "Storage": "256GB"},
				Quantity: 2, ReservedStock: 2, IsActive: true, // plus rien de disponible
			},
			{
				ID:      primitive.NewObjectID(),
				SKU:     "PHONE-X-WHITE-128GB",
				Options: map[string]string{"Color": "White", "Storage": "128GB"},
				Quantity: 3, ReservedStock: 1, IsActive: true,
			},
			{
				ID:      primitive.NewObjectID(),
				SKU:     "PHONE-X-WHITE-256GB",
				Options: map[string]string{"Color": "White", "Storage": "256GB"},
				Quantity: 10, ReservedStock: 0, IsActive: false, // désactivée
			},
		},
	}
}

func TestFindExactMatch(t *testing.T) {
	p := phoneProduct()

	v, found := Find(p, map[string]string{"Color": "Black", "Storage": "128GB"})
	require.True(t, found)
	assert.Equal(t, "PHONE-X-BLACK-128GB", v.SKU)

	// Casse indifférente sur clés ET valeurs.
	v, found = Find(p, map[string]string{"color": "black", "storage": "128gb"})
	require.True(t, found)
	assert.Equal(t, "PHONE-X-BLACK-128GB", v.SKU)

	// Jeu partiel ≠ jeu complet : pas de correspondance exacte.
	_, found = Find(p, map[string]string{"Color": "Black"})
	assert.False(t, found)

	_, found = Find(p, map[string]string{"Color": "Red", "Storage": "128GB"})
	assert.False(t, found)
}

func TestEnsureUnique(t *testing.T) {
	p := phoneProduct()

	err := EnsureUnique(p, map[string]string{"storage": "128GB", "color": "BLACK"})
	require.Error(t, err)
	assert.IsType(t, ErrDuplicate{}, err)

	assert.NoError(t, EnsureUnique(p, map[string]string{"Color": "Red", "Storage": "128GB"}))
}

func TestAvailableOptionsProgressiveFiltering(t *testing.T) {
	p := phoneProduct()

	// Sans sélection : White/256GB est inactive, Black/256GB est épuisée.
	all := AvailableOptions(p, nil)
	assert.ElementsMatch(t, []string{"Black", "White"}, all["Color"])
	assert.ElementsMatch(t, []string{"128GB"}, all["Storage"])

	// Black sélectionné : seul 128GB reste proposable.
	black := AvailableOptions(p, map[string]string{"Color": "Black"})
	assert.ElementsMatch(t, []string{"128GB"}, black["Storage"])
}

func TestMatchingVariationsSkipsInactiveAndOutOfStock(t *testing.T) {
	p := phoneProduct()
	matching := MatchingVariations(p, map[string]string{"Storage": "256GB"})
	assert.Empty(t, matching)

	matching = MatchingVariations(p, map[string]string{"Storage": "128GB"})
	assert.Len(t, matching, 2)
}

func TestGenerateCombinations(t *testing.T) {
	combos := GenerateCombinations(
		[]string{"Color", "Storage"},
		map[string][]string{
			"Color":   {"Black", "White"},
			"Storage": {"128GB", "256GB", "512GB"},
		},
	)
	require.Len(t, combos, 6)
	assert.Equal(t, map[string]string{"Color": "Black", "Storage": "128GB"}, combos[0])
	assert.Equal(t, map[string]string{"Color": "White", "Storage": "512GB"}, combos[5])

	// Axe sans valeurs : aucune combinaison.
	assert.Nil(t, GenerateCombinations([]string{"Color"}, map[string][]string{}))
}

func TestDeriveSKU(t *testing.T) {
	sku := DeriveSKU("TEE-1", []string{"Color", "Size"}, map[string]string{"Color": "navy blue", "Size": "XL"})
	assert.Equal(t, "TEE-1-NAVY-BLUE-XL", sku)
}

func TestFoldLegacy(t *testing.T) {
	assert.Equal(t, map[string]string{"color": "Black", "size": "M"}, FoldLegacy("Black", "M"))
	assert.Equal(t, map[string]string{"color": "Black"}, FoldLegacy("Black", ""))
	assert.Empty(t, FoldLegacy("", ""))
}
