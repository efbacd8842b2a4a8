package product

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"souq_back_end/internal/models"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "iphone-15-pro", slugify("iPhone 15  Pro"))
	assert.Equal(t, "tapis-berbère", slugify(" Tapis   Berbère "))
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=3&limit=50", nil)
	page, limit := pagination(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, limit)

	// Valeurs absentes ou hors bornes : défauts.
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=0&limit=500", nil)
	page, limit = pagination(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)
}

func TestNewVariationDefaults(t *testing.T) {
	p := models.Product{
		ID:                primitive.NewObjectID(),
		SKU:               "IPH15",
		Price:             999,
		LowStockThreshold: 5,
		VariationAxes:     []string{"Color"},
	}

	v := newVariation(p, map[string]string{"Color": "Noir Sidéral"}, "", 0, 10, 3, 0)

	// Prix et seuil hérités du produit, SKU dérivé des options.
	assert.Equal(t, 999.0, v.Price)
	assert.Equal(t, 5, v.LowStockThreshold)
	assert.Equal(t, "IPH15-NOIR-SIDÉRAL", v.SKU)
	assert.Equal(t, 900.0, v.PriceAfterDiscount) // ceil(999 * 0.9)
	assert.True(t, v.IsActive)
	assert.True(t, v.IsLowStock) // 3 disponibles ≤ seuil 5
	assert.False(t, v.ID.IsZero())
}

func TestAxesOfKeepsDeclaredOrder(t *testing.T) {
	p := models.Product{VariationAxes: []string{"Color", "Size"}}

	axes := axesOf(p, map[string]string{"Storage": "128GB", "Color": "Noir", "Battery": "5000"})

	// Axes connus d'abord, nouveaux axes triés ensuite.
	assert.Equal(t, []string{"Color", "Size", "Battery", "Storage"}, axes)
}
