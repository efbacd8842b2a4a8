package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"souq_back_end/internal/models"
)

func TestDeliveryEffectsRepeatedStatusIsNoOp(t *testing.T) {
	// Re-signaler delivered ne doit produire aucun effet : pas de second
	// crédit de course, pas de nouveau timestamp.
	effects := deliveryEffects(models.DeliveryDelivered, models.DeliveryDelivered)
	assert.True(t, effects.NoOp)
	assert.False(t, effects.Delivered)
	assert.False(t, effects.PickedUp)

	effects = deliveryEffects(models.DeliveryPickedUp, models.DeliveryPickedUp)
	assert.True(t, effects.NoOp)
	assert.False(t, effects.PickedUp)
}

func TestDeliveryEffectsRealTransitions(t *testing.T) {
	effects := deliveryEffects(models.DeliveryInTransit, models.DeliveryDelivered)
	assert.False(t, effects.NoOp)
	assert.True(t, effects.Delivered)

	effects = deliveryEffects(models.DeliveryAssigned, models.DeliveryPickedUp)
	assert.False(t, effects.NoOp)
	assert.True(t, effects.PickedUp)
	assert.False(t, effects.Delivered)
}
