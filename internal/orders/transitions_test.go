package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"souq_back_end/internal/models"
)

var (
	sellerA = primitive.NewObjectID()
	sellerB = primitive.NewObjectID()
)

func twoSellerOrder(status string) models.Order {
	return models.Order{
		ID:     primitive.NewObjectID(),
		Status: status,
		Items: []models.OrderItem{
			{ID: primitive.NewObjectID(), Product: primitive.NewObjectID(), Quantity: 2, Seller: sellerA},
			{ID: primitive.NewObjectID(), Product: primitive.NewObjectID(), Quantity: 1, Seller: sellerB},
			{ID: primitive.NewObjectID(), Product: primitive.NewObjectID(), Quantity: 3, Seller: sellerA},
		},
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.OrderPending, models.OrderApproved))
	assert.True(t, CanTransition(models.OrderApproved, models.OrderShipping))
	assert.True(t, CanTransition(models.OrderShipping, models.OrderDelivered))
	assert.True(t, CanTransition(models.OrderShipping, models.OrderReturned))
	assert.True(t, CanTransition(models.OrderPending, models.OrderCancelled))

	// Pas de retour en arrière ni de saut pending → delivered.
	assert.False(t, CanTransition(models.OrderDelivered, models.OrderPending))
	assert.False(t, CanTransition(models.OrderPending, models.OrderDelivered))
	assert.False(t, CanTransition(models.OrderCancelled, models.OrderApproved))

	// No-op idempotent.
	assert.True(t, CanTransition(models.OrderShipping, models.OrderShipping))
}

func TestCanTransitionDelivery(t *testing.T) {
	assert.True(t, CanTransitionDelivery(models.DeliveryUnassigned, models.DeliveryAssigned))
	assert.True(t, CanTransitionDelivery(models.DeliveryPickedUp, models.DeliveryDelivered))
	assert.False(t, CanTransitionDelivery(models.DeliveryUnassigned, models.DeliveryDelivered))
	assert.False(t, CanTransitionDelivery(models.DeliveryDelivered, models.DeliveryAssigned))
}

func TestPlanTransitionRejectsInvalid(t *testing.T) {
	order := twoSellerOrder(models.OrderPending)

	_, err := PlanTransition(order, AllItems, "expédiée")
	assert.Error(t, err)

	_, err = PlanTransition(order, AllItems, models.OrderDelivered)
	require.Error(t, err)
	var ite InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, models.OrderPending, ite.From)
}

func TestPlanCancelReleasesReserved(t *testing.T) {
	order := twoSellerOrder(models.OrderPending)

	plan, err := PlanTransition(order, AllItems, models.OrderCancelled)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 3)
	for i, op := range plan.Ops {
		assert.Equal(t, ActionRelease, op.Action)
		assert.Equal(t, order.Items[i].Quantity, op.Quantity)
		assert.Equal(t, order.Items[i].Product, op.Target.ProductID)
		assert.False(t, op.ConsumedAfter)
	}
}

func TestPlanCancelReturnsConsumedItems(t *testing.T) {
	order := twoSellerOrder(models.OrderApproved)
	order.Items[1].StockConsumed = true // payé en ligne, stock déjà décrémenté

	plan, err := PlanTransition(order, AllItems, models.OrderCancelled)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 3)
	assert.Equal(t, ActionRelease, plan.Ops[0].Action)
	assert.Equal(t, ActionReturn, plan.Ops[1].Action)
	assert.Equal(t, ActionRelease, plan.Ops[2].Action)
}

func TestPlanDeliveredConsumesRemaining(t *testing.T) {
	order := twoSellerOrder(models.OrderShipping)
	order.Items[0].StockConsumed = true // déjà consommé, ne doit pas l'être deux fois

	plan, err := PlanTransition(order, AllItems, models.OrderDelivered)
	require.NoError(t, err)
	assert.True(t, plan.SetDeliveredAt)
	require.Len(t, plan.Ops, 2)
	assert.Equal(t, 1, plan.Ops[0].ItemIndex)
	assert.Equal(t, 2, plan.Ops[1].ItemIndex)
	for _, op := range plan.Ops {
		assert.Equal(t, ActionConsume, op.Action)
		assert.True(t, op.ConsumedAfter)
	}
}

// Un vendeur ne touche que ses propres items : ceux des autres vendeurs
// restent strictement intacts.
func TestPlanSellerScopedCompletion(t *testing.T) {
	order := twoSellerOrder(models.OrderShipping)

	plan, err := PlanTransition(order, SellerItems(sellerA), models.OrderCompleted)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	assert.Equal(t, 0, plan.Ops[0].ItemIndex)
	assert.Equal(t, 2, plan.Ops[1].ItemIndex)

	planB, err := PlanTransition(order, SellerItems(sellerB), models.OrderCancelled)
	require.NoError(t, err)
	require.Len(t, planB.Ops, 1)
	assert.Equal(t, 1, planB.Ops[0].ItemIndex)
}

func TestPlanNoOpSameStatus(t *testing.T) {
	order := twoSellerOrder(models.OrderShipping)
	plan, err := PlanTransition(order, AllItems, models.OrderShipping)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops)
	assert.False(t, plan.SetDeliveredAt)
}

func TestPlanVariationTarget(t *testing.T) {
	order := twoSellerOrder(models.OrderPending)
	vid := primitive.NewObjectID()
	order.Items[0].VariationID = &vid

	plan, err := PlanTransition(order, AllItems, models.OrderCancelled)
	require.NoError(t, err)
	require.NotNil(t, plan.Ops[0].Target.VariationID)
	assert.Equal(t, vid, *plan.Ops[0].Target.VariationID)
	assert.Nil(t, plan.Ops[1].Target.VariationID)
}
