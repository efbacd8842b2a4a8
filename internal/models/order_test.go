package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod(PaymentCashOnDelivery))
	assert.True(t, ValidPaymentMethod(PaymentOnline))
	assert.True(t, ValidPaymentMethod(PaymentStripe))

	assert.False(t, ValidPaymentMethod(""))
	assert.False(t, ValidPaymentMethod("paypal"))
	assert.False(t, ValidPaymentMethod("stripe")) // sensible à la casse
}
