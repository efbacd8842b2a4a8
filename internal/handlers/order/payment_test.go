package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name        string
		cartFound   bool
		orderExists bool
		want        intentOutcome
	}{
		{"premier passage", true, false, intentProcess},
		{"relivraison après commit", false, true, intentReplay},
		{"relivraison, commit resté en suspens", true, true, intentReplay},
		{"intent inconnu", false, false, intentOrphan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyIntent(tc.cartFound, tc.orderExists))
		})
	}
}
