package coupon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := randomCode()
		assert.Len(t, code, 8)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "caractère inattendu: %c", r)
		}
		seen[code] = true
	}
	// 50 tirages sur 32^8 combinaisons : une collision trahirait un générateur cassé.
	assert.Greater(t, len(seen), 45)
}
