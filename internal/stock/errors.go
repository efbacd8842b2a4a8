package stock

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound couvre aussi le produit non possédé par l'appelant :
	// on ne révèle pas l'existence des ressources des autres vendeurs.
	ErrProductNotFound   = errors.New("produit introuvable")
	ErrVariationNotFound = errors.New("variation introuvable")
	// ErrConflict : CAS épuisé après plusieurs tentatives sous contention.
	ErrConflict = errors.New("conflit de mise à jour concurrente sur le stock")
)

// InsufficientStockError nomme toujours l'article et le manque exact pour
// permettre à l'UI de proposer un réessai avec quantité ajustée.
type InsufficientStockError struct {
	Item      string
	Available int
	Requested int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("Stock insuffisant pour %s : %d disponible(s), %d demandé(s)", e.Item, e.Available, e.Requested)
}

// InsufficientReservedError : consommer plus que réservé est un bug amont,
// jamais clampé silencieusement.
type InsufficientReservedError struct {
	Item      string
	Reserved  int
	Requested int
}

func (e InsufficientReservedError) Error() string {
	return fmt.Sprintf("Stock réservé insuffisant pour %s : %d réservé(s), %d demandé(s)", e.Item, e.Reserved, e.Requested)
}
