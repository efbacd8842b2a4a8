// Package variations résout les options dynamiques (axe → valeur) vers la
// variation porteuse de stock d'un produit. Une seule représentation : la map
// d'options ; le couple historique {color,size} n'est qu'un cas à deux axes
// replié en map à la frontière HTTP.
package variations

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"souq_back_end/internal/models"
)

// ErrDuplicate signale qu'une variation avec exactement ces options existe déjà.
type ErrDuplicate struct {
	Options map[string]string
}

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("la variation %s existe déjà", DisplayOptions(e.Options))
}

// OptionsEqual compare deux maps d'options : mêmes clés, valeurs égales sans
// tenir compte de la casse. L'ordre des clés n'a aucune importance.
func OptionsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := lookupFold(b, k)
		if !ok || !strings.EqualFold(va, vb) {
			return false
		}
	}
	return true
}

// lookupFold cherche une clé sans tenir compte de la casse.
func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// matches : la variation porte toutes les options demandées (sélection
// partielle autorisée).
func matches(v models.Variation, selected map[string]string) bool {
	for k, want := range selected {
		got, ok := lookupFold(v.Options, k)
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

// Find retourne la variation correspondant exactement à toutes les options
// fournies. Un ensemble complet d'options identifie au plus une variation —
// l'unicité est garantie à la création (voir EnsureUnique).
func Find(p models.Product, options map[string]string) (models.Variation, bool) {
	for _, v := range p.Variations {
		if OptionsEqual(v.Options, options) {
			return v, true
		}
	}
	return models.Variation{}, false
}

// FindByID retrouve une variation par son identifiant hexadécimal.
func FindByID(p models.Product, id string) (models.Variation, bool) {
	for _, v := range p.Variations {
		if v.ID.Hex() == id {
			return v, true
		}
	}
	return models.Variation{}, false
}

// EnsureUnique refuse l'ajout d'un jeu d'options déjà présent sur le produit.
func EnsureUnique(p models.Product, options map[string]string) error {
	if _, found := Find(p, options); found {
		return ErrDuplicate{Options: options}
	}
	return nil
}

// AvailableOptions retourne, par axe restant, les valeurs encore proposables :
// celles portées par au moins une variation active et en stock compatible avec
// la sélection partielle. Empêche l'UI d'offrir des combinaisons à stock nul.
func AvailableOptions(p models.Product, selected map[string]string) map[string][]string {
	out := make(map[string][]string, len(p.VariationAxes))
	seen := make(map[string]map[string]bool, len(p.VariationAxes))
	for _, axis := range p.VariationAxes {
		out[axis] = []string{}
		seen[axis] = map[string]bool{}
	}

	for _, v := range p.Variations {
		if !v.IsActive || v.AvailableStock() <= 0 {
			continue
		}
		if !matches(v, selected) {
			continue
		}
		for axis, value := range v.Options {
			for _, known := range p.VariationAxes {
				if strings.EqualFold(known, axis) && !seen[known][value] {
					seen[known][value] = true
					out[known] = append(out[known], value)
				}
			}
		}
	}
	for axis := range out {
		sort.Strings(out[axis])
	}
	return out
}

// MatchingVariations retourne les variations actives et en stock compatibles
// avec une sélection partielle.
func MatchingVariations(p models.Product, selected map[string]string) []models.Variation {
	var result []models.Variation
	for _, v := range p.Variations {
		if v.IsActive && v.AvailableStock() > 0 && matches(v, selected) {
			result = append(result, v)
		}
	}
	return result
}

// GenerateCombinations produit le produit cartésien des valeurs par axe,
// dans l'ordre des axes fournis.
func GenerateCombinations(axes []string, values map[string][]string) []map[string]string {
	combos := []map[string]string{{}}
	for _, axis := range axes {
		axisValues := values[axis]
		if len(axisValues) == 0 {
			return nil
		}
		next := make([]map[string]string, 0, len(combos)*len(axisValues))
		for _, combo := range combos {
			for _, value := range axisValues {
				extended := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[axis] = value
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

var skuSpaces = regexp.MustCompile(`\s+`)

// DeriveSKU construit le SKU d'une combinaison : SKU produit + valeurs,
// majuscules, espaces remplacés par des tirets.
func DeriveSKU(productSKU string, axes []string, options map[string]string) string {
	parts := []string{productSKU}
	for _, axis := range axes {
		if v, ok := lookupFold(options, axis); ok {
			parts = append(parts, v)
		}
	}
	sku := strings.Join(parts, "-")
	return skuSpaces.ReplaceAllString(strings.ToUpper(sku), "-")
}

// DisplayOptions : rendu "Black - 128GB" pour les messages d'erreur.
func DisplayOptions(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, options[k])
	}
	return strings.Join(values, " - ")
}

// FoldLegacy replie l'ancien couple {color,size} en map d'options.
func FoldLegacy(color, size string) map[string]string {
	options := map[string]string{}
	if color != "" {
		options["color"] = color
	}
	if size != "" {
		options["size"] = size
	}
	return options
}
