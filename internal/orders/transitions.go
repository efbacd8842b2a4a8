// Package orders porte la machine à états des commandes et la planification
// des effets de bord stock. Une SEULE fonction de transition, paramétrée par
// un prédicat de sélection d'items, sert les chemins admin, vendeur et
// livraison : les sémantiques stock ne peuvent pas diverger entre eux.
package orders

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"souq_back_end/internal/models"
	"souq_back_end/internal/stock"
)

// Graphe des transitions autorisées. delivered/completed et cancelled sont
// terminaux pour le stock ; returned/damaged sont enregistrés sans effet
// stock supplémentaire.
var allowedTransitions = map[string][]string{
	models.OrderPending:  {models.OrderApproved, models.OrderCancelled},
	models.OrderApproved: {models.OrderShipping, models.OrderCancelled},
	models.OrderShipping: {models.OrderDelivered, models.OrderCompleted, models.OrderCancelled, models.OrderReturned, models.OrderDamaged},
}

var validStatuses = map[string]bool{
	models.OrderPending:   true,
	models.OrderApproved:  true,
	models.OrderShipping:  true,
	models.OrderCompleted: true,
	models.OrderDelivered: true,
	models.OrderCancelled: true,
	models.OrderReturned:  true,
	models.OrderDamaged:   true,
}

// Sous-machine livraison, indépendante du statut de commande.
var deliveryTransitions = map[string][]string{
	models.DeliveryUnassigned: {models.DeliveryAssigned},
	models.DeliveryAssigned:   {models.DeliveryPickedUp},
	models.DeliveryPickedUp:   {models.DeliveryInTransit, models.DeliveryDelivered},
	models.DeliveryInTransit:  {models.DeliveryDelivered},
}

// ValidStatus : le statut fait partie de l'énumération.
func ValidStatus(status string) bool { return validStatuses[status] }

// CanTransition vérifie le graphe ; la transition vers soi-même est un no-op
// autorisé (idempotence des mises à jour répétées).
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionDelivery : graphe de la sous-machine livraison.
func CanTransitionDelivery(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemFilter sélectionne les items concernés par une transition : tous pour
// l'admin, ceux d'un vendeur pour le chemin vendeur.
type ItemFilter func(models.OrderItem) bool

func AllItems(models.OrderItem) bool { return true }

func SellerItems(sellerID primitive.ObjectID) ItemFilter {
	return func(item models.OrderItem) bool {
		return item.Seller == sellerID
	}
}

// Action stock planifiée pour un item.
const (
	ActionRelease = "release" // annulation d'une réservation (clampée)
	ActionReturn  = "return"  // annulation d'un item déjà consommé
	ActionConsume = "consume" // conversion réservation → vente
)

type StockOp struct {
	ItemIndex int
	Target    stock.Target
	Action    string
	Quantity  int
	// Nouvel état du drapeau stock_consumed de l'item après l'op.
	ConsumedAfter bool
}

// Plan décrit les effets d'une transition ; il est pur, l'exécution passe par
// Apply.
type Plan struct {
	NewStatus      string
	Ops            []StockOp
	SetDeliveredAt bool
}

type InvalidTransitionError struct {
	From, To string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition de statut invalide : %s → %s", e.From, e.To)
}

// PlanTransition calcule les effets stock d'un changement de statut sur les
// items sélectionnés. Règles :
//   - → cancelled : release pour les items seulement réservés, retour en
//     stock pour ceux déjà consommés (chemin payé ou déjà livrés).
//   - → delivered/completed : consommation des réservations restantes.
//   - autres statuts : aucun effet stock.
func PlanTransition(order models.Order, filter ItemFilter, newStatus string) (Plan, error) {
	if !ValidStatus(newStatus) {
		return Plan{}, fmt.Errorf("statut inconnu : %q", newStatus)
	}
	if !CanTransition(order.Status, newStatus) {
		return Plan{}, InvalidTransitionError{From: order.Status, To: newStatus}
	}

	plan := Plan{NewStatus: newStatus}
	if newStatus == order.Status {
		return plan, nil
	}

	switch newStatus {
	case models.OrderCancelled:
		for i, item := range order.Items {
			if !filter(item) {
				continue
			}
			op := StockOp{
				ItemIndex: i,
				Target:    stock.Target{ProductID: item.Product, VariationID: item.VariationID},
				Quantity:  item.Quantity,
			}
			if item.StockConsumed {
				op.Action = ActionReturn
				op.ConsumedAfter = false
			} else {
				op.Action = ActionRelease
				op.ConsumedAfter = false
			}
			plan.Ops = append(plan.Ops, op)
		}
	case models.OrderDelivered, models.OrderCompleted:
		plan.SetDeliveredAt = true
		for i, item := range order.Items {
			if !filter(item) || item.StockConsumed {
				continue
			}
			plan.Ops = append(plan.Ops, StockOp{
				ItemIndex:     i,
				Target:        stock.Target{ProductID: item.Product, VariationID: item.VariationID},
				Action:        ActionConsume,
				Quantity:      item.Quantity,
				ConsumedAfter: true,
			})
		}
	}
	return plan, nil
}

// Apply exécute les ops stock d'un plan en best-effort : un item dont le
// produit a disparu ne doit pas bloquer une annulation ou une livraison
// entière — l'écart est loggé avec tout le contexte. Retourne les items avec
// leurs drapeaux stock_consumed à jour (seuls les items dont l'op a réussi
// changent d'état).
func Apply(ctx context.Context, ledger *stock.Ledger, order models.Order, plan Plan, actor string) []models.OrderItem {
	items := make([]models.OrderItem, len(order.Items))
	copy(items, order.Items)

	for _, op := range plan.Ops {
		var err error
		switch op.Action {
		case ActionRelease:
			_, err = ledger.Release(ctx, op.Target, op.Quantity, actor)
		case ActionReturn:
			_, err = ledger.ReturnToInventory(ctx, op.Target, op.Quantity, order.ID, actor)
		case ActionConsume:
			_, err = ledger.Consume(ctx, op.Target, op.Quantity, order.ID, actor)
		}
		if err != nil {
			log.Printf("❌ Effet stock %s ignoré (commande %s, produit %s, qté %d): %v",
				op.Action, order.ID.Hex(), op.Target.ProductID.Hex(), op.Quantity, err)
			continue
		}
		items[op.ItemIndex].StockConsumed = op.ConsumedAfter
	}
	return items
}
