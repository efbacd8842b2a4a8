// Package stock est la source de vérité du stock disponible vs engagé, au
// niveau produit et variation, avec piste d'audit complète.
//
// Chaque mutation est exprimée en UNE mise à jour MongoDB conditionnelle qui
// embarque le $push de l'entrée d'historique : pas de mutation sans audit, et
// pas de fenêtre lecture-puis-écriture. Les cibles produit utilisent un filtre
// $expr ; les variations (éléments de tableau embarqués, où $expr est interdit
// dans $elemMatch) passent par un compare-and-swap borné.
package stock

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/models"
)

// casAttempts borne les réessais des mises à jour variation sous contention.
const casAttempts = 5

// Target désigne l'entité porteuse de stock : un produit, ou une variation
// embarquée dans son produit.
type Target struct {
	ProductID   primitive.ObjectID
	VariationID *primitive.ObjectID
}

func (t Target) isVariation() bool { return t.VariationID != nil }

// Movement est émis vers le flux d'audit secondaire après chaque mutation.
type Movement struct {
	Target    Target
	Type      string
	Quantity  int
	PrevStock int
	NewStock  int
	OrderID   string
	Reason    string
	Actor     string
}

// Recorder reçoit les mouvements (implémenté par le feed ScyllaDB).
// L'écriture est best-effort : le document Mongo reste la vérité.
type Recorder interface {
	Record(ctx context.Context, m Movement)
	CheckLowStock(ctx context.Context, p models.Product)
}

// Ledger opère sur la collection products.
type Ledger struct {
	Products *mongo.Collection
	Feed     Recorder
}

func NewLedger(products *mongo.Collection, feed Recorder) *Ledger {
	return &Ledger{Products: products, Feed: feed}
}

// LowStock : disponible ≤ seuil.
func LowStock(quantity, reserved, threshold int) bool {
	available := quantity - reserved
	if available < 0 {
		available = 0
	}
	return available <= threshold
}

func historyEntry(target Target, kind string, qty int, orderID *primitive.ObjectID, notes, actor string) models.StockHistoryEntry {
	return models.StockHistoryEntry{
		Type:        kind,
		Quantity:    qty,
		VariationID: target.VariationID,
		OrderID:     orderID,
		Notes:       notes,
		ChangedBy:   actor,
		ChangedAt:   time.Now(),
	}
}

// Reserve pose une réservation : reserved += qty, uniquement si
// disponible ≥ qty. Échoue avec InsufficientStockError en nommant le manque.
func (l *Ledger) Reserve(ctx context.Context, target Target, qty int, actor string) (*models.Product, error) {
	if qty < 1 {
		return nil, InsufficientStockError{Item: target.ProductID.Hex(), Available: 0, Requested: qty}
	}
	entry := historyEntry(target, models.StockReserved, qty, nil, "Stock réservé pour commande", actor)

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			if v.AvailableStock() < qty {
				return nil, InsufficientStockError{Item: v.SKU, Available: v.AvailableStock(), Requested: qty}
			}
			return bson.M{
				"$inc":  bson.M{"variations.$[v].reserved_stock": qty},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, Movement{Target: target, Type: models.StockReserved, Quantity: qty, Actor: actor})
	}

	filter := bson.M{
		"_id": target.ProductID,
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$subtract": bson.A{"$quantity", "$reserved_stock"}},
			qty,
		}},
	}
	update := bson.M{
		"$inc":  bson.M{"reserved_stock": qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, func(p models.Product) error {
		return InsufficientStockError{Item: p.Title, Available: p.AvailableStock(), Requested: qty}
	}, Movement{Target: target, Type: models.StockReserved, Quantity: qty, Actor: actor})
}

// Release relâche une réservation, clampée à min(qty, reserved) : jamais
// négative, jamais en échec pour sur-relâche. C'est une action compensatoire,
// elle ne doit pas elle-même échouer.
func (l *Ledger) Release(ctx context.Context, target Target, qty int, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockReleased, qty, nil, "Réservation relâchée", actor)

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			released := qty
			if released > v.ReservedStock {
				released = v.ReservedStock
			}
			return bson.M{
				"$inc":  bson.M{"variations.$[v].reserved_stock": -released},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, Movement{Target: target, Type: models.StockReleased, Quantity: qty, Actor: actor})
	}

	// CAS produit : le clamp dépend de la valeur courante de reserved_stock.
	for attempt := 0; attempt < casAttempts; attempt++ {
		p, err := l.loadProduct(ctx, target.ProductID)
		if err != nil {
			return nil, err
		}
		released := qty
		if released > p.ReservedStock {
			released = p.ReservedStock
		}
		filter := bson.M{"_id": target.ProductID, "reserved_stock": p.ReservedStock}
		update := bson.M{
			"$set":  bson.M{"reserved_stock": p.ReservedStock - released, "updated_at": time.Now()},
			"$push": bson.M{"stock_history": entry},
		}
		updated, err := l.findOneAndApply(ctx, filter, update, nil)
		if err == nil {
			l.afterMutation(ctx, updated, Movement{Target: target, Type: models.StockReleased, Quantity: qty, Actor: actor,
				PrevStock: p.AvailableStock(), NewStock: updated.AvailableStock()})
			return updated, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		// Valeur modifiée entre-temps, on recommence.
	}
	return nil, ErrConflict
}

// Consume convertit une réservation en vente : quantity -= qty,
// reserved -= qty, sold += qty. Précondition stricte reserved ≥ qty —
// la violer est un bug amont, jamais clampé.
func (l *Ledger) Consume(ctx context.Context, target Target, qty int, orderID primitive.ObjectID, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockSale, qty, &orderID, "Stock consommé à l'exécution de la commande", actor)
	movement := Movement{Target: target, Type: models.StockSale, Quantity: qty, OrderID: orderID.Hex(), Actor: actor}

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			if v.ReservedStock < qty {
				return nil, InsufficientReservedError{Item: v.SKU, Reserved: v.ReservedStock, Requested: qty}
			}
			return bson.M{
				"$inc": bson.M{
					"variations.$[v].quantity":       -qty,
					"variations.$[v].reserved_stock": -qty,
					"variations.$[v].sold":           qty,
				},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, movement)
	}

	filter := bson.M{"_id": target.ProductID, "reserved_stock": bson.M{"$gte": qty}}
	update := bson.M{
		"$inc":  bson.M{"quantity": -qty, "reserved_stock": -qty, "sold": qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, func(p models.Product) error {
		return InsufficientReservedError{Item: p.Title, Reserved: p.ReservedStock, Requested: qty}
	}, movement)
}

// ConsumeImmediate : chemin webhook payé — le stock part directement en vente
// sans réservation préalable (les fonds sont déjà capturés, revenir en
// arrière serait un remboursement, pas un release).
func (l *Ledger) ConsumeImmediate(ctx context.Context, target Target, qty int, orderID primitive.ObjectID, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockSale, qty, &orderID, "Vente directe (paiement confirmé)", actor)
	movement := Movement{Target: target, Type: models.StockSale, Quantity: qty, OrderID: orderID.Hex(), Actor: actor}

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			if v.Quantity < qty {
				return nil, InsufficientStockError{Item: v.SKU, Available: v.Quantity, Requested: qty}
			}
			return bson.M{
				"$inc": bson.M{
					"variations.$[v].quantity": -qty,
					"variations.$[v].sold":     qty,
				},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, movement)
	}

	filter := bson.M{"_id": target.ProductID, "quantity": bson.M{"$gte": qty}}
	update := bson.M{
		"$inc":  bson.M{"quantity": -qty, "sold": qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, func(p models.Product) error {
		return InsufficientStockError{Item: p.Title, Available: p.Quantity, Requested: qty}
	}, movement)
}

// ReturnToInventory : compensation d'annulation pour un item déjà consommé —
// quantity += qty, sold -= qty, tracé distinctement comme "return".
func (l *Ledger) ReturnToInventory(ctx context.Context, target Target, qty int, orderID primitive.ObjectID, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockReturn, qty, &orderID, "Retour en stock après annulation", actor)
	movement := Movement{Target: target, Type: models.StockReturn, Quantity: qty, OrderID: orderID.Hex(), Actor: actor}

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(models.Variation) (bson.M, error) {
			return bson.M{
				"$inc": bson.M{
					"variations.$[v].quantity": qty,
					"variations.$[v].sold":     -qty,
				},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, movement)
	}

	filter := bson.M{"_id": target.ProductID}
	update := bson.M{
		"$inc":  bson.M{"quantity": qty, "sold": -qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, nil, movement)
}

// AddStock : réapprovisionnement (type "purchase").
func (l *Ledger) AddStock(ctx context.Context, target Target, qty int, reason, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockPurchase, qty, nil, reason, actor)
	movement := Movement{Target: target, Type: models.StockPurchase, Quantity: qty, Reason: reason, Actor: actor}

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(models.Variation) (bson.M, error) {
			return bson.M{
				"$inc":  bson.M{"variations.$[v].quantity": qty},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, movement)
	}

	filter := bson.M{"_id": target.ProductID}
	update := bson.M{
		"$inc":  bson.M{"quantity": qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, nil, movement)
}

// SubtractStock : retrait manuel, refuse de passer sous zéro ou sous le
// stock réservé.
func (l *Ledger) SubtractStock(ctx context.Context, target Target, qty int, reason, actor string) (*models.Product, error) {
	entry := historyEntry(target, models.StockAdjustment, -qty, nil, reason, actor)
	movement := Movement{Target: target, Type: models.StockAdjustment, Quantity: -qty, Reason: reason, Actor: actor}

	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			if v.Quantity-qty < v.ReservedStock {
				return nil, InsufficientStockError{Item: v.SKU, Available: v.AvailableStock(), Requested: qty}
			}
			return bson.M{
				"$inc":  bson.M{"variations.$[v].quantity": -qty},
				"$push": bson.M{"stock_history": entry},
				"$set":  bson.M{"updated_at": time.Now()},
			}, nil
		}, movement)
	}

	filter := bson.M{
		"_id": target.ProductID,
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$subtract": bson.A{"$quantity", qty}},
			"$reserved_stock",
		}},
	}
	update := bson.M{
		"$inc":  bson.M{"quantity": -qty},
		"$push": bson.M{"stock_history": entry},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return l.applyProductUpdate(ctx, target, filter, update, func(p models.Product) error {
		return InsufficientStockError{Item: p.Title, Available: p.AvailableStock(), Requested: qty}
	}, movement)
}

// AdjustAbsolute : correction administrative — fixe la quantité, trace le
// delta signé.
func (l *Ledger) AdjustAbsolute(ctx context.Context, target Target, newQuantity int, reason, actor string) (*models.Product, error) {
	if target.isVariation() {
		return l.variationCAS(ctx, target, func(v models.Variation) (bson.M, error) {
			entry := historyEntry(target, models.StockAdjustment, newQuantity-v.Quantity, nil, reason, actor)
			return bson.M{
				"$set":  bson.M{"variations.$[v].quantity": newQuantity, "updated_at": time.Now()},
				"$push": bson.M{"stock_history": entry},
			}, nil
		}, Movement{Target: target, Type: models.StockAdjustment, Quantity: newQuantity, Reason: reason, Actor: actor})
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		p, err := l.loadProduct(ctx, target.ProductID)
		if err != nil {
			return nil, err
		}
		entry := historyEntry(target, models.StockAdjustment, newQuantity-p.Quantity, nil, reason, actor)
		filter := bson.M{"_id": target.ProductID, "quantity": p.Quantity}
		update := bson.M{
			"$set":  bson.M{"quantity": newQuantity, "updated_at": time.Now()},
			"$push": bson.M{"stock_history": entry},
		}
		updated, err := l.findOneAndApply(ctx, filter, update, nil)
		if err == nil {
			l.afterMutation(ctx, updated, Movement{Target: target, Type: models.StockAdjustment,
				Quantity: newQuantity - p.Quantity, Reason: reason, Actor: actor,
				PrevStock: p.Quantity, NewStock: newQuantity})
			return updated, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
	}
	return nil, ErrConflict
}

// --- plomberie ---

func (l *Ledger) loadProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var p models.Product
	err := l.Products.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return p, ErrProductNotFound
	}
	return p, err
}

func (l *Ledger) findOneAndApply(ctx context.Context, filter, update bson.M, arrayFilters []interface{}) (*models.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if arrayFilters != nil {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}
	var updated models.Product
	if err := l.Products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// applyProductUpdate exécute la mise à jour conditionnelle ; zéro document
// touché = soit produit absent, soit précondition violée (shortfall relu pour
// le message d'erreur).
func (l *Ledger) applyProductUpdate(ctx context.Context, target Target, filter, update bson.M,
	shortfall func(models.Product) error, movement Movement) (*models.Product, error) {

	updated, err := l.findOneAndApply(ctx, filter, update, nil)
	if err == nil {
		l.afterMutation(ctx, updated, movement)
		return updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	p, loadErr := l.loadProduct(ctx, target.ProductID)
	if loadErr != nil {
		return nil, loadErr
	}
	if shortfall == nil {
		return nil, ErrProductNotFound
	}
	return nil, shortfall(p)
}

// variationCAS relit la variation, construit la mise à jour via attempt, puis
// l'applique sous condition d'égalité sur (quantity, reserved_stock) de
// l'élément — l'équivalent compare-and-swap du filtre $expr produit.
func (l *Ledger) variationCAS(ctx context.Context, target Target,
	attempt func(models.Variation) (bson.M, error), movement Movement) (*models.Product, error) {

	for try := 0; try < casAttempts; try++ {
		p, err := l.loadProduct(ctx, target.ProductID)
		if err != nil {
			return nil, err
		}
		var current *models.Variation
		for i := range p.Variations {
			if p.Variations[i].ID == *target.VariationID {
				current = &p.Variations[i]
				break
			}
		}
		if current == nil {
			return nil, ErrVariationNotFound
		}

		update, err := attempt(*current)
		if err != nil {
			return nil, err
		}

		filter := bson.M{
			"_id": target.ProductID,
			"variations": bson.M{"$elemMatch": bson.M{
				"_id":            *target.VariationID,
				"quantity":       current.Quantity,
				"reserved_stock": current.ReservedStock,
			}},
		}
		arrayFilters := []interface{}{bson.M{"v._id": *target.VariationID}}

		updated, err := l.findOneAndApply(ctx, filter, update, arrayFilters)
		if err == nil {
			movement.PrevStock = current.AvailableStock()
			if after, ok := findVariation(updated, *target.VariationID); ok {
				movement.NewStock = after.AvailableStock()
			}
			l.afterMutation(ctx, updated, movement)
			return updated, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		// La variation a bougé entre la lecture et l'écriture : on réessaie.
	}
	return nil, ErrConflict
}

func findVariation(p *models.Product, id primitive.ObjectID) (models.Variation, bool) {
	for _, v := range p.Variations {
		if v.ID == id {
			return v, true
		}
	}
	return models.Variation{}, false
}

// afterMutation recalcule les drapeaux is_low_stock et pousse le mouvement
// vers le flux d'audit. Best-effort : le document vient d'être mis à jour
// atomiquement, ces écritures sont dérivées.
func (l *Ledger) afterMutation(ctx context.Context, p *models.Product, movement Movement) {
	set := bson.M{
		"is_low_stock": LowStock(p.Quantity, p.ReservedStock, p.LowStockThreshold),
	}
	for i, v := range p.Variations {
		set["variations."+strconv.Itoa(i)+".is_low_stock"] = LowStock(v.Quantity, v.ReservedStock, v.LowStockThreshold)
	}
	if _, err := l.Products.UpdateByID(ctx, p.ID, bson.M{"$set": set}); err != nil {
		log.Printf("⚠️ Recalcul is_low_stock échoué pour %s: %v", p.ID.Hex(), err)
	}

	if movement.PrevStock == 0 && movement.NewStock == 0 {
		movement.NewStock = p.AvailableStock()
	}
	if l.Feed != nil {
		l.Feed.Record(ctx, movement)
		l.Feed.CheckLowStock(ctx, *p)
	}
}
