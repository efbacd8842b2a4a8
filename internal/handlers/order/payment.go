package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"souq_back_end/internal/config"
	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
	"souq_back_end/internal/pricing"
	"souq_back_end/internal/services"
	"souq_back_end/internal/stock"
	"souq_back_end/internal/utils"
)

// 🟢 POST /api/orders/checkout — crée le PaymentIntent Stripe et pose son id
// sur le panier : c'est la clé de corrélation que le webhook utilisera.
func CreateCheckoutSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	email := c.GetString("email")

	var req struct {
		ShippingAddress *models.ShippingAddress `json:"shipping_address"`
	}
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	var cart models.Cart
	if err := database.Carts().FindOne(ctx, bson.M{"user": userID}).Decode(&cart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Panier vide ou introuvable"})
		return
	}
	if len(cart.CartItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Panier vide"})
		return
	}

	order, failed := buildOrder(ctx, c, cart, userID, models.PaymentStripe, req.ShippingAddress)
	if failed {
		return
	}

	addressJSON := ""
	if order.ShippingAddress != nil {
		if raw, err := json.Marshal(order.ShippingAddress); err == nil {
			addressJSON = string(raw)
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(order.TotalOrderPrice * 100)),
		Currency: stripe.String("eur"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"user_id":     userID.Hex(),
			"email":       email,
			"cart_id":     cart.ID.Hex(),
			"address":     addressJSON,
			"items_count": fmt.Sprintf("%d", len(cart.CartItems)),
		},
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		log.Printf("❌ Erreur Stripe: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création paiement", "details": err.Error()})
		return
	}

	// La corrélation vit sur le panier : panier absent au webhook = déjà
	// converti en commande.
	_, err = database.Carts().UpdateByID(ctx, cart.ID, bson.M{
		"$set": bson.M{"payment_intent_id": intent.ID, "updated_at": time.Now()},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur sauvegarde panier"})
		return
	}

	log.Printf("💳 Checkout créé: %s (%.2f€) pour %s", intent.ID, order.TotalOrderPrice, email)

	c.JSON(http.StatusOK, gin.H{
		"client_secret": intent.ClientSecret,
		"payment_id":    intent.ID,
		"amount":        order.TotalOrderPrice,
		"currency":      "eur",
		"items_count":   len(cart.CartItems),
	})
}

// 🟢 POST /api/webhooks/stripe
func StripeWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := c.GetRawData()
	if err != nil {
		log.Println("❌ Lecture payload échouée:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	var event stripe.Event

	if secret == "" {
		log.Println("⚠️ Pas de STRIPE_WEBHOOK_SECRET — mode test")
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Println("❌ JSON invalide:", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
			return
		}
	} else {
		event, err = webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), secret)
		if err != nil {
			log.Println("❌ Signature Stripe invalide:", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature invalide"})
			return
		}
	}

	log.Printf("📥 Événement Stripe reçu : %s", event.Type)

	// Les événements qui ne nous concernent pas sont acquittés pour couper
	// les relivraisons.
	if event.Type != "payment_intent.succeeded" {
		log.Printf("ℹ️ Événement ignoré : %s", event.Type)
		c.Status(http.StatusOK)
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		log.Println("❌ Erreur décodage PaymentIntent:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload invalide"})
		return
	}

	if err := handlePaymentSucceeded(c.Request.Context(), pi); err != nil {
		// 500 volontaire : Stripe relivrera l'événement.
		log.Printf("🚨 Traitement webhook échoué pour %s: %v", pi.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Traitement échoué"})
		return
	}

	c.Status(http.StatusOK)
}

// intentOutcome : décision d'idempotence pour une (re)livraison de webhook.
type intentOutcome int

const (
	intentProcess intentOutcome = iota // panier présent, pas encore de commande
	intentReplay                       // commande déjà créée : acquitter
	intentOrphan                       // ni panier ni commande : relivrer
)

// classifyIntent décide du traitement d'un événement de paiement. La commande
// existante prime sur la présence du panier : si le commit (suppression du
// panier) n'avait pas abouti lors d'un passage précédent, retraiter le panier
// dupliquerait la commande.
func classifyIntent(cartFound, orderExists bool) intentOutcome {
	switch {
	case orderExists:
		return intentReplay
	case cartFound:
		return intentProcess
	default:
		return intentOrphan
	}
}

// handlePaymentSucceeded convertit le panier corrélé en commande payée,
// exactement une fois. Le panier est la clé à usage unique : sa suppression
// est le signal de commit, une relivraison ne trouvant pas de panier mais une
// commande existante est un succès antérieur.
func handlePaymentSucceeded(ctx context.Context, pi stripe.PaymentIntent) error {
	var cart models.Cart
	cartErr := database.Carts().FindOne(ctx, bson.M{"payment_intent_id": pi.ID}).Decode(&cart)
	count, countErr := database.Orders().CountDocuments(ctx, bson.M{"payment_intent_id": pi.ID})
	orderExists := countErr == nil && count > 0

	switch classifyIntent(cartErr == nil, orderExists) {
	case intentReplay:
		log.Printf("🔁 Commande déjà enregistrée pour %s, on ignore.", pi.ID)
		if cartErr == nil {
			// Commit resté en suspens au passage précédent : on le rejoue.
			database.Carts().DeleteOne(ctx, bson.M{"_id": cart.ID})
		}
		return nil
	case intentOrphan:
		return fmt.Errorf("panier introuvable pour l'intent %s et aucune commande existante", pi.ID)
	}

	userID := cart.User
	userEmail := pi.Metadata["email"]

	var address *models.ShippingAddress
	if raw := pi.Metadata["address"]; raw != "" {
		var a models.ShippingAddress
		if json.Unmarshal([]byte(raw), &a) == nil {
			address = &a
		}
	}

	order, err := buildPaidOrder(ctx, cart, pi.ID, address)
	if err != nil {
		return err
	}

	// Insertion AVANT toute consommation de stock : un échec ici provoque la
	// relivraison sans qu'aucun stock n'ait bougé, et une relivraison après
	// succès trouve la commande et n'en recrée pas.
	if _, err := database.Orders().InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insertion commande: %w", err)
	}
	log.Printf("✅ Commande payée %s insérée pour %s", order.ID.Hex(), userID.Hex())

	// Chemin payé : consommation immédiate, les fonds sont déjà capturés.
	// Best-effort par article — un produit disparu ne doit pas bloquer la
	// commande d'un client qui a déjà payé.
	led := ledger()
	consumed := false
	for i, item := range order.Items {
		target := stock.Target{ProductID: item.Product, VariationID: item.VariationID}
		if _, err := led.ConsumeImmediate(ctx, target, item.Quantity, order.ID, "stripe-webhook"); err != nil {
			log.Printf("❌ Consommation stock échouée (commande %s, produit %s): %v",
				order.ID.Hex(), item.Product.Hex(), err)
			continue
		}
		order.Items[i].StockConsumed = true
		consumed = true
	}
	if consumed {
		if _, err := database.Orders().UpdateByID(ctx, order.ID, bson.M{
			"$set": bson.M{"items": order.Items, "updated_at": time.Now()},
		}); err != nil {
			log.Printf("⚠️ Marquage stock_consumed échoué pour %s: %v", order.ID.Hex(), err)
		}
	}

	// Suppression du panier = commit. Après ce point une relivraison est un
	// no-op détecté par la commande existante.
	if _, err := database.Carts().DeleteOne(ctx, bson.M{"_id": cart.ID}); err != nil {
		log.Printf("⚠️ Suppression panier %s échouée: %v", cart.ID.Hex(), err)
	}

	if userEmail != "" {
		go sendInvoiceEmail(order, userEmail)
	}
	return nil
}

func buildPaidOrder(ctx context.Context, cart models.Cart, intentID string,
	address *models.ShippingAddress) (models.Order, error) {

	items := make([]models.OrderItem, 0, len(cart.CartItems))
	for _, line := range cart.CartItems {
		item := models.OrderItem{
			ID:               primitive.NewObjectID(),
			Product:          line.Product,
			Quantity:         line.Quantity,
			Price:            line.Price,
			VariationID:      line.VariationID,
			VariationOptions: line.VariationOptions,
		}
		var product models.Product
		if err := database.Products().FindOne(ctx, bson.M{"_id": line.Product}).Decode(&product); err == nil {
			item.ProductTitle = product.Title
			item.Seller = product.Seller
		}
		items = append(items, item)
	}

	cartPrice := cart.TotalPrice
	if cart.TotalPriceAfterDiscount != nil {
		cartPrice = *cart.TotalPriceAfterDiscount
	}

	settings := config.GetSettings(ctx)
	taxes, total := pricing.OrderTotals(cartPrice, settings.TaxRate, settings.ShippingPrice)

	now := time.Now()
	return models.Order{
		ID:              primitive.NewObjectID(),
		Customer:        cart.User,
		TrackingNumber:  "SQ-" + uuid.NewString(),
		Items:           items,
		CartPrice:       cartPrice,
		Taxes:           taxes,
		Shipping:        settings.ShippingPrice,
		TotalOrderPrice: total,
		PaymentMethod:   models.PaymentStripe,
		PaymentIntentID: intentID,
		IsPaid:          true,
		PaidAt:          &now,
		Status:          models.OrderApproved,
		DeliveryStatus:  models.DeliveryUnassigned,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// 🟢 GET /api/orders/:id/invoice — lien de téléchargement temporaire vers la
// facture archivée (commandes payées uniquement).
func GetOrderInvoice(c *gin.Context) {
	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return
	}

	filter := bson.M{"_id": orderID}
	if c.GetString("role") != "admin" {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		filter["customer"] = userID
	}

	var ord models.Order
	if err := database.Orders().FindOne(c.Request.Context(), filter).Decode(&ord); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}
	if !ord.IsPaid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune facture pour une commande non payée"})
		return
	}

	objectName := fmt.Sprintf("invoices/%s/facture-%s.pdf", ord.CreatedAt.Format("2006-01"), ord.ID.Hex())
	url, err := services.PresignedInvoiceURL(c.Request.Context(), objectName)
	if err != nil {
		log.Printf("❌ Erreur génération lien facture %s: %v", ord.ID.Hex(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Facture indisponible"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": "7 jours"})
}

// sendInvoiceEmail génère la facture PDF, l'archive dans MinIO et envoie
// l'email de confirmation avec la facture en pièce jointe.
func sendInvoiceEmail(order models.Order, email string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	html := utils.GenerateOrderConfirmationHTML(order, email)

	pdf, err := utils.GenerateInvoicePDF(order, email)
	if err != nil {
		log.Println("❌ Erreur génération PDF :", err)
		pdf = nil
	} else if url, err := services.UploadInvoicePDF(ctx, order.ID.Hex(), pdf); err != nil {
		log.Println("⚠️ Archivage facture MinIO échoué :", err)
	} else {
		log.Println("🧾 Facture archivée :", url)
	}

	if err := utils.SendConfirmationEmail(email, "✅ Confirmation de votre commande - Souq", html, pdf); err != nil {
		log.Println("❌ Erreur envoi email confirmation :", err)
	}
}
