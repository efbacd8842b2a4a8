package utils

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/wneessen/go-mail"

	"souq_back_end/internal/models"
)

func SendConfirmationEmail(to, subject, htmlBody string, pdfAttachment []byte) error {
	msg := mail.NewMsg()

	if err := msg.From("noreply@souq.ma"); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if pdfAttachment != nil {
		msg.AttachReader("facture_souq.pdf", bytes.NewReader(pdfAttachment))
	}

	client, err := mail.NewClient(os.Getenv("SMTP_HOST"),
		mail.WithPort(587),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail à", to)
	return client.DialAndSend(msg)
}

// GenerateOrderConfirmationHTML génère le HTML de confirmation de commande
func GenerateOrderConfirmationHTML(order models.Order, userEmail string) string {
	itemsHTML := ""
	for _, item := range order.Items {
		label := item.ProductTitle
		if len(item.VariationOptions) > 0 {
			label += " (" + formatOptions(item.VariationOptions) + ")"
		}
		itemsHTML += fmt.Sprintf(`
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%.2f€</td>
				<td>%.2f€</td>
			</tr>`, label, item.Quantity, item.Price, item.Price*float64(item.Quantity))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Confirmation de commande</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirmation de votre commande</h2>
		<p>Bonjour,</p>
		<p>Votre commande a été confirmée avec succès.</p>

		<h3>Détails de la commande</h3>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Produit</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Quantité</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Prix unitaire</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Total</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
			<tfoot>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right;">Sous-total:</td>
					<td style="padding: 10px;">%.2f€</td>
				</tr>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right;">Taxes:</td>
					<td style="padding: 10px;">%.2f€</td>
				</tr>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right;">Livraison:</td>
					<td style="padding: 10px;">%.2f€</td>
				</tr>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total:</td>
					<td style="padding: 10px; font-weight: bold;">%.2f€</td>
				</tr>
			</tfoot>
		</table>

		<p style="margin-top: 30px; color: #555;">
			Cordialement,<br>
			<strong>L'équipe Souq</strong>
		</p>
	</div>
</body>
</html>`, itemsHTML, order.CartPrice, order.Taxes, order.Shipping, order.TotalOrderPrice)
}

func formatOptions(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		if out != "" {
			out += " - "
		}
		out += options[k]
	}
	return out
}

// GenerateInvoicePDF génère la facture PDF d'une commande, avec QR de
// paiement SEPA.
func GenerateInvoicePDF(order models.Order, userEmail string) ([]byte, error) {
	orderID := order.ID.Hex()

	iban := os.Getenv("COMPANY_IBAN")
	if iban == "" {
		iban = "MA64011519000001205000534921"
	}
	bic := os.Getenv("COMPANY_BIC")
	if bic == "" {
		bic = "BCMAMAMC"
	}
	companyName := os.Getenv("COMPANY_NAME")
	if companyName == "" {
		companyName = "Souq SARL"
	}
	ref := fmt.Sprintf("FACT-%s", orderID)

	qrBase64, err := GenerateSepaQR(iban, bic, companyName, ref, order.TotalOrderPrice)
	if err != nil {
		return nil, fmt.Errorf("erreur génération QR: %v", err)
	}

	return RenderInvoicePDF(GetFrontendInvoiceBaseURL(), orderID, qrBase64)
}
