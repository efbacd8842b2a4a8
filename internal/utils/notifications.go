package utils

import (
	"fmt"
	"log"

	"souq_back_end/internal/models"
)

// SendOrderStatusEmail envoie un email de notification de changement de statut
func SendOrderStatusEmail(order models.Order, userEmail string, newStatus string) error {
	subject := getStatusEmailSubject(newStatus)
	html := generateStatusEmailHTML(order, newStatus)

	err := SendConfirmationEmail(userEmail, subject, html, nil)
	if err != nil {
		log.Printf("❌ Erreur envoi email statut: %v", err)
		return err
	}

	log.Printf("📧 Email de statut envoyé: %s → %s", newStatus, userEmail)
	return nil
}

func getStatusEmailSubject(status string) string {
	switch status {
	case models.OrderApproved:
		return "✅ Commande confirmée - Souq"
	case models.OrderShipping:
		return "📦 Votre commande a été expédiée - Souq"
	case models.OrderDelivered, models.OrderCompleted:
		return "🎉 Votre commande a été livrée - Souq"
	case models.OrderCancelled:
		return "❌ Commande annulée - Souq"
	case models.OrderReturned:
		return "↩️ Retour enregistré - Souq"
	default:
		return "📋 Mise à jour de votre commande - Souq"
	}
}

func generateStatusEmailHTML(order models.Order, status string) string {
	statusMessage := getStatusMessage(status)
	statusIcon := getStatusIcon(status)
	statusColor := getStatusColor(status)

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Mise à jour de commande</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f5f5f5;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse; background-color: #f5f5f5;">
        <tr>
            <td style="padding: 40px 20px;">
                <table role="presentation" style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 12px; box-shadow: 0 4px 6px rgba(0,0,0,0.1);">
                    <!-- Header -->
                    <tr>
                        <td style="background: linear-gradient(135deg, #f2994a 0%%, #f2c94c 100%%); padding: 40px 30px; text-align: center; border-radius: 12px 12px 0 0;">
                            <h1 style="margin: 0; color: #ffffff; font-size: 28px; font-weight: 600;">
                                %s Souq
                            </h1>
                            <p style="margin: 10px 0 0 0; color: #ffffff; font-size: 16px; opacity: 0.9;">
                                Mise à jour de votre commande
                            </p>
                        </td>
                    </tr>

                    <!-- Status Badge -->
                    <tr>
                        <td style="padding: 30px 30px 0 30px; text-align: center;">
                            <div style="display: inline-block; padding: 12px 24px; background-color: %s; color: #ffffff; border-radius: 25px; font-weight: 600; font-size: 14px; text-transform: uppercase; letter-spacing: 0.5px;">
                                %s %s
                            </div>
                        </td>
                    </tr>

                    <!-- Content -->
                    <tr>
                        <td style="padding: 30px;">
                            <p style="margin: 0 0 20px 0; color: #333333; font-size: 16px; line-height: 1.6;">
                                %s
                            </p>

                            <!-- Order Info Box -->
                            <table role="presentation" style="width: 100%%; border-collapse: collapse; background-color: #f8f9fa; border-radius: 8px; margin: 20px 0;">
                                <tr>
                                    <td style="padding: 20px;">
                                        <h3 style="margin: 0 0 15px 0; color: #333333; font-size: 18px; font-weight: 600;">
                                            📦 Détails de la commande
                                        </h3>
                                        <table role="presentation" style="width: 100%%; border-collapse: collapse;">
                                            <tr>
                                                <td style="padding: 8px 0; color: #666666; font-size: 14px;">
                                                    <strong style="color: #333333;">Numéro de commande:</strong>
                                                </td>
                                                <td style="padding: 8px 0; color: #333333; font-size: 14px; text-align: right;">
                                                    #%s
                                                </td>
                                            </tr>
                                            <tr>
                                                <td style="padding: 8px 0; color: #666666; font-size: 14px;">
                                                    <strong style="color: #333333;">Montant total:</strong>
                                                </td>
                                                <td style="padding: 8px 0; color: #333333; font-size: 14px; text-align: right; font-weight: 600;">
                                                    %.2f€
                                                </td>
                                            </tr>
                                            <tr>
                                                <td style="padding: 8px 0; color: #666666; font-size: 14px;">
                                                    <strong style="color: #333333;">Statut:</strong>
                                                </td>
                                                <td style="padding: 8px 0; color: %s; font-size: 14px; text-align: right; font-weight: 600;">
                                                    %s
                                                </td>
                                            </tr>
                                        </table>
                                    </td>
                                </tr>
                            </table>

                            <p style="margin: 20px 0 0 0; color: #666666; font-size: 14px; line-height: 1.6;">
                                Vous avez des questions ? Notre équipe support est disponible 7j/7 pour vous aider.
                            </p>
                        </td>
                    </tr>

                    <!-- Footer -->
                    <tr>
                        <td style="padding: 30px; background-color: #f8f9fa; border-radius: 0 0 12px 12px; text-align: center;">
                            <p style="margin: 0 0 10px 0; color: #999999; font-size: 12px;">
                                © 2026 Souq - Tous droits réservés
                            </p>
                            <p style="margin: 0; color: #999999; font-size: 12px;">
                                Cet email a été envoyé automatiquement, merci de ne pas y répondre.
                            </p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`, statusIcon, statusColor, statusIcon, status, statusMessage, order.ID.Hex()[:8], order.TotalOrderPrice, statusColor, status)

	return html
}

func getStatusMessage(status string) string {
	switch status {
	case models.OrderApproved:
		return "Votre commande a été confirmée. Nous la préparons pour l'expédition."
	case models.OrderShipping:
		return "Bonne nouvelle ! Votre commande a été expédiée et est en route vers vous."
	case models.OrderDelivered, models.OrderCompleted:
		return "Votre commande a été livrée avec succès. Nous espérons que vous en êtes satisfait !"
	case models.OrderCancelled:
		return "Votre commande a été annulée. Si vous avez des questions, n'hésitez pas à nous contacter."
	case models.OrderReturned:
		return "Votre retour a bien été enregistré. Le stock a été remis à jour."
	default:
		return "Le statut de votre commande a été mis à jour."
	}
}

func getStatusIcon(status string) string {
	switch status {
	case models.OrderApproved:
		return "✅"
	case models.OrderShipping:
		return "📦"
	case models.OrderDelivered, models.OrderCompleted:
		return "🎉"
	case models.OrderCancelled:
		return "❌"
	case models.OrderReturned:
		return "↩️"
	default:
		return "📋"
	}
}

func getStatusColor(status string) string {
	switch status {
	case models.OrderApproved:
		return "#10b981" // Green
	case models.OrderShipping:
		return "#3b82f6" // Blue
	case models.OrderDelivered, models.OrderCompleted:
		return "#8b5cf6" // Purple
	case models.OrderCancelled:
		return "#ef4444" // Red
	case models.OrderReturned:
		return "#f59e0b" // Orange
	default:
		return "#6b7280" // Gray
	}
}
