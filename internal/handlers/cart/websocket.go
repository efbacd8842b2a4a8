package cart

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"souq_back_end/internal/database"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Le CORS est géré en amont par le middleware gin-contrib/cors.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type cartEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishCartEvent notifie les autres onglets/appareils de l'utilisateur
// qu'un panier a changé. Best-effort, jamais bloquant pour la requête.
func PublishCartEvent(ctx context.Context, userID, eventType string) {
	if database.Redis == nil {
		return
	}
	payload, _ := json.Marshal(cartEvent{Type: eventType, UserID: userID, Timestamp: time.Now()})
	if err := database.Redis.Publish(ctx, "cart_events:"+userID, payload).Err(); err != nil {
		log.Printf("⚠️ Publication événement panier échouée: %v", err)
	}
}

// 🟢 GET /api/cart/ws — synchronisation temps réel du panier entre appareils
func CartWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "non authentifié"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Upgrade websocket échoué: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := database.Redis.Subscribe(ctx, "cart_events:"+userID)
	defer sub.Close()

	// Lecture côté client uniquement pour détecter la déconnexion.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	log.Printf("🔌 Websocket panier ouvert pour %s", userID)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
