package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin vérifie que l'utilisateur a le rôle "admin"
func RequireAdmin(c *gin.Context) {
	role, exists := c.Get("role")
	if !exists || role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux administrateurs"})
		c.Abort()
		return
	}
	c.Next()
}

// RequireSeller vérifie que l'utilisateur a le rôle "seller" (les admins
// passent aussi, ils supervisent les boutiques)
func RequireSeller(c *gin.Context) {
	role, exists := c.Get("role")
	if !exists || (role != "seller" && role != "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux vendeurs"})
		c.Abort()
		return
	}
	c.Next()
}

// RequireDelivery vérifie que l'utilisateur a le rôle "delivery"
func RequireDelivery(c *gin.Context) {
	role, exists := c.Get("role")
	if !exists || role != "delivery" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux livreurs"})
		c.Abort()
		return
	}
	c.Next()
}
