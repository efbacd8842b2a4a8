package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"souq_back_end/internal/handlers/admin"
	"souq_back_end/internal/handlers/cart"
	"souq_back_end/internal/handlers/coupon"
	"souq_back_end/internal/handlers/delivery"
	"souq_back_end/internal/handlers/order"
	"souq_back_end/internal/handlers/product"
	"souq_back_end/internal/middleware"
)

func RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Webhook Stripe : signé par Stripe, jamais authentifié ni rate-limité —
	// une relivraison bloquée serait une commande payée jamais créée.
	r.POST("/api/webhooks/stripe", order.StripeWebhook)

	api := r.Group("/api", middleware.APIRateLimit())

	// Catalogue public
	products := api.Group("/products")
	{
		products.GET("", product.GetProducts)
		products.GET("/search", middleware.SearchRateLimit(), product.SearchProducts)
		products.GET("/:id", product.GetProduct)
		products.GET("/:id/variations/options", product.AvailableOptions)
		products.GET("/:id/variations/stock", product.CheckVariationStock)
	}

	auth := api.Group("", middleware.AuthRequired())

	// Panier (client connecté)
	cartGroup := auth.Group("/cart")
	{
		cartGroup.GET("", cart.GetCart)
		cartGroup.GET("/ws", cart.CartWebSocket)
		cartGroup.POST("/items", middleware.CartRateLimit(), cart.AddItem)
		cartGroup.PUT("/items/:itemId", cart.UpdateQuantity)
		cartGroup.PUT("/items/:itemId/variation", cart.ChangeVariation)
		cartGroup.DELETE("/items/:itemId", cart.RemoveItem)
		cartGroup.DELETE("", cart.ClearCart)
		cartGroup.POST("/coupon", cart.ApplyCoupon)
	}

	// Commandes (client connecté)
	ordersGroup := auth.Group("/orders")
	{
		ordersGroup.POST("/cash/:cartId", order.CreateCashOrder)
		ordersGroup.POST("/checkout", order.CreateCheckoutSession)
		ordersGroup.GET("", order.GetMyOrders)
		ordersGroup.GET("/:id", order.GetOrderByID)
		ordersGroup.GET("/:id/invoice", order.GetOrderInvoice)
	}

	// Vendeur : catalogue, variations, inventaire, commandes
	seller := auth.Group("", middleware.RequireSeller)
	{
		seller.POST("/products", product.CreateProduct)
		seller.PUT("/products/:id/price", product.UpdatePrice)
		seller.DELETE("/products/:id", product.DeactivateProduct)

		seller.POST("/products/:id/variations", product.AddVariation)
		seller.POST("/products/:id/variations/generate", product.GenerateVariations)
		seller.POST("/products/:id/variations/bulk", product.BulkVariations)
		seller.PUT("/products/:id/variations/:variationId", product.UpdateVariation)
		seller.DELETE("/products/:id/variations/:variationId", product.DeactivateVariation)

		seller.POST("/products/:id/stock/adjust", product.AdjustStock)
		seller.PUT("/products/:id/stock", product.SetStock)
		seller.PUT("/products/:id/stock/threshold", product.SetThreshold)
		seller.POST("/products/:id/stock/reserve", product.ReserveStock)
		seller.POST("/products/:id/stock/release", product.ReleaseStock)
		seller.GET("/products/:id/stock/history", product.StockHistory)
		seller.GET("/products/:id/price-history", product.PriceHistory)

		seller.GET("/seller/inventory/dashboard", product.InventoryDashboard)
		seller.GET("/seller/orders", order.GetSellerOrders)
		seller.GET("/seller/orders/:id", order.GetSellerOrderDetails)
		seller.PUT("/seller/orders/:id/status", order.UpdateSellerOrder)
	}

	// Livreur
	deliveryGroup := auth.Group("/delivery", middleware.RequireDelivery)
	{
		deliveryGroup.GET("/profile", delivery.GetProfile)
		deliveryGroup.PUT("/profile", delivery.UpdateProfile)
		deliveryGroup.GET("/orders/nearby", delivery.NearbyOrders)
		deliveryGroup.PUT("/orders/:id/assign", delivery.AssignOrder)
		deliveryGroup.PUT("/orders/:id/status", delivery.UpdateDeliveryStatus)
		deliveryGroup.GET("/stats", delivery.Stats)
	}

	// Admin
	adminGroup := auth.Group("/admin", middleware.RequireAdmin)
	{
		adminGroup.GET("/orders", order.GetAllOrders)
		adminGroup.PUT("/orders/:id/status", order.UpdateOrderStatus)
		adminGroup.DELETE("/orders/:id", order.DeleteOrder)

		adminGroup.POST("/coupons", coupon.CreateCoupon)
		adminGroup.GET("/coupons", coupon.GetCoupons)
		adminGroup.GET("/coupons/:id", coupon.GetCoupon)
		adminGroup.PUT("/coupons/:id", coupon.UpdateCoupon)
		adminGroup.DELETE("/coupons/:id", coupon.DeleteCoupon)

		adminGroup.GET("/settings", admin.GetSettings)
		adminGroup.PUT("/settings", admin.UpdateSettings)

		adminGroup.GET("/stock/movements", product.StockMovements)
		adminGroup.GET("/stock/alerts", product.StockAlerts)
		adminGroup.PUT("/stock/alerts/:alertId/resolve", product.ResolveStockAlert)
	}
}
