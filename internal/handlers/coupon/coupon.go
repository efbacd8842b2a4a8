// Package coupon : gestion admin des codes de réduction. La validation à
// l'usage (expiration, un seul coupon par panier) vit côté panier.
package coupon

import (
	"crypto/rand"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"souq_back_end/internal/database"
	"souq_back_end/internal/models"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// randomCode génère un code de 8 caractères sans lettres ambiguës (I, O, 0, 1).
func randomCode() string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// math/rand ferait l'affaire mais crypto/rand n'échoue pas en pratique.
			n = big.NewInt(int64(i))
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}

// 🟢 POST /api/admin/coupons — code fourni ou généré, toujours 8 caractères
// majuscules.
func CreateCoupon(c *gin.Context) {
	var req struct {
		Code     string  `json:"code"`
		Discount float64 `json:"discount" binding:"required"`
		Expire   string  `json:"expire" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Remise et date d'expiration requises"})
		return
	}
	if req.Discount <= 0 || req.Discount > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La remise doit être entre 0 et 100"})
		return
	}
	expire, err := time.Parse(time.RFC3339, req.Expire)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date d'expiration invalide (RFC3339 attendu)"})
		return
	}
	if expire.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La date d'expiration est déjà passée"})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		code = randomCode()
	}
	if len(code) != 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le code doit faire exactement 8 caractères"})
		return
	}

	now := time.Now()
	coupon := models.Coupon{
		ID:        primitive.NewObjectID(),
		Code:      code,
		Discount:  req.Discount,
		Expire:    expire,
		CreatedBy: c.GetString("user_id"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := database.Coupons().InsertOne(c.Request.Context(), coupon); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Ce code existe déjà"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création coupon"})
		return
	}

	log.Printf("🎟️ Coupon %s créé (-%.0f%%, expire %s)", code, req.Discount, expire.Format("2006-01-02"))
	c.JSON(http.StatusCreated, coupon)
}

// 🟢 GET /api/admin/coupons
func GetCoupons(c *gin.Context) {
	filter := bson.M{}
	if c.Query("active") == "true" {
		filter["expire"] = bson.M{"$gt": time.Now()}
	}

	opts := mongooptions.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := database.Coupons().Find(c.Request.Context(), filter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur chargement coupons"})
		return
	}
	var coupons []models.Coupon
	if err := cursor.All(c.Request.Context(), &coupons); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture coupons"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons, "count": len(coupons)})
}

// 🟢 GET /api/admin/coupons/:id
func GetCoupon(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID coupon invalide"})
		return
	}
	var coupon models.Coupon
	if err := database.Coupons().FindOne(c.Request.Context(), bson.M{"_id": id}).Decode(&coupon); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon introuvable"})
		return
	}
	c.JSON(http.StatusOK, coupon)
}

// 🟢 PUT /api/admin/coupons/:id — remise et/ou expiration ; le code est
// immuable une fois émis.
func UpdateCoupon(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID coupon invalide"})
		return
	}

	var req struct {
		Discount *float64 `json:"discount"`
		Expire   *string  `json:"expire"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.Discount == nil && req.Expire == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Au moins un champ à modifier est requis"})
		return
	}

	set := bson.M{"updated_at": time.Now()}
	if req.Discount != nil {
		if *req.Discount <= 0 || *req.Discount > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "La remise doit être entre 0 et 100"})
			return
		}
		set["discount"] = *req.Discount
	}
	if req.Expire != nil {
		expire, err := time.Parse(time.RFC3339, *req.Expire)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date d'expiration invalide (RFC3339 attendu)"})
			return
		}
		set["expire"] = expire
	}

	opts := mongooptions.FindOneAndUpdate().SetReturnDocument(mongooptions.After)
	var updated models.Coupon
	err = database.Coupons().FindOneAndUpdate(c.Request.Context(),
		bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon introuvable"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// 🟢 DELETE /api/admin/coupons/:id
func DeleteCoupon(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID coupon invalide"})
		return
	}
	res, err := database.Coupons().DeleteOne(c.Request.Context(), bson.M{"_id": id})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur suppression coupon"})
		return
	}
	if res.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon introuvable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon supprimé"})
}
