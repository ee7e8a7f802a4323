package middleware

import (
	"net/http"

	"voyago/internal/repository"

	"github.com/gin-gonic/gin"
)

// PiLinkRequired ensures the account has a linked Pi Network identity before
// it reaches payment approval routes. Use after AuthRequired.
func PiLinkRequired(userRepo *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		u, err := userRepo.GetByID(userID)
		if err != nil || !u.HasLinkedPi() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "pi account not linked"})
			return
		}
		c.Next()
	}
}
