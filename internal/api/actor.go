package api

import (
	"net/http"
	"strconv"
	"strings"

	"stock-ledger/internal/models"

	"github.com/gin-gonic/gin"
)

// Headers set by the authenticating front end
const (
	HeaderUserID     = "X-User-ID"
	HeaderStoreID    = "X-Store-ID"
	HeaderUserRole   = "X-User-Role"
	HeaderCrossStore = "X-Cross-Store"

	actorKey = "actor"
)

// actorMiddleware builds the models.Actor of the request from the front end's
// headers. Requests without a valid user are rejected with 401.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"details": "missing or invalid " + HeaderUserID,
			})
			return
		}

		actor := models.Actor{UserID: userID, Role: models.RoleSeller}
		if raw := c.GetHeader(HeaderStoreID); raw != "" {
			storeID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || storeID <= 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthenticated",
					"details": "invalid " + HeaderStoreID,
				})
				return
			}
			actor.StoreID = storeID
		}
		if models.Role(strings.ToLower(c.GetHeader(HeaderUserRole))) == models.RoleAdmin {
			actor.Role = models.RoleAdmin
		}
		actor.CrossStore, _ = strconv.ParseBool(c.GetHeader(HeaderCrossStore))

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
