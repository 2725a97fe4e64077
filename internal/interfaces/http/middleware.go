package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/service"
)

const actorContextKey = "actor"

// actorMiddleware extracts the caller identity from the gateway-injected
// headers. The upstream gateway authenticates and sets these; a request
// without them never came through the gateway and is rejected.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		employeeID := c.GetHeader("X-Employee-ID")
		role := models.Role(c.GetHeader("X-Role"))

		if employeeID == "" || !role.IsValid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid identity headers",
			})
			return
		}

		c.Set(actorContextKey, service.Actor{
			EmployeeID: employeeID,
			Role:       role,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	actor, _ := c.MustGet(actorContextKey).(service.Actor)
	return actor
}
