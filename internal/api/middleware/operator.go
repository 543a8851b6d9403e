package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Operator records who is acting on the control plane, taken from the token
// claims. Requests without claims (auth disabled) are attributed to
// "anonymous".
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := "anonymous"
		if v, ok := c.Get("claims"); ok {
			if claims, ok := v.(jwt.MapClaims); ok {
				if name, ok := claims["preferred_username"].(string); ok && name != "" {
					operator = name
				} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
					operator = sub
				}
			}
		}

		c.Set("operator", operator)
		c.Next()
	}
}
