package auth

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const ctxCallerClaims = "payledger_caller_claims"

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token and injects its claims into the context.
func RequireCaller(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Next()
	}
}

// CallerFromCtx returns the address authenticated by RequireCaller, or the
// zero address when the route is unauthenticated.
func CallerFromCtx(c *gin.Context) common.Address {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	if claims == nil {
		return common.Address{}
	}
	return claims.Caller()
}
