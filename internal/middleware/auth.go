package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"viralclip-backend/internal/config"
	"viralclip-backend/internal/models"
)

// PrincipalKey is the gin context key the verified principal id is stored
// under, the generalization of the teacher's per-user Supabase auth into
// the core's principal-id-shaped auth boundary (§4.5).
const PrincipalKey = "principal_id"

// Auth verifies a bearer JWT the same way the teacher's AuthMiddleware
// checks a Supabase-issued token: HS256, signed with the shared secret, the
// principal id taken from the "sub" claim.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondUnauthorized(c, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			respondUnauthorized(c, "empty token")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			respondUnauthorized(c, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			respondUnauthorized(c, "invalid token claims")
			return
		}

		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			respondUnauthorized(c, "missing principal id in token")
			return
		}

		c.Set(PrincipalKey, sub)
		c.Next()
	}
}

// PrincipalFrom reads the principal id Auth stored in the request context.
func PrincipalFrom(c *gin.Context) string {
	v, _ := c.Get(PrincipalKey)
	id, _ := v.(string)
	return id
}

func respondUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorPayload{
		Kind:    "unauthorized",
		Message: message,
	}})
	c.Abort()
}
