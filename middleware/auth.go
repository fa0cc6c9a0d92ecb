package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	UserKey   = "userID"
	DonorRole = "donor"
)

// AuthMiddleware identifies the donor. The API gateway forwards X-User-ID
// (and optionally X-User-Role); direct callers may present a Bearer token
// signed with jwtSecret. Only the donor role may use donation routes.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, err := identify(c, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if role != "" && role != DonorRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Only donors can make donations"})
			return
		}
		c.Set(UserKey, userID)
		c.Next()
	}
}

func identify(c *gin.Context, jwtSecret []byte) (uuid.UUID, string, error) {
	if header := c.GetHeader("X-User-ID"); header != "" {
		id, err := uuid.Parse(header)
		return id, strings.ToLower(c.GetHeader("X-User-Role")), err
	}

	bearer := c.GetHeader("Authorization")
	if !strings.HasPrefix(bearer, "Bearer ") {
		return uuid.Nil, "", fmt.Errorf("missing credentials")
	}
	claims, err := parseToken(strings.TrimPrefix(bearer, "Bearer "), jwtSecret)
	if err != nil {
		return uuid.Nil, "", err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid subject: %w", err)
	}
	role, _ := claims["role"].(string)
	return id, strings.ToLower(role), nil
}

func parseToken(tokenStr string, secret []byte) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GetUserID returns the donor id set by AuthMiddleware.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	if val, exists := c.Get(UserKey); exists {
		id, ok := val.(uuid.UUID)
		return id, ok
	}
	return uuid.Nil, false
}
