package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const subjectKey = "subject"

// Claims are the token claims accepted on state-changing routes
type Claims struct {
	// Address is the caller's chain account, informational only
	Address string `json:"address,omitempty"`
	jwt.RegisteredClaims
}

// Auth requires an HS256 bearer token signed with secret.
// An empty secret disables the check; local setups run without tokens.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "Authorization header is required")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			unauthorized(c, "Invalid authorization header format. Expected: Bearer <token>")
			return
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				unauthorized(c, "Token expired")
				return
			}
			unauthorized(c, fmt.Sprintf("Invalid token: %v", err))
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

// GetSubject returns the authenticated token subject
func GetSubject(c *gin.Context) (string, bool) {
	subject, ok := c.Get(subjectKey)
	if !ok {
		return "", false
	}
	s, ok := subject.(string)
	return s, ok
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
}
