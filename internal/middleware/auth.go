package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"familink-service/internal/models"
)

const principalContextKey = "principal"

// Claims is the token payload issued by the identity service. The type
// field carries 'child' or 'user'; admins are users with the admin role.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
}

// TokenVerifier checks bearer tokens and resolves the closed Principal
// variant exactly once, at the boundary.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses the token and maps its claims to a Principal.
func (v *TokenVerifier) Verify(token string) (models.Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Principal{}, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return models.Principal{}, errors.New("invalid subject")
	}

	switch claims.Type {
	case "child":
		return models.Principal{Kind: models.PrincipalChild, ID: id}, nil
	case "user":
		if claims.Role == "admin" {
			return models.Principal{Kind: models.PrincipalAdmin, ID: id}, nil
		}
		return models.Principal{Kind: models.PrincipalParent, ID: id}, nil
	}
	return models.Principal{}, errors.New("unknown principal type")
}

// AuthMiddleware validates the Authorization header and stores the
// resolved principal on the request context.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalContextKey, principal)
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *gin.Context) (models.Principal, bool) {
	val, ok := c.Get(principalContextKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

// SetPrincipal places a principal on the context, used by tests.
func SetPrincipal(c *gin.Context, p models.Principal) {
	c.Set(principalContextKey, p)
}
