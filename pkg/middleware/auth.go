package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/polyphonica/booking/pkg/response"
)

// Roles carried in the role claim
const (
	RoleUser  = "user"
	RoleStaff = "staff"
)

const (
	contextKeyUserID = "user_id"
	contextKeyEmail  = "email"
	contextKeyRole   = "role"
)

// Claims are the bearer-token claims this service reads. Tokens are issued elsewhere.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsStaff reports whether the caller carries the staff role
func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff
}

// AuthConfig holds token validation settings
type AuthConfig struct {
	Secret string
	Issuer string
}

// ParseToken validates an HS256 token and returns its claims
func ParseToken(cfg AuthConfig, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return claims, nil
}

// SignToken mints a token with the same claims. Used by tests and local tooling.
func SignToken(cfg AuthConfig, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Auth requires a valid bearer token and stores the caller identity in the context
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "missing bearer token"))
			return
		}

		claims, err := ParseToken(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", "invalid token"))
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyEmail, claims.Email)
		c.Set(contextKeyRole, claims.Role)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a bearer token is sent and lets
// anonymous requests through. A bad token is still rejected.
func OptionalAuth(cfg AuthConfig) gin.HandlerFunc {
	required := Auth(cfg)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// RequireStaff rejects callers without the staff role. Must run after Auth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorBody("FORBIDDEN", "staff access required"))
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, if any
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(contextKeyUserID)
	return id, id != ""
}

// GetIdentity returns the authenticated caller; the zero value when anonymous
func GetIdentity(c *gin.Context) Identity {
	return Identity{
		UserID: c.GetString(contextKeyUserID),
		Email:  c.GetString(contextKeyEmail),
		Role:   c.GetString(contextKeyRole),
	}
}
