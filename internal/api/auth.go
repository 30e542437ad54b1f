package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

const actorKey = "actor"

type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID. Login lives elsewhere; this is
// for tools and tests.
func IssueToken(secret string, userID int64, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (h *Handler) parseToken(raw string) (authz.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return authz.Actor{}, database.NewError(database.ErrUnauthorized, "invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return authz.Actor{}, database.NewError(database.ErrUnauthorized, "invalid token subject")
	}

	switch claims.Role {
	case models.RoleCustomer, models.RoleSeller, models.RoleAdmin:
	default:
		return authz.Actor{}, database.NewError(database.ErrUnauthorized, "invalid token role")
	}

	return authz.Actor{UserID: userID, Role: claims.Role}, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller as the request's actor.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Header("WWW-Authenticate", `Bearer error="invalid_request"`)
			h.handleError(c, database.NewError(database.ErrUnauthorized, "missing bearer token"))
			return
		}

		actor, err := h.parseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			h.handleError(c, err)
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) authz.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(authz.Actor); ok {
			return actor
		}
	}
	return authz.Actor{}
}
