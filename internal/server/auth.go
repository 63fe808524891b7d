package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

// Claims are issued by the session subsystem; Subject is the user ID
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller's identity. With a secret configured it
// requires an HS256 bearer token; without one it trusts the X-User-ID and
// X-User-Roles headers, which is only meant for local development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware stores the user ID and roles in the gin context or aborts with 401
func (a *Authenticator) Middleware(c *gin.Context) {
	userID, roles, err := a.identify(c.Request)
	if err != nil {
		utils.JSONError(c, http.StatusUnauthorized, err, "unauthenticated")
		c.Abort()
		utils.Warn("Authenticator: rejected request", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
		return
	}

	c.Set(helpers.ContextUserID, userID)
	c.Set(helpers.ContextRoles, roles)
	c.Next()
}

func (a *Authenticator) identify(r *http.Request) (string, []string, error) {
	if len(a.secret) == 0 {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return "", nil, errors.New("missing X-User-ID header")
		}
		return userID, splitRoles(r.Header.Get("X-User-Roles")), nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", nil, errors.New("missing bearer token")
	}
	claims, err := a.parse(strings.TrimSpace(raw))
	if err != nil {
		return "", nil, err
	}
	return claims.Subject, claims.Roles, nil
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func splitRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// RequireRole aborts with 403 unless the authenticated user holds role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !helpers.HasRole(c, role) {
			utils.JSONError(c, http.StatusForbidden, fmt.Errorf("role %q required", role), "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}
