package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by the auth middleware
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// RoleAdmin may manage routes and read the admin audit trail
const RoleAdmin = "admin"

var (
	errMissingToken = errors.New("authorization is missing")
	errTokenFormat  = errors.New("invalid authorization format. Expected 'Bearer <token>'")
	errTokenClaims  = errors.New("invalid token claims")
	errNoRole       = errors.New("role not found in token")
	errBadSubject   = errors.New("token subject is not a user id")
)

// Identity is the authenticated caller taken from the JWT.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Auth verifies HMAC-signed JWTs issued by the identity provider.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// IssueToken signs a token for userID. Used by local tooling and tests; production tokens come from the identity provider.
func (a *Auth) IssueToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates tokenString and returns the caller it names.
func (a *Auth) ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, jwt.ErrTokenSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errTokenClaims
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, errNoRole
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, errBadSubject
	}
	return Identity{UserID: userID, Role: role}, nil
}

// tokenFrom reads the access_token cookie, falling back to the Authorization header.
func tokenFrom(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errTokenFormat
	}
	return parts[1], nil
}

// RequireRole validates the JWT and checks the caller's role against allowedRoles.
// With no roles given any authenticated caller passes.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFrom(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		id, err := a.ParseToken(tokenString)
		if errors.Is(err, errNoRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 {
			roleAllowed := false
			for _, role := range allowedRoles {
				if id.Role == role {
					roleAllowed = true
					break
				}
			}
			if !roleAllowed {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
				return
			}
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextUserRole, id.Role)
		c.Next()
	}
}

// CurrentUser returns the identity stored by RequireRole.
func CurrentUser(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return Identity{}, false
	}
	userID, ok := v.(uuid.UUID)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: userID, Role: c.GetString(ContextUserRole)}, true
}
