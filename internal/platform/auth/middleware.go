package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const OperatorKey contextKey = "operator"

// Claims carries the operator identity issued to a scanning workstation.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// Operator returns the username when present, otherwise the subject.
func (c *Claims) Operator() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

type OperatorConfig struct {
	// SigningKey enables HS256 bearer validation. Without it every request
	// runs as DefaultOperator.
	SigningKey      []byte
	Issuer          string
	DefaultOperator string
	Skipper         func(c echo.Context) bool
}

// OperatorMiddleware resolves the operator who files records and stores it on
// the request context.
func OperatorMiddleware(cfg OperatorConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			operator := cfg.DefaultOperator
			if len(cfg.SigningKey) > 0 {
				authHeader := c.Request().Header.Get("Authorization")
				if authHeader == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
				}
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
				}

				claims := &Claims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
					return cfg.SigningKey, nil
				}, opts...)
				if err != nil || !token.Valid {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				if op := claims.Operator(); op != "" {
					operator = op
				}
			}

			c.Set(string(OperatorKey), operator)
			ctx := context.WithValue(c.Request().Context(), OperatorKey, operator)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(OperatorKey).(string)
	return op
}

// IssueToken signs an operator token with key. It backs the CLI's token
// command for workstation provisioning.
func IssueToken(key []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
