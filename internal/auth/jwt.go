// Package auth issues and verifies the operator tokens used by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ContextKey is where the middleware stores the parsed token.
const ContextKey = "user"

const issuer = "joingate"

// ErrMissingOperator is returned when a request carries no usable operator id.
var ErrMissingOperator = errors.New("operator id missing from token")

// GenerateToken signs an HS256 token for operatorID valid for ttl.
func GenerateToken(operatorID int64, secret string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt ttl must be positive")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	subject := strconv.FormatInt(operatorID, 10)
	claims := jwt.MapClaims{
		"sub":         subject,
		"operator_id": subject,
		"iss":         issuer,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// JWTMiddleware validates Bearer tokens on every request the skipper does not exempt.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    ContextKey,
		Skipper:       skipper,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		},
	})
}

// OperatorIDFromContext reads the operator id from the validated token.
func OperatorIDFromContext(c echo.Context) (int64, error) {
	token, ok := c.Get(ContextKey).(*jwt.Token)
	if !ok || token == nil {
		return 0, ErrMissingOperator
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrMissingOperator
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return 0, ErrMissingOperator
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, ErrMissingOperator
	}
	return id, nil
}
