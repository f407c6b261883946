package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userRoleKey  contextKey = "user_role"
	studentIDKey contextKey = "student_id"
)

const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RolePharmacist   = "pharmacist"
	RoleLabAttendant = "lab_attendant"
	RoleStudent      = "student"
)

// Claims issued by the clinic identity service.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	StudentID int64  `json:"student_id,omitempty"`
}

type JWTConfig struct {
	Secret []byte
	Issuer string
}

// JWTMiddleware validates HS256 bearer tokens and puts the caller identity on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			}, opts...)
			if err != nil || !token.Valid || claims.Subject == "" || claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			studentID := claims.StudentID
			if studentID == 0 && claims.Role == RoleStudent {
				// Старые токены несут id студента только в sub
				studentID, _ = strconv.ParseInt(claims.Subject, 10, 64)
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, userRoleKey, claims.Role)
			ctx = context.WithValue(ctx, studentIDKey, studentID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRole checks the caller has one of roles. Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			has := RoleFromContext(c.Request().Context())
			if has == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if has == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// IssueToken signs a token for the given identity. Used by the dev CLI and tests.
func IssueToken(cfg JWTConfig, subject, role string, studentID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      role,
		StudentID: studentID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}

func StudentIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(studentIDKey).(int64)
	return id
}
