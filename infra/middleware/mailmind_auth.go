package middleware

import (
	"errors"
	"strings"

	"mailmind_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth verifies an HS256 bearer token signed with secret. The token's
// subject is stored in Locals("subject").
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return apperr.Unauthorized(err.Error())
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return apperr.InvalidToken("invalid or expired token")
		}

		c.Locals("subject", claims.Subject)
		c.Locals("claims", claims)
		return c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("authorization must be a bearer token")
	}
	return strings.TrimSpace(parts[1]), nil
}
