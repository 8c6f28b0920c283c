package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/pkg/utils"
)

const RoleAdmin = "admin"

const identityKey = "identity"

// Identity is the authenticated caller as resolved from the bearer token.
type Identity struct {
	MemberID int64
	Role     string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// SetIdentity stores the caller on the request. The string user_id and role
// locals stay available for the rate limiter and request logger.
func SetIdentity(c *fiber.Ctx, identity Identity) {
	c.Locals(identityKey, identity)
	c.Locals("user_id", strconv.FormatInt(identity.MemberID, 10))
	c.Locals("role", identity.Role)
}

// IdentityFrom returns the caller stored by AuthRequired.
func IdentityFrom(c *fiber.Ctx) (Identity, bool) {
	identity, ok := c.Locals(identityKey).(Identity)
	if !ok || identity.MemberID <= 0 {
		return Identity{}, false
	}
	return identity, true
}

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authHeader == "" {
			return unauthorized(c, "Missing authorization header")
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return unauthorized(c, "Invalid authorization header format")
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		memberID, err := strconv.ParseInt(claims.UserID, 10, 64)
		if err != nil || memberID <= 0 {
			return unauthorized(c, "Invalid token subject")
		}

		SetIdentity(c, Identity{MemberID: memberID, Role: claims.Role})
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return unauthorized(c, "Authentication required")
		}
		if !identity.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": message})
}
