package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const userIdKey = "userId"

// identify copies the authenticated user id from the header set by the
// authentication layer in front of this service into the request locals
func identify(header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := strings.TrimSpace(c.Get(header)); id != "" {
			c.Locals(userIdKey, id)
		}
		return c.Next()
	}
}

// userId returns the authenticated user id or "" for anonymous requests
func userId(c *fiber.Ctx) string {
	id, _ := c.Locals(userIdKey).(string)
	return id
}
