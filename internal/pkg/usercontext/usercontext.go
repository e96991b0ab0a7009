package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the verified caller of a request
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// SetUserContext stores the caller on the fiber context
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	uc.IsLoggedIn = uc.UserID != ""
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyEmail, uc.Email)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if the current caller carries a verified identity
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or empty string if anonymous
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetEmail returns the verified email claim, if any
func GetEmail(c *fiber.Ctx) string {
	return GetUserContext(c).Email
}
