package middleware

import (
	"strings"

	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// RequireIdentity verifies the bearer token and stores the caller. Requests
// without a valid token get a JSON 401.
func RequireIdentity(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" || verifier == nil {
			return apperror.Respond(c, apperror.AuthRequired())
		}
		uc, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			log.Debugf("[Auth] token rejected: %v", err)
			return apperror.Respond(c, apperror.AuthRequired())
		}
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}

// EnsureWallet provisions the wallet and profile of the caller on first use.
func EnsureWallet(wallets repository.WalletRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		if !uc.IsLoggedIn {
			return apperror.Respond(c, apperror.AuthRequired())
		}
		if _, _, err := wallets.GetOrCreate(c.UserContext(), uc.UserID, uc.Email); err != nil {
			return apperror.Respond(c, apperror.Internal("wallet_provision_failed", err))
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
