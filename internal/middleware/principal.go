package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

// PrincipalHeader carries the acting principal id. Authentication happens at
// the gateway in front of this service.
const PrincipalHeader = "X-Principal-ID"

const (
	actorIDKey   = "principal_id"
	actorKindKey = "principal_kind"
)

// PrincipalLookup resolves a principal id to its registered tier.
type PrincipalLookup interface {
	Principal(ctx context.Context, id string) (principal.Principal, error)
}

// Actor resolves the caller from PrincipalHeader and stores it in the request
// locals. Unknown principals are rejected.
func Actor(lookup PrincipalLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(PrincipalHeader))
		if id == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+PrincipalHeader+" header")
		}
		p, err := lookup.Principal(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fiber.NewError(http.StatusUnauthorized, "unknown principal")
			}
			return fiber.NewError(http.StatusInternalServerError, "principal lookup failed")
		}
		c.Locals(actorIDKey, p.ID)
		c.Locals(actorKindKey, string(p.Kind))
		return c.Next()
	}
}

// ActorID returns the caller id stored by Actor.
func ActorID(c *fiber.Ctx) string {
	id, _ := c.Locals(actorIDKey).(string)
	return id
}

// ActorKind returns the caller tier stored by Actor.
func ActorKind(c *fiber.Ctx) principal.Kind {
	kind, _ := c.Locals(actorKindKey).(string)
	return principal.Kind(kind)
}

// RequireKind rejects callers outside kinds.
func RequireKind(kinds ...principal.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorKind(c)
		for _, k := range kinds {
			if actor == k {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "operation not permitted for "+string(actor))
	}
}
