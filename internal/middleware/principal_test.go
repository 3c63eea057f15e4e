package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
	"github.com/congo-pay/tiered_ledger/internal/principal"
)

type staticLookup map[string]principal.Principal

func (s staticLookup) Principal(_ context.Context, id string) (principal.Principal, error) {
	p, ok := s[id]
	if !ok {
		return principal.Principal{}, apperr.NotFoundf("principal %s", id)
	}
	return p, nil
}

func TestActorResolvesPrincipal(t *testing.T) {
	lookup := staticLookup{
		"root": {ID: "root", Kind: principal.KindSuperAdmin},
		"u1":   {ID: "u1", Kind: principal.KindUser, ParentAdminID: "a1"},
	}
	app := fiber.New()
	app.Use(Actor(lookup))
	app.Get("/who", func(c *fiber.Ctx) error {
		return c.SendString(ActorID(c) + "/" + string(ActorKind(c)))
	})
	app.Get("/root-only", RequireKind(principal.KindSuperAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := []struct {
		path   string
		actor  string
		status int
	}{
		{"/who", "", fiber.StatusUnauthorized},
		{"/who", "ghost", fiber.StatusUnauthorized},
		{"/who", "u1", fiber.StatusOK},
		{"/root-only", "u1", fiber.StatusForbidden},
		{"/root-only", "root", fiber.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, tc.path, nil)
		if tc.actor != "" {
			req.Header.Set(PrincipalHeader, tc.actor)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s as %q: %v", tc.path, tc.actor, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s as %q: expected %d got %d", tc.path, tc.actor, tc.status, resp.StatusCode)
		}
	}
}
