package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tiered_ledger/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int64, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(actorIDKey, c.Get(PrincipalHeader))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logger))
	var calls int64
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt64(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Post("/fails", func(c *fiber.Ctx) error {
		atomic.AddInt64(&calls, 1)
		return fiber.NewError(fiber.StatusUnprocessableEntity, "insufficient funds")
	})
	app.Post("/writes-error", func(c *fiber.Ctx) error {
		atomic.AddInt64(&calls, 1)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient funds"})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, actor, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(PrincipalHeader, actor)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(replayedHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	status, _, _ := post(t, app, "/resource", "u1", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload, _ := post(t, app, "/resource", "u1", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	status, cachedPayload, replayed := post(t, app, "/resource", "u1", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if replayed != "true" {
		t.Fatalf("expected replay marker")
	}
	if got := atomic.LoadInt64(calls); got != 1 {
		t.Fatalf("handler ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysArePerPrincipal(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "u1", "same")
	_, _, replayed := post(t, app, "/resource", "u2", "same")
	if replayed != "" {
		t.Fatalf("another principal must not see a replay")
	}
	if got := atomic.LoadInt64(calls); got != 2 {
		t.Fatalf("expected 2 handler runs, got %d", got)
	}
}

func TestIdempotencyRejectsKeyReuseOnAnotherRoute(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "u1", "k1")
	status, _, _ := post(t, app, "/other", "u1", "k1")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	first, _, _ := post(t, app, "/fails", "u1", "retry-me")
	second, _, replayed := post(t, app, "/fails", "u1", "retry-me")
	if first != fiber.StatusUnprocessableEntity || second != fiber.StatusUnprocessableEntity {
		t.Fatalf("unexpected statuses %d %d", first, second)
	}
	if replayed != "" {
		t.Fatalf("failed responses must not be replayed")
	}
	if got := atomic.LoadInt64(calls); got != 2 {
		t.Fatalf("expected the failed request to run again, got %d runs", got)
	}
}

func TestIdempotencyReleasesKeyOnWrittenErrorResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	first, _, _ := post(t, app, "/writes-error", "u1", "top-up-then-retry")
	second, _, replayed := post(t, app, "/writes-error", "u1", "top-up-then-retry")
	if first != fiber.StatusUnprocessableEntity || second != fiber.StatusUnprocessableEntity {
		t.Fatalf("unexpected statuses %d %d", first, second)
	}
	if replayed != "" {
		t.Fatalf("a 4xx body written by the handler must not be replayed")
	}
	if got := atomic.LoadInt64(calls); got != 2 {
		t.Fatalf("expected the handler to run again, got %d runs", got)
	}
}
