package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"juntify/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

const (
	// sessionUserKey is the session entry holding the authenticated user id.
	sessionUserKey = "user_id"

	// localsUserKey is where the middleware stores the resolved user id for
	// handlers. Read it back with UserID.
	localsUserKey = "user_id"

	// legacyUsernameHeader identifies the caller by bare username. Older
	// clients still send it; the cookie session wins when both are present.
	legacyUsernameHeader = "X-Username"
)

type Auth struct {
	logger *slog.Logger
	store  *session.Store
	users  *user.Manager
}

func NewAuth(logger *slog.Logger, store *session.Store, users *user.Manager) Auth {
	return Auth{logger: logger, store: store, users: users}
}

// RequireUser resolves the caller's identity and stores it in the request
// locals. The session cookie is the canonical scheme; the legacy username
// header is accepted as a fallback so existing clients keep working.
func (a *Auth) RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := a.fromSession(c); ok {
			c.Locals(localsUserKey, id)
			return c.Next()
		}

		if id, ok := a.fromHeader(c); ok {
			c.Locals(localsUserKey, id)
			return c.Next()
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
}

func (a *Auth) fromSession(c *fiber.Ctx) (uuid.UUID, bool) {
	sess, err := a.store.Get(c)
	if err != nil {
		a.logger.Warn("Failed to load session", "error", err)
		return uuid.Nil, false
	}

	raw, ok := sess.Get(sessionUserKey).(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		a.logger.Warn("Session holds an invalid user id", "error", err)
		return uuid.Nil, false
	}
	return id, true
}

func (a *Auth) fromHeader(c *fiber.Ctx) (uuid.UUID, bool) {
	username := strings.TrimSpace(c.Get(legacyUsernameHeader))
	if username == "" {
		return uuid.Nil, false
	}

	u, err := a.users.Lookup(c.UserContext(), username)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			a.logger.Error("Failed to resolve username header", "error", err)
		}
		return uuid.Nil, false
	}
	return u.ID, true
}

// UserID returns the authenticated user id set by RequireUser. It panics when
// called on a route that does not run the middleware.
func UserID(c *fiber.Ctx) uuid.UUID {
	return c.Locals(localsUserKey).(uuid.UUID)
}
