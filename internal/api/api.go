package api

import (
	"log/slog"
	"time"

	"juntify/internal/database"
	"juntify/internal/group"
	"juntify/internal/meeting"
	"juntify/internal/middleware"
	"juntify/internal/ratelimit"
	"juntify/internal/user"
	"juntify/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

type Handler struct {
	logger   *slog.Logger
	store    *session.Store
	validate *validator.Validator
	db       *database.Database
	users    *user.Manager
	groups   *group.Manager
	meetings *meeting.Manager
	limiter  *ratelimit.Limiter
	version  string
}

func NewHandler(
	logger *slog.Logger,
	store *session.Store,
	validate *validator.Validator,
	db *database.Database,
	users *user.Manager,
	groups *group.Manager,
	meetings *meeting.Manager,
	limiter *ratelimit.Limiter,
	version string,
) Handler {
	return Handler{
		logger:   logger,
		store:    store,
		validate: validate,
		db:       db,
		users:    users,
		groups:   groups,
		meetings: meetings,
		limiter:  limiter,
		version:  version,
	}
}

// RegisterRoutes mounts all endpoints. Everything under /api except the auth
// endpoints and join-code verification requires an authenticated caller.
func (h *Handler) RegisterRoutes(app *fiber.App, auth *middleware.Auth) {
	app.Get("/health", h.Health)

	api := app.Group("/api")

	api.Post("/auth/sign-up", h.SignUp)
	api.Post("/auth/login", h.Login)
	api.Post("/auth/logout", h.Logout)
	api.Post("/groups/verify", h.VerifyGroupCode)

	authed := api.Use(auth.RequireUser())

	authed.Get("/users/me", h.GetMe)
	authed.Put("/users/me", h.UpdateMe)

	authed.Post("/groups", h.CreateGroup)
	authed.Get("/groups/me", h.ListMyGroups)
	authed.Post("/groups/join", h.JoinGroup)
	authed.Get("/groups/:id/members", h.ListGroupMembers)
	authed.Get("/groups/:id/classes", h.ListGroupClasses)
	authed.Post("/groups/:id/leave", h.LeaveGroup)
	authed.Put("/groups/:id/members/:userID/promote", h.PromoteGroupMember)
	authed.Put("/groups/:id/members/:userID/demote", h.DemoteGroupMember)
	authed.Delete("/groups/:id/members/:userID", h.RemoveGroupMember)
	authed.Delete("/groups/:id", h.DeleteGroup)

	authed.Post("/meetings", h.CreateMeeting)
	authed.Get("/meetings", h.ListMyMeetings)
	authed.Get("/meetings/:id", h.GetMeeting)
	authed.Get("/meetings/:id/audio", h.GetMeetingAudio)
	authed.Put("/meetings/:id/audio", h.AttachMeetingAudio)
	authed.Post("/meetings/:id/segments", h.AppendSegments)
	authed.Post("/meetings/:id/key-points", h.AddKeyPoint)
}

// Health reports database connectivity.
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.db.Ping(c.UserContext()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   h.version,
	})
}

func (h *Handler) internalError(c *fiber.Ctx, msg string, err error) error {
	h.logger.ErrorContext(c.UserContext(), msg, "error", err, "path", c.Path())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// pathUUID parses a route parameter as a UUID.
func pathUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}
