package api

import (
	"errors"

	"juntify/internal/ratelimit"
	"juntify/internal/user"

	"github.com/gofiber/fiber/v2"
)

type signUpRequest struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=128"`
	Team     string `json:"team" validate:"max=64"`
}

func (h *Handler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	req.Username = user.NormalizeUsername(req.Username)
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Username must be 3-32 characters (letters, digits, . _ -) and password at least 8 characters")
	}

	u, err := h.users.Register(c.UserContext(), user.RegisterParams{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Team:     req.Team,
	})
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Username already taken",
			})
		}
		return h.internalError(c, "Failed to register user", err)
	}

	if err := h.startSession(c, u); err != nil {
		return h.internalError(c, "Failed to create session", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": u})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Username and password are required")
	}

	username := user.NormalizeUsername(req.Username)

	if err := h.limiter.CheckLogin(c.UserContext(), username); err != nil {
		if errors.Is(err, ratelimit.ErrTooManyAttempts) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many login attempts, try again later",
			})
		}
		return h.internalError(c, "Failed to check login rate limit", err)
	}

	u, err := h.users.Authenticate(c.UserContext(), username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid username or password",
			})
		}
		return h.internalError(c, "Failed to authenticate user", err)
	}

	if err := h.limiter.Reset(c.UserContext(), "login", username); err != nil {
		h.logger.Warn("Failed to reset login rate limit", "username", username, "error", err)
	}

	if err := h.startSession(c, u); err != nil {
		return h.internalError(c, "Failed to create session", err)
	}

	h.logger.InfoContext(c.UserContext(), "User logged in", "username", username, "user_id", u.ID, "ip", c.IP())
	return c.JSON(fiber.Map{"user": u})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return h.internalError(c, "Failed to get session", err)
	}

	if err := sess.Destroy(); err != nil {
		return h.internalError(c, "Failed to destroy session", err)
	}

	return c.JSON(fiber.Map{"status": "logged out"})
}

// startSession rotates the session id and binds it to the user.
func (h *Handler) startSession(c *fiber.Ctx, u user.User) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set("user_id", u.ID.String())
	return sess.Save()
}
