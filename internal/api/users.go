package api

import (
	"errors"

	"juntify/internal/middleware"
	"juntify/internal/user"
	"juntify/internal/util"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetMe(c *fiber.Ctx) error {
	u, err := h.users.GetUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return h.internalError(c, "Failed to get user", err)
	}
	return c.JSON(fiber.Map{"user": u})
}

type updateMeRequest struct {
	FullName util.Optional[string] `json:"full_name"`
	Team     util.Optional[string] `json:"team"`
}

// UpdateMe applies a partial profile update. Absent fields are left alone.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.FullName.IsSet && len(req.FullName.Val) > 128 {
		return badRequest(c, "Full name must be at most 128 characters")
	}
	if req.Team.IsSet && len(req.Team.Val) > 64 {
		return badRequest(c, "Team must be at most 64 characters")
	}

	u, err := h.users.UpdateProfile(c.UserContext(), middleware.UserID(c), user.UpdateProfileParams{
		FullName: req.FullName,
		Team:     req.Team,
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return h.internalError(c, "Failed to update profile", err)
	}
	return c.JSON(fiber.Map{"user": u})
}
