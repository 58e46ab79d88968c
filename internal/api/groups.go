package api

import (
	"context"
	"errors"
	"time"

	"juntify/internal/group"
	"juntify/internal/middleware"
	"juntify/internal/ratelimit"
	"juntify/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"max=512"`
}

func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Group name is required and must be at most 128 characters")
	}

	g, err := h.groups.Create(c.UserContext(), group.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   middleware.UserID(c),
	})
	if err != nil {
		return h.internalError(c, "Failed to create group", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"group": g})
}

func (h *Handler) ListMyGroups(c *fiber.Ctx) error {
	memberships, err := h.groups.ListMine(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.internalError(c, "Failed to list groups", err)
	}
	return c.JSON(fiber.Map{"groups": memberships})
}

type joinGroupRequest struct {
	JoinCode string `json:"join_code" validate:"required,join_code"`
}

func (h *Handler) JoinGroup(c *fiber.Ctx) error {
	var req joinGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Join code must be 8 letters or digits")
	}

	userID := middleware.UserID(c)

	if err := h.limiter.CheckJoin(c.UserContext(), userID.String()); err != nil {
		if errors.Is(err, ratelimit.ErrTooManyAttempts) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many join attempts, try again later",
			})
		}
		return h.internalError(c, "Failed to check join rate limit", err)
	}

	g, err := h.groups.Join(c.UserContext(), req.JoinCode, userID)
	if err != nil {
		switch {
		case errors.Is(err, group.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No group with that join code",
			})
		case errors.Is(err, group.ErrAlreadyMember):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Already a member of this group",
			})
		}
		return h.internalError(c, "Failed to join group", err)
	}

	if err := h.limiter.Reset(c.UserContext(), "join", userID.String()); err != nil {
		h.logger.Warn("Failed to reset join rate limit", "user_id", userID, "error", err)
	}

	return c.JSON(fiber.Map{"group": g})
}

type verifyGroupRequest struct {
	Code string `json:"code" validate:"required,join_code"`
}

// VerifyGroupCode checks a join code without joining. It is unauthenticated
// so the join form can validate codes before sign-up.
func (h *Handler) VerifyGroupCode(c *fiber.Ctx) error {
	var req verifyGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Code must be 8 letters or digits")
	}

	g, err := h.groups.Verify(c.UserContext(), req.Code)
	if err != nil {
		if errors.Is(err, group.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No group with that join code",
			})
		}
		return h.internalError(c, "Failed to verify join code", err)
	}

	return c.JSON(fiber.Map{
		"group": fiber.Map{
			"id":   g.ID,
			"name": g.Name,
		},
	})
}

type groupMemberResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (h *Handler) ListGroupMembers(c *fiber.Ctx) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}

	members, err := h.groups.Members(c.UserContext(), groupID, middleware.UserID(c))
	if err != nil {
		if mapped := h.groupError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to list group members", err)
	}

	result := make([]groupMemberResponse, 0, len(members))
	for _, m := range members {
		entry := groupMemberResponse{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
		u, err := h.users.GetUser(c.UserContext(), m.UserID)
		if err == nil {
			entry.Username = u.Username
			entry.FullName = u.FullName
		} else if !errors.Is(err, user.ErrNotFound) {
			return h.internalError(c, "Failed to resolve member identity", err)
		}
		result = append(result, entry)
	}

	return c.JSON(fiber.Map{"members": result})
}

func (h *Handler) LeaveGroup(c *fiber.Ctx) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}

	if err := h.groups.Leave(c.UserContext(), groupID, middleware.UserID(c)); err != nil {
		if mapped := h.groupError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to leave group", err)
	}

	return c.JSON(fiber.Map{"status": "left"})
}

func (h *Handler) PromoteGroupMember(c *fiber.Ctx) error {
	return h.changeMemberRole(c, h.groups.Promote, "promoted")
}

func (h *Handler) DemoteGroupMember(c *fiber.Ctx) error {
	return h.changeMemberRole(c, h.groups.Demote, "demoted")
}

func (h *Handler) changeMemberRole(c *fiber.Ctx, change func(ctx context.Context, groupID, requesterID, targetID uuid.UUID) error, status string) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}
	targetID, err := pathUUID(c, "userID")
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	if err := change(c.UserContext(), groupID, middleware.UserID(c), targetID); err != nil {
		if mapped := h.groupError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to change member role", err)
	}

	return c.JSON(fiber.Map{"status": status})
}

func (h *Handler) RemoveGroupMember(c *fiber.Ctx) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}
	targetID, err := pathUUID(c, "userID")
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	if err := h.groups.RemoveMember(c.UserContext(), groupID, middleware.UserID(c), targetID); err != nil {
		if mapped := h.groupError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to remove group member", err)
	}

	return c.JSON(fiber.Map{"status": "removed"})
}

func (h *Handler) DeleteGroup(c *fiber.Ctx) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}

	if err := h.groups.Delete(c.UserContext(), groupID, middleware.UserID(c)); err != nil {
		if mapped := h.groupError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to delete group", err)
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

// groupError maps group manager sentinels onto HTTP responses. It returns nil
// for errors it does not recognize so the caller can log them as internal.
func (h *Handler) groupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, group.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Group not found",
		})
	case errors.Is(err, group.ErrNotMember):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You are not a member of this group",
		})
	case errors.Is(err, group.ErrNotAdmin):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Administrator role required",
		})
	case errors.Is(err, group.ErrMemberNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User is not a member of this group",
		})
	case errors.Is(err, group.ErrLastAdmin):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "The group must keep at least one administrator",
		})
	case errors.Is(err, group.ErrCannotRemoveSelf):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Use leave to remove yourself from a group",
		})
	}
	return nil
}
