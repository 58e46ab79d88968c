package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"juntify/internal/meeting"
	"juntify/internal/middleware"
	"juntify/internal/storage"
	"juntify/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const audioURLExpiration = 15 * time.Minute

// CreateMeeting records a meeting from a multipart form. The audio part is
// optional; metadata travels in the other form fields.
func (h *Handler) CreateMeeting(c *fiber.Ctx) error {
	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return badRequest(c, "Title is required")
	}
	if len(title) > 256 {
		return badRequest(c, "Title must be at most 256 characters")
	}

	params := meeting.CreateParams{
		OwnerID: middleware.UserID(c),
		Title:   title,
		Summary: c.FormValue("summary"),
	}

	if raw := c.FormValue("group_id"); raw != "" {
		groupID, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid group id")
		}
		params.GroupID = util.Some(groupID)
	}

	if raw := c.FormValue("occurred_at"); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "occurred_at must be an RFC 3339 timestamp")
		}
		params.OccurredAt = occurredAt
	}

	if raw := c.FormValue("duration_seconds"); raw != "" {
		duration, err := strconv.Atoi(raw)
		if err != nil || duration < 0 {
			return badRequest(c, "duration_seconds must be a non-negative integer")
		}
		params.DurationSeconds = duration
	}

	if file, err := c.FormFile("audio"); err == nil {
		content, err := file.Open()
		if err != nil {
			return h.internalError(c, "Failed to open uploaded audio", err)
		}
		defer content.Close()

		params.Recording = &meeting.Recording{
			Filename:    file.Filename,
			ContentType: file.Header.Get("Content-Type"),
			Content:     content,
		}
	}

	m, err := h.meetings.Create(c.UserContext(), params)
	if err != nil {
		if errors.Is(err, meeting.ErrNotMember) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You are not a member of that group",
			})
		}
		return h.internalError(c, "Failed to create meeting", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"meeting": m})
}

func (h *Handler) ListMyMeetings(c *fiber.Ctx) error {
	meetings, err := h.meetings.ListMine(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.internalError(c, "Failed to list meetings", err)
	}
	return c.JSON(fiber.Map{"meetings": meetings})
}

// ListGroupClasses serves the shared recordings of a group, newest first.
func (h *Handler) ListGroupClasses(c *fiber.Ctx) error {
	groupID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid group id")
	}

	meetings, err := h.meetings.ListGroupClasses(c.UserContext(), groupID, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, meeting.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Group not found",
			})
		case errors.Is(err, meeting.ErrNotMember):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You are not a member of this group",
			})
		}
		return h.internalError(c, "Failed to list group classes", err)
	}

	return c.JSON(fiber.Map{"meetings": meetings})
}

func (h *Handler) GetMeeting(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid meeting id")
	}

	detail, err := h.meetings.Get(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to get meeting", err)
	}

	return c.JSON(fiber.Map{"meeting": detail})
}

// AttachMeetingAudio uploads the recording for an existing meeting. Clients
// that create the meeting up front and transcribe offline attach the audio
// here once it is ready.
func (h *Handler) AttachMeetingAudio(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid meeting id")
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return badRequest(c, "An audio file is required")
	}
	content, err := file.Open()
	if err != nil {
		return h.internalError(c, "Failed to open uploaded audio", err)
	}
	defer content.Close()

	m, err := h.meetings.AttachRecording(c.UserContext(), id, middleware.UserID(c), meeting.Recording{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to attach recording", err)
	}

	return c.JSON(fiber.Map{"meeting": m})
}

// GetMeetingAudio hands out a presigned download link when the backend can
// make one, and otherwise streams the recording bytes itself.
func (h *Handler) GetMeetingAudio(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid meeting id")
	}

	url, err := h.meetings.AudioURL(c.UserContext(), id, middleware.UserID(c), audioURLExpiration)
	if err != nil {
		if errors.Is(err, storage.ErrNoDirectURL) {
			return h.streamMeetingAudio(c, id)
		}
		if errors.Is(err, meeting.ErrNoRecording) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Meeting has no recording",
			})
		}
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to create recording URL", err)
	}

	return c.JSON(fiber.Map{"url": url})
}

func (h *Handler) streamMeetingAudio(c *fiber.Ctx, id uuid.UUID) error {
	rc, err := h.meetings.OpenRecording(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, meeting.ErrNoRecording) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Meeting has no recording",
			})
		}
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to open recording", err)
	}

	c.Set(fiber.HeaderContentType, "application/octet-stream")
	// fasthttp closes the stream after the response is written.
	return c.SendStream(rc)
}

type appendSegmentsRequest struct {
	Segments []segmentRequest `json:"segments" validate:"required,min=1,max=500,dive"`
}

type segmentRequest struct {
	Speaker      string  `json:"speaker" validate:"max=128"`
	Content      string  `json:"content" validate:"required"`
	StartSeconds float64 `json:"start_seconds" validate:"gte=0"`
	EndSeconds   float64 `json:"end_seconds" validate:"gte=0"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (h *Handler) AppendSegments(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid meeting id")
	}

	var req appendSegmentsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Segments must each have content, non-negative times and a confidence between 0 and 1")
	}

	params := make([]meeting.SegmentParams, 0, len(req.Segments))
	for _, s := range req.Segments {
		params = append(params, meeting.SegmentParams{
			Speaker:      s.Speaker,
			Content:      s.Content,
			StartSeconds: s.StartSeconds,
			EndSeconds:   s.EndSeconds,
			Confidence:   s.Confidence,
		})
	}

	segments, err := h.meetings.AppendSegments(c.UserContext(), id, middleware.UserID(c), params)
	if err != nil {
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to append segments", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"segments": segments})
}

type addKeyPointRequest struct {
	Content string `json:"content" validate:"required,max=1024"`
}

func (h *Handler) AddKeyPoint(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid meeting id")
	}

	var req addKeyPointRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Validate(req); err != nil {
		return badRequest(c, "Content is required and must be at most 1024 characters")
	}

	kp, err := h.meetings.AddKeyPoint(c.UserContext(), id, middleware.UserID(c), req.Content)
	if err != nil {
		if mapped := h.meetingError(c, err); mapped != nil {
			return mapped
		}
		return h.internalError(c, "Failed to add key point", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key_point": kp})
}

func (h *Handler) meetingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, meeting.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Meeting not found",
		})
	case errors.Is(err, meeting.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You may not access this meeting",
		})
	case errors.Is(err, meeting.ErrNotOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the meeting owner may modify it",
		})
	}
	return nil
}
