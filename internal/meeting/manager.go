package meeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"juntify/internal/database"
	"juntify/internal/storage"
	"juntify/internal/util"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("meeting not found")
	ErrForbidden   = errors.New("requester may not access this meeting")
	ErrNotOwner    = errors.New("only the meeting owner may modify it")
	ErrNotMember   = errors.New("requester is not a member of the group")
	ErrNoRecording = errors.New("meeting has no audio recording")
)

// Store is the slice of the database layer the meeting manager needs.
// *database.Database satisfies it.
type Store interface {
	CreateMeeting(ctx context.Context, params database.CreateMeetingParams) (database.Meeting, error)
	GetMeetingByID(ctx context.Context, id uuid.UUID) (database.Meeting, error)
	SetMeetingAudioKey(ctx context.Context, meetingID uuid.UUID, audioKey string) error
	ListMeetingsByOwner(ctx context.Context, ownerID uuid.UUID) ([]database.MeetingWithCounts, error)
	ListMeetingsByGroup(ctx context.Context, groupID uuid.UUID) ([]database.MeetingWithCounts, error)
	AddTranscriptSegments(ctx context.Context, meetingID uuid.UUID, params []database.AddTranscriptSegmentParams) ([]database.TranscriptSegment, error)
	ListTranscriptSegments(ctx context.Context, meetingID uuid.UUID) ([]database.TranscriptSegment, error)
	AddKeyPoint(ctx context.Context, meetingID uuid.UUID, content string) (database.KeyPoint, error)
	ListKeyPoints(ctx context.Context, meetingID uuid.UUID) ([]database.KeyPoint, error)
	GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (database.GroupMember, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (database.Group, error)
}

type Manager struct {
	logger *slog.Logger
	db     Store
	files  storage.Storage
}

func NewManager(logger *slog.Logger, db Store, files storage.Storage) Manager {
	return Manager{logger: logger, db: db, files: files}
}

type Meeting struct {
	ID              uuid.UUID                `json:"id"`
	OwnerID         uuid.UUID                `json:"owner_id"`
	GroupID         util.Optional[uuid.UUID] `json:"group_id"`
	Title           string                   `json:"title"`
	Summary         string                   `json:"summary"`
	OccurredAt      time.Time                `json:"occurred_at"`
	DurationSeconds int                      `json:"duration_seconds"`
	HasRecording    bool                     `json:"has_recording"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// Overview is a meeting with its derived counts for listings. Participants
// is the distinct non-empty speaker count of the transcript.
type Overview struct {
	Meeting
	SegmentCount  int `json:"segment_count"`
	Participants  int `json:"participants"`
	KeyPointCount int `json:"key_point_count"`
}

type Segment struct {
	ID           int64     `json:"id"`
	Speaker      string    `json:"speaker"`
	Content      string    `json:"content"`
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

type KeyPoint struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is a meeting with its full transcript and key points.
type Detail struct {
	Meeting
	Segments  []Segment  `json:"segments"`
	KeyPoints []KeyPoint `json:"key_points"`
}

type Recording struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type CreateParams struct {
	OwnerID         uuid.UUID
	GroupID         util.Optional[uuid.UUID]
	Title           string
	Summary         string
	OccurredAt      time.Time
	DurationSeconds int
	Recording       *Recording
}

// Create records a meeting; when a group is given the owner must be a member
// of it. A recording, when present, is stored before the row is inserted so
// a failed upload never leaves a meeting pointing at nothing.
func (m *Manager) Create(ctx context.Context, params CreateParams) (Meeting, error) {
	if params.GroupID.IsSet {
		if _, err := m.db.GetGroupByID(ctx, params.GroupID.Val); err != nil {
			if errors.Is(err, database.ErrGroupNotFound) {
				return Meeting{}, ErrNotMember
			}
			return Meeting{}, fmt.Errorf("failed to get group %s: %w", params.GroupID.Val, err)
		}
		if _, err := m.db.GetGroupMember(ctx, params.GroupID.Val, params.OwnerID); err != nil {
			if errors.Is(err, database.ErrGroupMemberNotFound) {
				return Meeting{}, ErrNotMember
			}
			return Meeting{}, fmt.Errorf("failed to check group membership: %w", err)
		}
	}

	audioKey := util.None[string]()
	if params.Recording != nil {
		key, err := m.files.Store(ctx, params.OwnerID, params.Recording.Filename, params.Recording.Content, params.Recording.ContentType)
		if err != nil {
			return Meeting{}, fmt.Errorf("failed to store recording: %w", err)
		}
		audioKey = util.Some(key)
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	dbMeeting, err := m.db.CreateMeeting(ctx, database.CreateMeetingParams{
		OwnerID:         params.OwnerID,
		GroupID:         params.GroupID,
		Title:           params.Title,
		Summary:         params.Summary,
		OccurredAt:      occurredAt,
		DurationSeconds: params.DurationSeconds,
		AudioKey:        audioKey,
	})
	if err != nil {
		if audioKey.IsSet {
			if derr := m.files.Delete(ctx, audioKey.Val); derr != nil {
				m.logger.Warn("Failed to clean up recording after insert failure", "key", audioKey.Val, "error", derr)
			}
		}
		return Meeting{}, fmt.Errorf("failed to create meeting: %w", err)
	}

	m.logger.Info("Meeting created", "meeting_id", dbMeeting.ID, "owner_id", dbMeeting.OwnerID, "has_recording", audioKey.IsSet)
	return fromDB(dbMeeting), nil
}

// ListMine returns the caller's meetings, newest first, with counts.
func (m *Manager) ListMine(ctx context.Context, ownerID uuid.UUID) ([]Overview, error) {
	dbMeetings, err := m.db.ListMeetingsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings for user %s: %w", ownerID, err)
	}
	return overviews(dbMeetings), nil
}

// ListGroupClasses returns the meetings shared with a group, newest first.
// The requester must be a member of the group.
func (m *Manager) ListGroupClasses(ctx context.Context, groupID, requesterID uuid.UUID) ([]Overview, error) {
	if _, err := m.db.GetGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	if _, err := m.db.GetGroupMember(ctx, groupID, requesterID); err != nil {
		if errors.Is(err, database.ErrGroupMemberNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to check group membership: %w", err)
	}

	dbMeetings, err := m.db.ListMeetingsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings for group %s: %w", groupID, err)
	}
	return overviews(dbMeetings), nil
}

// Get returns the meeting with its transcript. Visible to the owner and to
// members of the meeting's group.
func (m *Manager) Get(ctx context.Context, id, requesterID uuid.UUID) (Detail, error) {
	dbMeeting, err := m.authorize(ctx, id, requesterID)
	if err != nil {
		return Detail{}, err
	}

	segments, err := m.db.ListTranscriptSegments(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("failed to list transcript segments: %w", err)
	}
	keyPoints, err := m.db.ListKeyPoints(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("failed to list key points: %w", err)
	}

	detail := Detail{
		Meeting:   fromDB(dbMeeting),
		Segments:  make([]Segment, 0, len(segments)),
		KeyPoints: make([]KeyPoint, 0, len(keyPoints)),
	}
	for _, s := range segments {
		detail.Segments = append(detail.Segments, Segment{
			ID:           s.ID,
			Speaker:      s.Speaker,
			Content:      s.Content,
			StartSeconds: s.StartSeconds,
			EndSeconds:   s.EndSeconds,
			Confidence:   s.Confidence,
			CreatedAt:    s.CreatedAt,
		})
	}
	for _, kp := range keyPoints {
		detail.KeyPoints = append(detail.KeyPoints, KeyPoint{
			ID:        kp.ID,
			Content:   kp.Content,
			CreatedAt: kp.CreatedAt,
		})
	}
	return detail, nil
}

// AttachRecording uploads audio for an existing meeting, replacing any
// earlier recording. Owner only; clients that create the meeting first and
// upload once the recording is ready use this.
func (m *Manager) AttachRecording(ctx context.Context, id, requesterID uuid.UUID, rec Recording) (Meeting, error) {
	dbMeeting, err := m.get(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if dbMeeting.OwnerID != requesterID {
		return Meeting{}, ErrNotOwner
	}

	key, err := m.files.Store(ctx, dbMeeting.OwnerID, rec.Filename, rec.Content, rec.ContentType)
	if err != nil {
		return Meeting{}, fmt.Errorf("failed to store recording: %w", err)
	}

	if err := m.db.SetMeetingAudioKey(ctx, id, key); err != nil {
		if derr := m.files.Delete(ctx, key); derr != nil {
			m.logger.Warn("Failed to clean up recording after update failure", "key", key, "error", derr)
		}
		if errors.Is(err, database.ErrMeetingNotFound) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, fmt.Errorf("failed to set audio key for meeting %s: %w", id, err)
	}

	if dbMeeting.AudioKey.IsSet {
		if derr := m.files.Delete(ctx, dbMeeting.AudioKey.Val); derr != nil {
			m.logger.Warn("Failed to delete replaced recording", "key", dbMeeting.AudioKey.Val, "error", derr)
		}
	}

	m.logger.Info("Recording attached", "meeting_id", id, "key", key)
	dbMeeting.AudioKey = util.Some(key)
	return fromDB(dbMeeting), nil
}

// OpenRecording opens the recording for streaming. Same visibility as Get.
// The caller closes the reader.
func (m *Manager) OpenRecording(ctx context.Context, id, requesterID uuid.UUID) (io.ReadCloser, error) {
	dbMeeting, err := m.authorize(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	if !dbMeeting.AudioKey.IsSet {
		return nil, ErrNoRecording
	}

	rc, err := m.files.Retrieve(ctx, dbMeeting.AudioKey.Val)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNoRecording
		}
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	return rc, nil
}

// AudioURL returns a time-limited download link for the recording.
func (m *Manager) AudioURL(ctx context.Context, id, requesterID uuid.UUID, expiration time.Duration) (string, error) {
	dbMeeting, err := m.authorize(ctx, id, requesterID)
	if err != nil {
		return "", err
	}

	if !dbMeeting.AudioKey.IsSet {
		return "", ErrNoRecording
	}

	url, err := m.files.GetURL(ctx, dbMeeting.AudioKey.Val, expiration)
	if err != nil {
		return "", fmt.Errorf("failed to create recording URL: %w", err)
	}
	return url, nil
}

type SegmentParams struct {
	Speaker      string
	Content      string
	StartSeconds float64
	EndSeconds   float64
	Confidence   float64
}

// AppendSegments appends transcript segments in order. Only the owner (the
// transcription pipeline acts as the owner) may append.
func (m *Manager) AppendSegments(ctx context.Context, id, requesterID uuid.UUID, params []SegmentParams) ([]Segment, error) {
	dbMeeting, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dbMeeting.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	dbParams := make([]database.AddTranscriptSegmentParams, 0, len(params))
	for _, p := range params {
		dbParams = append(dbParams, database.AddTranscriptSegmentParams{
			Speaker:      p.Speaker,
			Content:      p.Content,
			StartSeconds: p.StartSeconds,
			EndSeconds:   p.EndSeconds,
			Confidence:   p.Confidence,
		})
	}

	inserted, err := m.db.AddTranscriptSegments(ctx, id, dbParams)
	if err != nil {
		return nil, fmt.Errorf("failed to append transcript segments: %w", err)
	}

	segments := make([]Segment, 0, len(inserted))
	for _, s := range inserted {
		segments = append(segments, Segment{
			ID:           s.ID,
			Speaker:      s.Speaker,
			Content:      s.Content,
			StartSeconds: s.StartSeconds,
			EndSeconds:   s.EndSeconds,
			Confidence:   s.Confidence,
			CreatedAt:    s.CreatedAt,
		})
	}

	m.logger.Info("Transcript segments appended", "meeting_id", id, "count", len(segments))
	return segments, nil
}

// AddKeyPoint records a key point on the meeting. Owner only.
func (m *Manager) AddKeyPoint(ctx context.Context, id, requesterID uuid.UUID, content string) (KeyPoint, error) {
	dbMeeting, err := m.get(ctx, id)
	if err != nil {
		return KeyPoint{}, err
	}
	if dbMeeting.OwnerID != requesterID {
		return KeyPoint{}, ErrNotOwner
	}

	kp, err := m.db.AddKeyPoint(ctx, id, content)
	if err != nil {
		return KeyPoint{}, fmt.Errorf("failed to add key point: %w", err)
	}
	return KeyPoint{ID: kp.ID, Content: kp.Content, CreatedAt: kp.CreatedAt}, nil
}

func (m *Manager) get(ctx context.Context, id uuid.UUID) (database.Meeting, error) {
	dbMeeting, err := m.db.GetMeetingByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrMeetingNotFound) {
			return dbMeeting, ErrNotFound
		}
		return dbMeeting, fmt.Errorf("failed to get meeting %s: %w", id, err)
	}
	return dbMeeting, nil
}

// authorize loads the meeting and checks read access: the owner always, and
// any member of the meeting's group when one is set.
func (m *Manager) authorize(ctx context.Context, id, requesterID uuid.UUID) (database.Meeting, error) {
	dbMeeting, err := m.get(ctx, id)
	if err != nil {
		return dbMeeting, err
	}

	if dbMeeting.OwnerID == requesterID {
		return dbMeeting, nil
	}

	if dbMeeting.GroupID.IsSet {
		if _, err := m.db.GetGroupMember(ctx, dbMeeting.GroupID.Val, requesterID); err == nil {
			return dbMeeting, nil
		} else if !errors.Is(err, database.ErrGroupMemberNotFound) {
			return dbMeeting, fmt.Errorf("failed to check group membership: %w", err)
		}
	}

	return dbMeeting, ErrForbidden
}

func overviews(dbMeetings []database.MeetingWithCounts) []Overview {
	result := make([]Overview, 0, len(dbMeetings))
	for _, m := range dbMeetings {
		result = append(result, Overview{
			Meeting:       fromDB(m.Meeting),
			SegmentCount:  m.SegmentCount,
			Participants:  m.SpeakerCount,
			KeyPointCount: m.KeyPointCount,
		})
	}
	return result
}

func fromDB(m database.Meeting) Meeting {
	return Meeting{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		GroupID:         m.GroupID,
		Title:           m.Title,
		Summary:         m.Summary,
		OccurredAt:      m.OccurredAt,
		DurationSeconds: m.DurationSeconds,
		HasRecording:    m.AudioKey.IsSet,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
