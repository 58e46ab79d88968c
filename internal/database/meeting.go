package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"juntify/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Meeting struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	GroupID         util.Optional[uuid.UUID]
	Title           string
	Summary         string
	OccurredAt      time.Time
	DurationSeconds int
	AudioKey        util.Optional[string]
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MeetingWithCounts carries the aggregate counts derived from transcript
// segments and key points. Participants is the number of distinct non-empty
// speaker labels; it is computed, never stored.
type MeetingWithCounts struct {
	Meeting
	SegmentCount  int
	SpeakerCount  int
	KeyPointCount int
}

type TranscriptSegment struct {
	ID           int64
	MeetingID    uuid.UUID
	Speaker      string
	Content      string
	StartSeconds float64
	EndSeconds   float64
	Confidence   float64
	CreatedAt    time.Time
}

type KeyPoint struct {
	ID        uuid.UUID
	MeetingID uuid.UUID
	Content   string
	CreatedAt time.Time
}

type CreateMeetingParams struct {
	OwnerID         uuid.UUID
	GroupID         util.Optional[uuid.UUID]
	Title           string
	Summary         string
	OccurredAt      time.Time
	DurationSeconds int
	AudioKey        util.Optional[string]
}

func (db *Database) CreateMeeting(ctx context.Context, params CreateMeetingParams) (Meeting, error) {
	now := time.Now().UTC()
	meeting := Meeting{
		ID:              uuid.New(),
		OwnerID:         params.OwnerID,
		GroupID:         params.GroupID,
		Title:           params.Title,
		Summary:         params.Summary,
		OccurredAt:      params.OccurredAt,
		DurationSeconds: params.DurationSeconds,
		AudioKey:        params.AudioKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_meeting (id, owner_id, group_id, title, summary, occurred_at, duration_seconds, audio_key, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		meeting.ID, meeting.OwnerID, meeting.GroupID, meeting.Title, meeting.Summary, meeting.OccurredAt, meeting.DurationSeconds, meeting.AudioKey, meeting.CreatedAt, meeting.UpdatedAt); err != nil {
		return meeting, fmt.Errorf("database: failed to insert meeting (title=%s): %w", meeting.Title, err)
	}
	return meeting, nil
}

func (db *Database) GetMeetingByID(ctx context.Context, id uuid.UUID) (Meeting, error) {
	var m Meeting
	err := db.Pool.QueryRow(ctx, `SELECT id, owner_id, group_id, title, summary, occurred_at, duration_seconds, audio_key, created_at, updated_at FROM tbl_meeting WHERE id = $1`, id).Scan(
		&m.ID, &m.OwnerID, &m.GroupID, &m.Title, &m.Summary, &m.OccurredAt, &m.DurationSeconds, &m.AudioKey, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, ErrMeetingNotFound
		}
		return m, fmt.Errorf("database: failed to scan meeting: %w", err)
	}
	return m, nil
}

// meetingCountsQuery computes all derived counts in the listing query itself
// instead of issuing one extra round-trip per meeting.
const meetingCountsQuery = `
	SELECT m.id, m.owner_id, m.group_id, m.title, m.summary, m.occurred_at, m.duration_seconds, m.audio_key, m.created_at, m.updated_at,
		(SELECT COUNT(*) FROM tbl_transcript_segment s WHERE s.meeting_id = m.id) AS segment_count,
		(SELECT COUNT(DISTINCT s.speaker) FROM tbl_transcript_segment s WHERE s.meeting_id = m.id AND s.speaker <> '') AS speaker_count,
		(SELECT COUNT(*) FROM tbl_key_point k WHERE k.meeting_id = m.id) AS key_point_count
	FROM tbl_meeting m`

func (db *Database) ListMeetingsByOwner(ctx context.Context, ownerID uuid.UUID) ([]MeetingWithCounts, error) {
	return db.listMeetingsWithCounts(ctx, meetingCountsQuery+` WHERE m.owner_id = $1 ORDER BY m.occurred_at DESC`, ownerID)
}

func (db *Database) ListMeetingsByGroup(ctx context.Context, groupID uuid.UUID) ([]MeetingWithCounts, error) {
	return db.listMeetingsWithCounts(ctx, meetingCountsQuery+` WHERE m.group_id = $1 ORDER BY m.occurred_at DESC`, groupID)
}

func (db *Database) listMeetingsWithCounts(ctx context.Context, query string, arg any) ([]MeetingWithCounts, error) {
	rows, err := db.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list meetings: %w", err)
	}
	defer rows.Close()

	meetings := make([]MeetingWithCounts, 0)
	for rows.Next() {
		var m MeetingWithCounts
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.GroupID, &m.Title, &m.Summary, &m.OccurredAt, &m.DurationSeconds, &m.AudioKey, &m.CreatedAt, &m.UpdatedAt,
			&m.SegmentCount, &m.SpeakerCount, &m.KeyPointCount); err != nil {
			return nil, fmt.Errorf("database: failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate meetings: %w", err)
	}
	return meetings, nil
}

type AddTranscriptSegmentParams struct {
	Speaker      string
	Content      string
	StartSeconds float64
	EndSeconds   float64
	Confidence   float64
}

// AddTranscriptSegments appends segments in order inside one transaction.
// Segment ids come from a bigserial sequence, so insertion order is the
// transcript order.
func (db *Database) AddTranscriptSegments(ctx context.Context, meetingID uuid.UUID, params []AddTranscriptSegmentParams) ([]TranscriptSegment, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	segments := make([]TranscriptSegment, 0, len(params))
	for _, p := range params {
		segment := TranscriptSegment{
			MeetingID:    meetingID,
			Speaker:      p.Speaker,
			Content:      p.Content,
			StartSeconds: p.StartSeconds,
			EndSeconds:   p.EndSeconds,
			Confidence:   p.Confidence,
			CreatedAt:    time.Now().UTC(),
		}
		err := tx.QueryRow(ctx, `INSERT INTO tbl_transcript_segment (meeting_id, speaker, content, start_seconds, end_seconds, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			segment.MeetingID, segment.Speaker, segment.Content, segment.StartSeconds, segment.EndSeconds, segment.Confidence, segment.CreatedAt).Scan(&segment.ID)
		if err != nil {
			return nil, fmt.Errorf("database: failed to insert transcript segment (meeting_id=%s): %w", meetingID, err)
		}
		segments = append(segments, segment)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("database: failed to commit transcript segments (meeting_id=%s): %w", meetingID, err)
	}
	return segments, nil
}

func (db *Database) ListTranscriptSegments(ctx context.Context, meetingID uuid.UUID) ([]TranscriptSegment, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, meeting_id, speaker, content, start_seconds, end_seconds, confidence, created_at FROM tbl_transcript_segment WHERE meeting_id = $1 ORDER BY id ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list transcript segments (meeting_id=%s): %w", meetingID, err)
	}
	defer rows.Close()

	segments := make([]TranscriptSegment, 0)
	for rows.Next() {
		var s TranscriptSegment
		if err := rows.Scan(&s.ID, &s.MeetingID, &s.Speaker, &s.Content, &s.StartSeconds, &s.EndSeconds, &s.Confidence, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan transcript segment: %w", err)
		}
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate transcript segments: %w", err)
	}
	return segments, nil
}

func (db *Database) AddKeyPoint(ctx context.Context, meetingID uuid.UUID, content string) (KeyPoint, error) {
	kp := KeyPoint{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_key_point (id, meeting_id, content, created_at) VALUES ($1, $2, $3, $4)`,
		kp.ID, kp.MeetingID, kp.Content, kp.CreatedAt); err != nil {
		return kp, fmt.Errorf("database: failed to insert key point (meeting_id=%s): %w", meetingID, err)
	}
	return kp, nil
}

func (db *Database) ListKeyPoints(ctx context.Context, meetingID uuid.UUID) ([]KeyPoint, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, meeting_id, content, created_at FROM tbl_key_point WHERE meeting_id = $1 ORDER BY created_at ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list key points (meeting_id=%s): %w", meetingID, err)
	}
	defer rows.Close()

	points := make([]KeyPoint, 0)
	for rows.Next() {
		var kp KeyPoint
		if err := rows.Scan(&kp.ID, &kp.MeetingID, &kp.Content, &kp.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan key point: %w", err)
		}
		points = append(points, kp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate key points: %w", err)
	}
	return points, nil
}

func (db *Database) SetMeetingAudioKey(ctx context.Context, meetingID uuid.UUID, audioKey string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE tbl_meeting SET audio_key = $1, updated_at = $2 WHERE id = $3`, audioKey, time.Now().UTC(), meetingID)
	if err != nil {
		return fmt.Errorf("database: failed to set meeting audio key (id=%s): %w", meetingID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}
