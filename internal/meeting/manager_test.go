package meeting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"juntify/internal/database"
	"juntify/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	meetings  map[uuid.UUID]database.Meeting
	segments  map[uuid.UUID][]database.TranscriptSegment
	keyPoints map[uuid.UUID][]database.KeyPoint
	groups    map[uuid.UUID]database.Group
	members   map[uuid.UUID][]uuid.UUID // group -> user ids

	nextSegmentID  int64
	setAudioKeyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings:  make(map[uuid.UUID]database.Meeting),
		segments:  make(map[uuid.UUID][]database.TranscriptSegment),
		keyPoints: make(map[uuid.UUID][]database.KeyPoint),
		groups:    make(map[uuid.UUID]database.Group),
		members:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeStore) addGroup(memberIDs ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.groups[id] = database.Group{ID: id}
	s.members[id] = memberIDs
	return id
}

func (s *fakeStore) CreateMeeting(_ context.Context, params database.CreateMeetingParams) (database.Meeting, error) {
	now := time.Now().UTC()
	m := database.Meeting{
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
	s.meetings[m.ID] = m
	return m, nil
}

func (s *fakeStore) GetMeetingByID(_ context.Context, id uuid.UUID) (database.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok {
		return database.Meeting{}, database.ErrMeetingNotFound
	}
	return m, nil
}

func (s *fakeStore) SetMeetingAudioKey(_ context.Context, meetingID uuid.UUID, audioKey string) error {
	if s.setAudioKeyErr != nil {
		return s.setAudioKeyErr
	}
	m, ok := s.meetings[meetingID]
	if !ok {
		return database.ErrMeetingNotFound
	}
	m.AudioKey = util.Some(audioKey)
	m.UpdatedAt = time.Now().UTC()
	s.meetings[meetingID] = m
	return nil
}

func (s *fakeStore) ListMeetingsByOwner(_ context.Context, ownerID uuid.UUID) ([]database.MeetingWithCounts, error) {
	var result []database.MeetingWithCounts
	for _, m := range s.meetings {
		if m.OwnerID == ownerID {
			result = append(result, s.withCounts(m))
		}
	}
	return result, nil
}

func (s *fakeStore) ListMeetingsByGroup(_ context.Context, groupID uuid.UUID) ([]database.MeetingWithCounts, error) {
	var result []database.MeetingWithCounts
	for _, m := range s.meetings {
		if m.GroupID.IsSet && m.GroupID.Val == groupID {
			result = append(result, s.withCounts(m))
		}
	}
	return result, nil
}

func (s *fakeStore) withCounts(m database.Meeting) database.MeetingWithCounts {
	speakers := make(map[string]struct{})
	for _, seg := range s.segments[m.ID] {
		if seg.Speaker != "" {
			speakers[seg.Speaker] = struct{}{}
		}
	}
	return database.MeetingWithCounts{
		Meeting:       m,
		SegmentCount:  len(s.segments[m.ID]),
		SpeakerCount:  len(speakers),
		KeyPointCount: len(s.keyPoints[m.ID]),
	}
}

func (s *fakeStore) AddTranscriptSegments(_ context.Context, meetingID uuid.UUID, params []database.AddTranscriptSegmentParams) ([]database.TranscriptSegment, error) {
	var inserted []database.TranscriptSegment
	for _, p := range params {
		s.nextSegmentID++
		seg := database.TranscriptSegment{
			ID:           s.nextSegmentID,
			MeetingID:    meetingID,
			Speaker:      p.Speaker,
			Content:      p.Content,
			StartSeconds: p.StartSeconds,
			EndSeconds:   p.EndSeconds,
			Confidence:   p.Confidence,
			CreatedAt:    time.Now().UTC(),
		}
		s.segments[meetingID] = append(s.segments[meetingID], seg)
		inserted = append(inserted, seg)
	}
	return inserted, nil
}

func (s *fakeStore) ListTranscriptSegments(_ context.Context, meetingID uuid.UUID) ([]database.TranscriptSegment, error) {
	return s.segments[meetingID], nil
}

func (s *fakeStore) AddKeyPoint(_ context.Context, meetingID uuid.UUID, content string) (database.KeyPoint, error) {
	kp := database.KeyPoint{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.keyPoints[meetingID] = append(s.keyPoints[meetingID], kp)
	return kp, nil
}

func (s *fakeStore) ListKeyPoints(_ context.Context, meetingID uuid.UUID) ([]database.KeyPoint, error) {
	return s.keyPoints[meetingID], nil
}

func (s *fakeStore) GetGroupMember(_ context.Context, groupID, userID uuid.UUID) (database.GroupMember, error) {
	for _, id := range s.members[groupID] {
		if id == userID {
			return database.GroupMember{GroupID: groupID, UserID: userID, Role: database.GroupRoleMember}, nil
		}
	}
	return database.GroupMember{}, database.ErrGroupMemberNotFound
}

func (s *fakeStore) GetGroupByID(_ context.Context, id uuid.UUID) (database.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return database.Group{}, database.ErrGroupNotFound
	}
	return g, nil
}

// fakeStorage keeps recordings in memory.
type fakeStorage struct {
	objects map[string][]byte
	failPut bool
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Store(_ context.Context, ownerID uuid.UUID, filename string, content io.Reader, _ string) (string, error) {
	if f.failPut {
		return "", fmt.Errorf("store failed")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s", ownerID, filename)
	f.objects[key] = data
	return key, nil
}

func (f *fakeStorage) Retrieve(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) GetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://recordings.test/" + key, nil
}

func newTestManager(store *fakeStore, files *fakeStorage) Manager {
	return NewManager(slog.New(slog.DiscardHandler), store, files)
}

func TestManager_Create(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()

	m, err := manager.Create(context.Background(), CreateParams{
		OwnerID:         owner,
		Title:           "Clase de álgebra",
		Summary:         "Ecuaciones de segundo grado",
		DurationSeconds: 1800,
	})
	require.NoError(t, err)
	assert.Equal(t, owner, m.OwnerID)
	assert.False(t, m.GroupID.IsSet)
	assert.False(t, m.HasRecording)
	assert.False(t, m.OccurredAt.IsZero(), "missing occurred_at defaults to now")
}

func TestManager_Create_WithRecording(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()

	m, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		Title:   "Clase grabada",
		Recording: &Recording{
			Filename:    "clase.mp3",
			ContentType: "audio/mpeg",
			Content:     strings.NewReader("audio-bytes"),
		},
	})
	require.NoError(t, err)
	assert.True(t, m.HasRecording)
	assert.Len(t, files.objects, 1)
}

func TestManager_Create_GroupMembership(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()
	groupID := store.addGroup(owner)

	t.Run("member_tags_group", func(t *testing.T) {
		m, err := manager.Create(context.Background(), CreateParams{
			OwnerID: owner,
			GroupID: util.Some(groupID),
			Title:   "Clase compartida",
		})
		require.NoError(t, err)
		assert.Equal(t, groupID, m.GroupID.Val)
	})

	t.Run("non_member_rejected", func(t *testing.T) {
		_, err := manager.Create(context.Background(), CreateParams{
			OwnerID: uuid.New(),
			GroupID: util.Some(groupID),
			Title:   "Intrusa",
		})
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("unknown_group_rejected", func(t *testing.T) {
		_, err := manager.Create(context.Background(), CreateParams{
			OwnerID: owner,
			GroupID: util.Some(uuid.New()),
			Title:   "Sin grupo",
		})
		assert.ErrorIs(t, err, ErrNotMember)
	})
}

func TestManager_Get_Authorization(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()
	fellow := uuid.New()
	groupID := store.addGroup(owner, fellow)

	shared, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		GroupID: util.Some(groupID),
		Title:   "Compartida",
	})
	require.NoError(t, err)

	private, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		Title:   "Privada",
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		meetingID   uuid.UUID
		requester   uuid.UUID
		expectedErr error
	}{
		{name: "owner_reads_private", meetingID: private.ID, requester: owner},
		{name: "owner_reads_shared", meetingID: shared.ID, requester: owner},
		{name: "fellow_member_reads_shared", meetingID: shared.ID, requester: fellow},
		{name: "fellow_member_blocked_from_private", meetingID: private.ID, requester: fellow, expectedErr: ErrForbidden},
		{name: "stranger_blocked", meetingID: shared.ID, requester: uuid.New(), expectedErr: ErrForbidden},
		{name: "unknown_meeting", meetingID: uuid.New(), requester: owner, expectedErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Get(context.Background(), tt.meetingID, tt.requester)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManager_Get_IncludesTranscript(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store, newFakeStorage())
	owner := uuid.New()

	m, err := manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Con transcripción"})
	require.NoError(t, err)

	_, err = manager.AppendSegments(context.Background(), m.ID, owner, []SegmentParams{
		{Speaker: "Profesora", Content: "Buenos días", StartSeconds: 0, EndSeconds: 2, Confidence: 0.98},
		{Speaker: "Alumno", Content: "Buenos días", StartSeconds: 2, EndSeconds: 4, Confidence: 0.92},
	})
	require.NoError(t, err)
	_, err = manager.AddKeyPoint(context.Background(), m.ID, owner, "Repasar el tema 4")
	require.NoError(t, err)

	detail, err := manager.Get(context.Background(), m.ID, owner)
	require.NoError(t, err)
	require.Len(t, detail.Segments, 2)
	assert.Equal(t, "Profesora", detail.Segments[0].Speaker)
	assert.Less(t, detail.Segments[0].ID, detail.Segments[1].ID, "segments keep insertion order")
	require.Len(t, detail.KeyPoints, 1)
	assert.Equal(t, "Repasar el tema 4", detail.KeyPoints[0].Content)
}

func TestManager_AppendSegments_OwnerOnly(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store, newFakeStorage())
	owner := uuid.New()
	fellow := uuid.New()
	groupID := store.addGroup(owner, fellow)

	m, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		GroupID: util.Some(groupID),
		Title:   "Solo el dueño escribe",
	})
	require.NoError(t, err)

	_, err = manager.AppendSegments(context.Background(), m.ID, fellow, []SegmentParams{
		{Content: "intento"},
	})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = manager.AddKeyPoint(context.Background(), m.ID, fellow, "intento")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestManager_ListGroupClasses(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store, newFakeStorage())
	owner := uuid.New()
	member := uuid.New()
	groupID := store.addGroup(owner, member)

	_, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		GroupID: util.Some(groupID),
		Title:   "Compartida",
	})
	require.NoError(t, err)
	_, err = manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Privada"})
	require.NoError(t, err)

	t.Run("member_sees_shared_only", func(t *testing.T) {
		classes, err := manager.ListGroupClasses(context.Background(), groupID, member)
		require.NoError(t, err)
		require.Len(t, classes, 1)
		assert.Equal(t, "Compartida", classes[0].Title)
	})

	t.Run("outsider_forbidden", func(t *testing.T) {
		_, err := manager.ListGroupClasses(context.Background(), groupID, uuid.New())
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("unknown_group", func(t *testing.T) {
		_, err := manager.ListGroupClasses(context.Background(), uuid.New(), member)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_ListMine_Counts(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store, newFakeStorage())
	owner := uuid.New()

	m, err := manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Con conteos"})
	require.NoError(t, err)

	_, err = manager.AppendSegments(context.Background(), m.ID, owner, []SegmentParams{
		{Speaker: "A", Content: "uno"},
		{Speaker: "B", Content: "dos"},
		{Speaker: "A", Content: "tres"},
		{Speaker: "", Content: "sin hablante"},
	})
	require.NoError(t, err)

	mine, err := manager.ListMine(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 4, mine[0].SegmentCount)
	assert.Equal(t, 2, mine[0].Participants, "empty speaker labels are not participants")
}

func TestManager_AudioURL(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()

	withAudio, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		Title:   "Grabada",
		Recording: &Recording{
			Filename: "a.mp3",
			Content:  strings.NewReader("bytes"),
		},
	})
	require.NoError(t, err)

	silent, err := manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Sin audio"})
	require.NoError(t, err)

	url, err := manager.AudioURL(context.Background(), withAudio.ID, owner, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "https://recordings.test/")

	_, err = manager.AudioURL(context.Background(), silent.ID, owner, time.Minute)
	assert.ErrorIs(t, err, ErrNoRecording)

	_, err = manager.AudioURL(context.Background(), withAudio.ID, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestManager_AttachRecording(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()

	m, err := manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Sin audio todavía"})
	require.NoError(t, err)
	require.False(t, m.HasRecording)

	t.Run("owner_attaches", func(t *testing.T) {
		updated, err := manager.AttachRecording(context.Background(), m.ID, owner, Recording{
			Filename:    "clase.mp3",
			ContentType: "audio/mpeg",
			Content:     strings.NewReader("primera toma"),
		})
		require.NoError(t, err)
		assert.True(t, updated.HasRecording)

		stored, err := store.GetMeetingByID(context.Background(), m.ID)
		require.NoError(t, err)
		assert.True(t, stored.AudioKey.IsSet)
		assert.Contains(t, files.objects, stored.AudioKey.Val)
	})

	t.Run("replacement_deletes_old_file", func(t *testing.T) {
		before, err := store.GetMeetingByID(context.Background(), m.ID)
		require.NoError(t, err)
		oldKey := before.AudioKey.Val

		_, err = manager.AttachRecording(context.Background(), m.ID, owner, Recording{
			Filename: "clase-v2.mp3",
			Content:  strings.NewReader("segunda toma"),
		})
		require.NoError(t, err)
		assert.Contains(t, files.deleted, oldKey)
	})

	t.Run("non_owner_rejected", func(t *testing.T) {
		_, err := manager.AttachRecording(context.Background(), m.ID, uuid.New(), Recording{
			Filename: "intruso.mp3",
			Content:  strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("unknown_meeting", func(t *testing.T) {
		_, err := manager.AttachRecording(context.Background(), uuid.New(), owner, Recording{
			Filename: "perdido.mp3",
			Content:  strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update_failure_cleans_uploaded_file", func(t *testing.T) {
		store.setAudioKeyErr = fmt.Errorf("db down")
		defer func() { store.setAudioKeyErr = nil }()

		objectsBefore := len(files.objects)
		_, err := manager.AttachRecording(context.Background(), m.ID, owner, Recording{
			Filename: "fallida.mp3",
			Content:  strings.NewReader("x"),
		})
		assert.Error(t, err)
		assert.Len(t, files.objects, objectsBefore, "failed attach leaves no orphaned file")
	})
}

func TestManager_OpenRecording(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()
	fellow := uuid.New()
	groupID := store.addGroup(owner, fellow)

	m, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		GroupID: util.Some(groupID),
		Title:   "Para escuchar",
		Recording: &Recording{
			Filename: "clase.mp3",
			Content:  strings.NewReader("contenido de audio"),
		},
	})
	require.NoError(t, err)

	t.Run("group_member_streams", func(t *testing.T) {
		rc, err := manager.OpenRecording(context.Background(), m.ID, fellow)
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "contenido de audio", string(data))
	})

	t.Run("stranger_forbidden", func(t *testing.T) {
		_, err := manager.OpenRecording(context.Background(), m.ID, uuid.New())
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("no_recording", func(t *testing.T) {
		silent, err := manager.Create(context.Background(), CreateParams{OwnerID: owner, Title: "Muda"})
		require.NoError(t, err)

		_, err = manager.OpenRecording(context.Background(), silent.ID, owner)
		assert.ErrorIs(t, err, ErrNoRecording)
	})
}

func TestManager_Create_CleansUpRecordingOnInsertFailure(t *testing.T) {
	store := newFakeStore()
	files := newFakeStorage()
	manager := newTestManager(store, files)
	owner := uuid.New()

	// Tagging an unknown group fails after the recording upload would have
	// happened; the membership check runs first, so nothing is stored.
	_, err := manager.Create(context.Background(), CreateParams{
		OwnerID: owner,
		GroupID: util.Some(uuid.New()),
		Title:   "Falla",
		Recording: &Recording{
			Filename: "huérfano.mp3",
			Content:  strings.NewReader("bytes"),
		},
	})
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Empty(t, files.objects, "no orphaned recording is left behind")
}
