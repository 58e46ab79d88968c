package group

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"juntify/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store that mirrors the database layer's
// semantics, including its sentinel errors and the last-admin guard.
type fakeStore struct {
	groups  map[uuid.UUID]database.Group
	members map[uuid.UUID][]database.GroupMember

	// rejectCreates makes the next n group inserts fail with
	// ErrJoinCodeTaken; negative means every insert fails.
	rejectCreates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:  make(map[uuid.UUID]database.Group),
		members: make(map[uuid.UUID][]database.GroupMember),
	}
}

func (s *fakeStore) CreateGroupWithAdmin(_ context.Context, params database.CreateGroupParams) (database.Group, database.GroupMember, error) {
	if s.rejectCreates != 0 {
		if s.rejectCreates > 0 {
			s.rejectCreates--
		}
		return database.Group{}, database.GroupMember{}, database.ErrJoinCodeTaken
	}
	for _, g := range s.groups {
		if g.JoinCode == params.JoinCode {
			return database.Group{}, database.GroupMember{}, database.ErrJoinCodeTaken
		}
	}

	now := time.Now().UTC()
	g := database.Group{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		JoinCode:    params.JoinCode,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m := database.GroupMember{
		ID:        uuid.New(),
		GroupID:   g.ID,
		UserID:    params.CreatedBy,
		Role:      database.GroupRoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.groups[g.ID] = g
	s.members[g.ID] = append(s.members[g.ID], m)
	return g, m, nil
}

func (s *fakeStore) GetGroupByID(_ context.Context, id uuid.UUID) (database.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return database.Group{}, database.ErrGroupNotFound
	}
	return g, nil
}

func (s *fakeStore) GetGroupByJoinCode(_ context.Context, code string) (database.Group, error) {
	for _, g := range s.groups {
		if g.JoinCode == code {
			return g, nil
		}
	}
	return database.Group{}, database.ErrGroupNotFound
}

func (s *fakeStore) ListGroupsByUserID(_ context.Context, userID uuid.UUID) ([]database.UserGroup, error) {
	var result []database.UserGroup
	for groupID, members := range s.members {
		for _, m := range members {
			if m.UserID == userID {
				result = append(result, database.UserGroup{
					Group:    s.groups[groupID],
					Role:     m.Role,
					JoinedAt: m.CreatedAt,
				})
			}
		}
	}
	return result, nil
}

func (s *fakeStore) ListGroupMembers(_ context.Context, groupID uuid.UUID) ([]database.GroupMember, error) {
	return s.members[groupID], nil
}

func (s *fakeStore) GetGroupMember(_ context.Context, groupID, userID uuid.UUID) (database.GroupMember, error) {
	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return database.GroupMember{}, database.ErrGroupMemberNotFound
}

func (s *fakeStore) AddGroupMember(_ context.Context, params database.AddGroupMemberParams) (database.GroupMember, error) {
	for _, m := range s.members[params.GroupID] {
		if m.UserID == params.UserID {
			return database.GroupMember{}, database.ErrAlreadyMember
		}
	}
	now := time.Now().UTC()
	m := database.GroupMember{
		ID:        uuid.New(),
		GroupID:   params.GroupID,
		UserID:    params.UserID,
		Role:      params.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.members[params.GroupID] = append(s.members[params.GroupID], m)
	return m, nil
}

func (s *fakeStore) RemoveGroupMember(_ context.Context, groupID, userID uuid.UUID) error {
	members := s.members[groupID]
	for i, m := range members {
		if m.UserID == userID {
			s.members[groupID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return database.ErrGroupMemberNotFound
}

func (s *fakeStore) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	member, err := s.GetGroupMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member.Role == database.GroupRoleAdmin && s.countAdmins(groupID) == 1 {
		return database.ErrLastAdmin
	}
	return s.RemoveGroupMember(ctx, groupID, userID)
}

func (s *fakeStore) ChangeGroupMemberRole(ctx context.Context, groupID, userID uuid.UUID, role string) error {
	members := s.members[groupID]
	for i, m := range members {
		if m.UserID == userID {
			if m.Role == database.GroupRoleAdmin && role != database.GroupRoleAdmin && s.countAdmins(groupID) == 1 {
				return database.ErrLastAdmin
			}
			members[i].Role = role
			return nil
		}
	}
	return database.ErrGroupMemberNotFound
}

func (s *fakeStore) DeleteGroup(_ context.Context, groupID uuid.UUID) error {
	if _, ok := s.groups[groupID]; !ok {
		return database.ErrGroupNotFound
	}
	delete(s.groups, groupID)
	delete(s.members, groupID)
	return nil
}

func (s *fakeStore) countAdmins(groupID uuid.UUID) int {
	count := 0
	for _, m := range s.members[groupID] {
		if m.Role == database.GroupRoleAdmin {
			count++
		}
	}
	return count
}

func newTestManager(store *fakeStore) Manager {
	logger := slog.New(slog.DiscardHandler)
	return NewManager(logger, store)
}

func TestManager_Create(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	creator := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{
		Name:      "Historia 3B",
		CreatorID: creator,
	})
	require.NoError(t, err)
	assert.Equal(t, "Historia 3B", g.Name)
	assert.Len(t, g.JoinCode, 8)
	assert.Equal(t, creator, g.CreatedBy)

	// The creator must come out as the group's administrator.
	member, err := store.GetGroupMember(context.Background(), g.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, database.GroupRoleAdmin, member.Role)
}

func TestManager_Create_RetriesOnCodeCollision(t *testing.T) {
	store := newFakeStore()
	store.rejectCreates = 2
	manager := newTestManager(store)

	g, err := manager.Create(context.Background(), CreateParams{
		Name:      "Química",
		CreatorID: uuid.New(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, g.JoinCode)
}

func TestManager_Create_CodeSpaceExhausted(t *testing.T) {
	store := newFakeStore()
	store.rejectCreates = -1
	manager := newTestManager(store)

	_, err := manager.Create(context.Background(), CreateParams{
		Name:      "Física",
		CreatorID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestManager_Join(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	joiner := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Inglés", CreatorID: admin})
	require.NoError(t, err)

	tests := []struct {
		name        string
		code        string
		userID      uuid.UUID
		expectedErr error
	}{
		{name: "valid_code", code: g.JoinCode, userID: joiner},
		{name: "lowercase_code", code: "zz", userID: joiner, expectedErr: ErrNotFound},
		{name: "unknown_code", code: "AAAA2222", userID: uuid.New(), expectedErr: ErrNotFound},
		{name: "already_member", code: g.JoinCode, userID: joiner, expectedErr: ErrAlreadyMember},
		{name: "creator_rejoins", code: g.JoinCode, userID: admin, expectedErr: ErrAlreadyMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Join(context.Background(), tt.code, tt.userID)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	member, err := store.GetGroupMember(context.Background(), g.ID, joiner)
	require.NoError(t, err)
	assert.Equal(t, database.GroupRoleMember, member.Role)
}

func TestManager_Join_CodeIsCaseInsensitive(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)

	g, err := manager.Create(context.Background(), CreateParams{Name: "Arte", CreatorID: uuid.New()})
	require.NoError(t, err)

	joined, err := manager.Join(context.Background(), "  "+strings.ToLower(g.JoinCode)+"  ", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, g.ID, joined.ID)
}

func TestManager_Leave(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	member := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Música", CreatorID: admin})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), g.JoinCode, member)
	require.NoError(t, err)

	t.Run("sole_admin_cannot_leave", func(t *testing.T) {
		err := manager.Leave(context.Background(), g.ID, admin)
		assert.ErrorIs(t, err, ErrLastAdmin)
	})

	t.Run("member_leaves", func(t *testing.T) {
		err := manager.Leave(context.Background(), g.ID, member)
		assert.NoError(t, err)
		_, err = store.GetGroupMember(context.Background(), g.ID, member)
		assert.ErrorIs(t, err, database.ErrGroupMemberNotFound)
	})

	t.Run("non_member", func(t *testing.T) {
		err := manager.Leave(context.Background(), g.ID, uuid.New())
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("unknown_group", func(t *testing.T) {
		err := manager.Leave(context.Background(), uuid.New(), admin)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("admin_leaves_after_promotion", func(t *testing.T) {
		successor := uuid.New()
		_, err := manager.Join(context.Background(), g.JoinCode, successor)
		require.NoError(t, err)
		require.NoError(t, manager.Promote(context.Background(), g.ID, admin, successor))

		assert.NoError(t, manager.Leave(context.Background(), g.ID, admin))
	})
}

func TestManager_PromoteDemote(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	member := uuid.New()
	outsider := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Biología", CreatorID: admin})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), g.JoinCode, member)
	require.NoError(t, err)

	t.Run("member_cannot_promote", func(t *testing.T) {
		err := manager.Promote(context.Background(), g.ID, member, member)
		assert.ErrorIs(t, err, ErrNotAdmin)
	})

	t.Run("outsider_cannot_promote", func(t *testing.T) {
		err := manager.Promote(context.Background(), g.ID, outsider, member)
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("promote_non_member", func(t *testing.T) {
		err := manager.Promote(context.Background(), g.ID, admin, outsider)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("admin_promotes_member", func(t *testing.T) {
		require.NoError(t, manager.Promote(context.Background(), g.ID, admin, member))
		got, err := store.GetGroupMember(context.Background(), g.ID, member)
		require.NoError(t, err)
		assert.Equal(t, database.GroupRoleAdmin, got.Role)
	})

	t.Run("demote_back_to_member", func(t *testing.T) {
		require.NoError(t, manager.Demote(context.Background(), g.ID, admin, member))
		got, err := store.GetGroupMember(context.Background(), g.ID, member)
		require.NoError(t, err)
		assert.Equal(t, database.GroupRoleMember, got.Role)
	})

	t.Run("cannot_demote_last_admin", func(t *testing.T) {
		err := manager.Demote(context.Background(), g.ID, admin, admin)
		assert.ErrorIs(t, err, ErrLastAdmin)
	})
}

func TestManager_RemoveMember(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	member := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Geografía", CreatorID: admin})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), g.JoinCode, member)
	require.NoError(t, err)

	t.Run("cannot_remove_self", func(t *testing.T) {
		err := manager.RemoveMember(context.Background(), g.ID, admin, admin)
		assert.ErrorIs(t, err, ErrCannotRemoveSelf)
	})

	t.Run("member_cannot_remove", func(t *testing.T) {
		err := manager.RemoveMember(context.Background(), g.ID, member, admin)
		assert.ErrorIs(t, err, ErrNotAdmin)
	})

	t.Run("admin_removes_fellow_admin", func(t *testing.T) {
		second := uuid.New()
		_, err := manager.Join(context.Background(), g.JoinCode, second)
		require.NoError(t, err)
		require.NoError(t, manager.Promote(context.Background(), g.ID, admin, second))

		require.NoError(t, manager.RemoveMember(context.Background(), g.ID, admin, second))
		_, err = store.GetGroupMember(context.Background(), g.ID, second)
		assert.ErrorIs(t, err, database.ErrGroupMemberNotFound)

		// The remover is still in charge.
		got, err := store.GetGroupMember(context.Background(), g.ID, admin)
		require.NoError(t, err)
		assert.Equal(t, database.GroupRoleAdmin, got.Role)
	})

	t.Run("admin_removes_member", func(t *testing.T) {
		require.NoError(t, manager.RemoveMember(context.Background(), g.ID, admin, member))
		_, err := store.GetGroupMember(context.Background(), g.ID, member)
		assert.ErrorIs(t, err, database.ErrGroupMemberNotFound)
	})
}

func TestManager_Delete(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	member := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Historia", CreatorID: admin})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), g.JoinCode, member)
	require.NoError(t, err)

	t.Run("member_cannot_delete", func(t *testing.T) {
		err := manager.Delete(context.Background(), g.ID, member)
		assert.ErrorIs(t, err, ErrNotAdmin)
	})

	t.Run("admin_deletes", func(t *testing.T) {
		require.NoError(t, manager.Delete(context.Background(), g.ID, admin))

		_, err := store.GetGroupByID(context.Background(), g.ID)
		assert.ErrorIs(t, err, database.ErrGroupNotFound)
		assert.Empty(t, store.members[g.ID])
	})
}

func TestManager_Members(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	admin := uuid.New()
	member := uuid.New()

	g, err := manager.Create(context.Background(), CreateParams{Name: "Latín", CreatorID: admin})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), g.JoinCode, member)
	require.NoError(t, err)

	t.Run("member_lists", func(t *testing.T) {
		members, err := manager.Members(context.Background(), g.ID, member)
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("outsider_forbidden", func(t *testing.T) {
		_, err := manager.Members(context.Background(), g.ID, uuid.New())
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("unknown_group", func(t *testing.T) {
		_, err := manager.Members(context.Background(), uuid.New(), member)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_ListMine(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(store)
	userID := uuid.New()

	first, err := manager.Create(context.Background(), CreateParams{Name: "Primero", CreatorID: userID})
	require.NoError(t, err)
	second, err := manager.Create(context.Background(), CreateParams{Name: "Segundo", CreatorID: uuid.New()})
	require.NoError(t, err)
	_, err = manager.Join(context.Background(), second.JoinCode, userID)
	require.NoError(t, err)

	memberships, err := manager.ListMine(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)

	roles := map[uuid.UUID]string{}
	for _, m := range memberships {
		roles[m.ID] = m.Role
	}
	assert.Equal(t, database.GroupRoleAdmin, roles[first.ID])
	assert.Equal(t, database.GroupRoleMember, roles[second.ID])
}
