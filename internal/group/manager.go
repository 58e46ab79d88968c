package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"juntify/internal/database"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("group not found")
	ErrNotMember          = errors.New("requester is not a member of the group")
	ErrNotAdmin           = errors.New("requester is not an administrator of the group")
	ErrMemberNotFound     = errors.New("target user is not a member of the group")
	ErrAlreadyMember      = errors.New("user is already a member of the group")
	ErrLastAdmin          = errors.New("the only administrator cannot be removed; promote another member or delete the group")
	ErrCannotRemoveSelf   = errors.New("use leave to remove yourself from a group")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique join code")
)

// Store is the slice of the database layer the group manager needs.
// *database.Database satisfies it.
type Store interface {
	CreateGroupWithAdmin(ctx context.Context, params database.CreateGroupParams) (database.Group, database.GroupMember, error)
	GetGroupByID(ctx context.Context, id uuid.UUID) (database.Group, error)
	GetGroupByJoinCode(ctx context.Context, code string) (database.Group, error)
	ListGroupsByUserID(ctx context.Context, userID uuid.UUID) ([]database.UserGroup, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]database.GroupMember, error)
	GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (database.GroupMember, error)
	AddGroupMember(ctx context.Context, params database.AddGroupMemberParams) (database.GroupMember, error)
	RemoveGroupMember(ctx context.Context, groupID, userID uuid.UUID) error
	LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error
	ChangeGroupMemberRole(ctx context.Context, groupID, userID uuid.UUID, role string) error
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
}

type Manager struct {
	logger *slog.Logger
	db     Store
}

func NewManager(logger *slog.Logger, db Store) Manager {
	return Manager{logger: logger, db: db}
}

type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	JoinCode    string    `json:"join_code"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Member struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Membership is a group together with the caller's own role in it.
type Membership struct {
	Group
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateParams struct {
	Name        string
	Description string
	CreatorID   uuid.UUID
}

// Create inserts the group and the creator's admin membership atomically.
// Join code collisions are resolved by regenerating, bounded by
// maxCodeAttempts.
func (m *Manager) Create(ctx context.Context, params CreateParams) (Group, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewJoinCode()
		if err != nil {
			return Group{}, fmt.Errorf("failed to generate join code: %w", err)
		}

		dbGroup, _, err := m.db.CreateGroupWithAdmin(ctx, database.CreateGroupParams{
			Name:        params.Name,
			Description: params.Description,
			JoinCode:    code,
			CreatedBy:   params.CreatorID,
		})
		if err != nil {
			if errors.Is(err, database.ErrJoinCodeTaken) {
				m.logger.Warn("Join code collision, regenerating", "attempt", attempt+1)
				continue
			}
			return Group{}, fmt.Errorf("failed to create group %q: %w", params.Name, err)
		}

		m.logger.Info("Group created", "group_id", dbGroup.ID, "name", dbGroup.Name, "created_by", params.CreatorID)
		return fromDB(dbGroup), nil
	}

	return Group{}, ErrCodeSpaceExhausted
}

// Join adds the caller as a member of the group matching the code.
func (m *Manager) Join(ctx context.Context, code string, userID uuid.UUID) (Group, error) {
	dbGroup, err := m.db.GetGroupByJoinCode(ctx, NormalizeJoinCode(code))
	if err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return Group{}, ErrNotFound
		}
		return Group{}, fmt.Errorf("failed to look up join code: %w", err)
	}

	if _, err := m.db.AddGroupMember(ctx, database.AddGroupMemberParams{
		GroupID: dbGroup.ID,
		UserID:  userID,
		Role:    database.GroupRoleMember,
	}); err != nil {
		if errors.Is(err, database.ErrAlreadyMember) {
			return Group{}, ErrAlreadyMember
		}
		return Group{}, fmt.Errorf("failed to add member to group %s: %w", dbGroup.ID, err)
	}

	m.logger.Info("User joined group", "group_id", dbGroup.ID, "user_id", userID)
	return fromDB(dbGroup), nil
}

// Verify resolves a join code to its group without joining.
func (m *Manager) Verify(ctx context.Context, code string) (Group, error) {
	dbGroup, err := m.db.GetGroupByJoinCode(ctx, NormalizeJoinCode(code))
	if err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return Group{}, ErrNotFound
		}
		return Group{}, fmt.Errorf("failed to look up join code: %w", err)
	}
	return fromDB(dbGroup), nil
}

// ListMine returns the caller's groups with their membership role.
func (m *Manager) ListMine(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	dbGroups, err := m.db.ListGroupsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for user %s: %w", userID, err)
	}

	memberships := make([]Membership, 0, len(dbGroups))
	for _, g := range dbGroups {
		memberships = append(memberships, Membership{
			Group:    fromDB(g.Group),
			Role:     g.Role,
			JoinedAt: g.JoinedAt,
		})
	}
	return memberships, nil
}

// Members lists the group's membership; the requester must belong to it.
func (m *Manager) Members(ctx context.Context, groupID, requesterID uuid.UUID) ([]Member, error) {
	if _, err := m.db.GetGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	if _, err := m.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, err
	}

	dbMembers, err := m.db.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %s: %w", groupID, err)
	}

	members := make([]Member, 0, len(dbMembers))
	for _, mm := range dbMembers {
		members = append(members, Member{
			GroupID:  mm.GroupID,
			UserID:   mm.UserID,
			Role:     mm.Role,
			JoinedAt: mm.CreatedAt,
		})
	}
	return members, nil
}

// Leave removes the caller's membership. The sole administrator cannot
// leave; they must promote someone first or delete the group.
func (m *Manager) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	if _, err := m.db.GetGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	if err := m.db.LeaveGroup(ctx, groupID, userID); err != nil {
		switch {
		case errors.Is(err, database.ErrGroupMemberNotFound):
			return ErrNotMember
		case errors.Is(err, database.ErrLastAdmin):
			return ErrLastAdmin
		}
		return fmt.Errorf("failed to leave group %s: %w", groupID, err)
	}

	m.logger.Info("User left group", "group_id", groupID, "user_id", userID)
	return nil
}

// Promote raises the target to administrator. Requester must be an admin
// member; target must already be a member.
func (m *Manager) Promote(ctx context.Context, groupID, requesterID, targetID uuid.UUID) error {
	if err := m.requireAdmin(ctx, groupID, requesterID); err != nil {
		return err
	}

	if err := m.db.ChangeGroupMemberRole(ctx, groupID, targetID, database.GroupRoleAdmin); err != nil {
		if errors.Is(err, database.ErrGroupMemberNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to promote member %s in group %s: %w", targetID, groupID, err)
	}

	m.logger.Info("Member promoted to admin", "group_id", groupID, "user_id", targetID, "promoted_by", requesterID)
	return nil
}

// Demote lowers the target back to member. The last administrator cannot be
// demoted.
func (m *Manager) Demote(ctx context.Context, groupID, requesterID, targetID uuid.UUID) error {
	if err := m.requireAdmin(ctx, groupID, requesterID); err != nil {
		return err
	}

	if err := m.db.ChangeGroupMemberRole(ctx, groupID, targetID, database.GroupRoleMember); err != nil {
		switch {
		case errors.Is(err, database.ErrGroupMemberNotFound):
			return ErrMemberNotFound
		case errors.Is(err, database.ErrLastAdmin):
			return ErrLastAdmin
		}
		return fmt.Errorf("failed to demote member %s in group %s: %w", targetID, groupID, err)
	}

	m.logger.Info("Member demoted", "group_id", groupID, "user_id", targetID, "demoted_by", requesterID)
	return nil
}

// RemoveMember lets an administrator remove another member, admins included.
// The requester stays behind as an admin, so the group can never lose its
// last administrator this way. Self-removal goes through Leave so the
// last-admin guard applies.
func (m *Manager) RemoveMember(ctx context.Context, groupID, requesterID, targetID uuid.UUID) error {
	if requesterID == targetID {
		return ErrCannotRemoveSelf
	}

	if err := m.requireAdmin(ctx, groupID, requesterID); err != nil {
		return err
	}

	if err := m.db.RemoveGroupMember(ctx, groupID, targetID); err != nil {
		if errors.Is(err, database.ErrGroupMemberNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to remove member %s from group %s: %w", targetID, groupID, err)
	}

	m.logger.Info("Member removed from group", "group_id", groupID, "user_id", targetID, "removed_by", requesterID)
	return nil
}

// Delete removes the group and all of its memberships. Authorization is the
// membership role, not created_by.
func (m *Manager) Delete(ctx context.Context, groupID, requesterID uuid.UUID) error {
	if err := m.requireAdmin(ctx, groupID, requesterID); err != nil {
		return err
	}

	if err := m.db.DeleteGroup(ctx, groupID); err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}

	m.logger.Info("Group deleted", "group_id", groupID, "deleted_by", requesterID)
	return nil
}

func (m *Manager) requireMember(ctx context.Context, groupID, userID uuid.UUID) (database.GroupMember, error) {
	member, err := m.db.GetGroupMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, database.ErrGroupMemberNotFound) {
			return member, ErrNotMember
		}
		return member, fmt.Errorf("failed to get membership (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}
	return member, nil
}

// requireAdmin is the single authorization predicate for group management.
func (m *Manager) requireAdmin(ctx context.Context, groupID, userID uuid.UUID) error {
	if _, err := m.db.GetGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, database.ErrGroupNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	member, err := m.requireMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member.Role != database.GroupRoleAdmin {
		return ErrNotAdmin
	}
	return nil
}

func fromDB(g database.Group) Group {
	return Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		JoinCode:    g.JoinCode,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}
