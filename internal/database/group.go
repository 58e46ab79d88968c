package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

type Group struct {
	ID          uuid.UUID
	Name        string
	Description string
	JoinCode    string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GroupMember struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	UserID    uuid.UUID
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserGroup is a group joined with the caller's own membership row.
type UserGroup struct {
	Group
	Role     string
	JoinedAt time.Time
}

type CreateGroupParams struct {
	Name        string
	Description string
	JoinCode    string
	CreatedBy   uuid.UUID
}

// CreateGroupWithAdmin inserts the group row and the creator's admin
// membership in a single transaction, so a group can never exist without
// exactly one initial administrator.
func (db *Database) CreateGroupWithAdmin(ctx context.Context, params CreateGroupParams) (Group, GroupMember, error) {
	now := time.Now().UTC()
	group := Group{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		JoinCode:    params.JoinCode,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	member := GroupMember{
		ID:        uuid.New(),
		GroupID:   group.ID,
		UserID:    params.CreatedBy,
		Role:      GroupRoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return group, member, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO tbl_group (id, name, description, join_code, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		group.ID, group.Name, group.Description, group.JoinCode, group.CreatedBy, group.CreatedAt, group.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return group, member, ErrJoinCodeTaken
		}
		return group, member, fmt.Errorf("database: failed to insert group (name=%s): %w", group.Name, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO tbl_group_member (id, group_id, user_id, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		member.ID, member.GroupID, member.UserID, member.Role, member.CreatedAt, member.UpdatedAt); err != nil {
		return group, member, fmt.Errorf("database: failed to insert creator membership (group_id=%s): %w", group.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return group, member, fmt.Errorf("database: failed to commit group creation: %w", err)
	}
	return group, member, nil
}

func (db *Database) GetGroupByID(ctx context.Context, id uuid.UUID) (Group, error) {
	return db.getGroup(ctx, `WHERE id = $1`, id)
}

// GetGroupByJoinCode matches the stored (uppercase) code exactly; callers
// normalize input case beforehand.
func (db *Database) GetGroupByJoinCode(ctx context.Context, code string) (Group, error) {
	return db.getGroup(ctx, `WHERE join_code = $1`, code)
}

func (db *Database) getGroup(ctx context.Context, where string, arg any) (Group, error) {
	var group Group
	err := db.Pool.QueryRow(ctx, `SELECT id, name, description, join_code, created_by, created_at, updated_at FROM tbl_group `+where, arg).Scan(
		&group.ID, &group.Name, &group.Description, &group.JoinCode, &group.CreatedBy, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan group: %w", err)
	}
	return group, nil
}

func (db *Database) ListGroupsByUserID(ctx context.Context, userID uuid.UUID) ([]UserGroup, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT g.id, g.name, g.description, g.join_code, g.created_by, g.created_at, g.updated_at, m.role, m.created_at
		FROM tbl_group g
		JOIN tbl_group_member m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list groups for user %s: %w", userID, err)
	}
	defer rows.Close()

	groups := make([]UserGroup, 0)
	for rows.Next() {
		var g UserGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.JoinCode, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &g.Role, &g.JoinedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan user group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate user groups: %w", err)
	}
	return groups, nil
}

func (db *Database) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMember, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, group_id, user_id, role, created_at, updated_at FROM tbl_group_member WHERE group_id = $1 ORDER BY created_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list group members (group_id=%s): %w", groupID, err)
	}
	defer rows.Close()

	members := make([]GroupMember, 0)
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan group member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate group members: %w", err)
	}
	return members, nil
}

func (db *Database) GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (GroupMember, error) {
	var m GroupMember
	err := db.Pool.QueryRow(ctx, `SELECT id, group_id, user_id, role, created_at, updated_at FROM tbl_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID).Scan(
		&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, ErrGroupMemberNotFound
		}
		return m, fmt.Errorf("database: failed to scan group member: %w", err)
	}
	return m, nil
}

type AddGroupMemberParams struct {
	GroupID uuid.UUID
	UserID  uuid.UUID
	Role    string
}

func (db *Database) AddGroupMember(ctx context.Context, params AddGroupMemberParams) (GroupMember, error) {
	now := time.Now().UTC()
	member := GroupMember{
		ID:        uuid.New(),
		GroupID:   params.GroupID,
		UserID:    params.UserID,
		Role:      params.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_group_member (id, group_id, user_id, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		member.ID, member.GroupID, member.UserID, member.Role, member.CreatedAt, member.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return member, ErrAlreadyMember
		}
		return member, fmt.Errorf("database: failed to insert group member (group_id=%s, user_id=%s): %w", params.GroupID, params.UserID, err)
	}
	return member, nil
}

// RemoveGroupMember deletes the membership of userID in groupID. The caller
// is responsible for admin checks; use LeaveGroup for self-removal so the
// last-admin guard applies.
func (db *Database) RemoveGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("database: failed to remove group member (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupMemberNotFound
	}
	return nil
}

// LeaveGroup removes the caller's own membership. The membership lookup, the
// admin count and the delete run in one transaction with the group row locked,
// so two concurrent leaves cannot both pass the last-admin check.
func (db *Database) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM tbl_group WHERE id = $1 FOR UPDATE`, groupID); err != nil {
		return fmt.Errorf("database: failed to lock group %s: %w", groupID, err)
	}

	var role string
	err = tx.QueryRow(ctx, `SELECT role FROM tbl_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupMemberNotFound
		}
		return fmt.Errorf("database: failed to read membership (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}

	if role == GroupRoleAdmin {
		var admins int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tbl_group_member WHERE group_id = $1 AND role = $2`, groupID, GroupRoleAdmin).Scan(&admins); err != nil {
			return fmt.Errorf("database: failed to count admins (group_id=%s): %w", groupID, err)
		}
		if admins == 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tbl_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return fmt.Errorf("database: failed to delete membership (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: failed to commit leave (group_id=%s): %w", groupID, err)
	}
	return nil
}

// ChangeGroupMemberRole sets the role of userID in groupID. Demoting the sole
// administrator is rejected inside the same transaction that performs the
// update.
func (db *Database) ChangeGroupMemberRole(ctx context.Context, groupID, userID uuid.UUID, role string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM tbl_group WHERE id = $1 FOR UPDATE`, groupID); err != nil {
		return fmt.Errorf("database: failed to lock group %s: %w", groupID, err)
	}

	var current string
	err = tx.QueryRow(ctx, `SELECT role FROM tbl_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupMemberNotFound
		}
		return fmt.Errorf("database: failed to read membership (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}

	if current == GroupRoleAdmin && role != GroupRoleAdmin {
		var admins int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tbl_group_member WHERE group_id = $1 AND role = $2`, groupID, GroupRoleAdmin).Scan(&admins); err != nil {
			return fmt.Errorf("database: failed to count admins (group_id=%s): %w", groupID, err)
		}
		if admins == 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE tbl_group_member SET role = $1, updated_at = $2 WHERE group_id = $3 AND user_id = $4`,
		role, time.Now().UTC(), groupID, userID); err != nil {
		return fmt.Errorf("database: failed to update member role (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: failed to commit role change (group_id=%s): %w", groupID, err)
	}
	return nil
}

// DeleteGroup removes the group and all of its membership rows in one
// transaction. Meetings tagged with the group keep existing; their group_id
// is set to NULL by the schema's ON DELETE SET NULL.
func (db *Database) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tbl_group_member WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("database: failed to delete group members (group_id=%s): %w", groupID, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM tbl_group WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("database: failed to delete group (id=%s): %w", groupID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: failed to commit group deletion (id=%s): %w", groupID, err)
	}
	return nil
}
