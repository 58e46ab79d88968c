package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"juntify/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type User struct {
	ID           uuid.UUID
	Username     string
	FullName     string
	PasswordHash string
	Team         string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateUserParams struct {
	Username     string
	FullName     string
	PasswordHash string
	Team         string
	Role         string
}

func (db *Database) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	user := User{
		ID:           uuid.New(),
		Username:     params.Username,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Team:         params.Team,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_user (id, username, full_name, password_hash, team, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Username, user.FullName, user.PasswordHash, user.Team, user.Role, user.CreatedAt, user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return user, ErrUsernameTaken
		}
		return user, fmt.Errorf("database: failed to insert user (username=%s): %w", user.Username, err)
	}
	return user, nil
}

func (db *Database) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return db.getUser(ctx, `WHERE id = $1`, id)
}

func (db *Database) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return db.getUser(ctx, `WHERE username = $1`, username)
}

func (db *Database) getUser(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := db.Pool.QueryRow(ctx, `SELECT id, username, full_name, password_hash, team, role, created_at, updated_at FROM tbl_user `+where, arg).Scan(
		&user.ID, &user.Username, &user.FullName, &user.PasswordHash, &user.Team, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("database: failed to scan user: %w", err)
	}
	return user, nil
}

type UpdateUserParams struct {
	FullName util.Optional[string]
	Team     util.Optional[string]
	Role     util.Optional[string]
}

func (db *Database) UpdateUserByID(ctx context.Context, id uuid.UUID, params UpdateUserParams) error {
	var query strings.Builder
	query.WriteString(`UPDATE tbl_user SET `)
	var args []any
	argNum := 1

	if params.FullName.IsSet {
		query.WriteString(fmt.Sprintf("full_name = $%d, ", argNum))
		args = append(args, params.FullName.Val)
		argNum++
	}
	if params.Team.IsSet {
		query.WriteString(fmt.Sprintf("team = $%d, ", argNum))
		args = append(args, params.Team.Val)
		argNum++
	}
	if params.Role.IsSet {
		query.WriteString(fmt.Sprintf("role = $%d, ", argNum))
		args = append(args, params.Role.Val)
		argNum++
	}

	query.WriteString(fmt.Sprintf("updated_at = $%d WHERE id = $%d", argNum, argNum+1))
	args = append(args, time.Now().UTC(), id)

	tag, err := db.Pool.Exec(ctx, query.String(), args...)
	if err != nil {
		return fmt.Errorf("database: failed to update user (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
