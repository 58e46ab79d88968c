package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"juntify/internal/database"
	"juntify/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Store is the slice of the database layer the user manager needs.
// *database.Database satisfies it.
type Store interface {
	CreateUser(ctx context.Context, params database.CreateUserParams) (database.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	UpdateUserByID(ctx context.Context, id uuid.UUID, params database.UpdateUserParams) error
}

type Manager struct {
	logger *slog.Logger
	db     Store
}

func NewManager(logger *slog.Logger, db Store) Manager {
	return Manager{logger: logger, db: db}
}

// User is the identity record exposed to handlers; it never carries the
// password hash.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Team      string    `json:"team"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterParams struct {
	Username string
	Password string
	FullName string
	Team     string
}

func (m *Manager) Register(ctx context.Context, params RegisterParams) (User, error) {
	username := NormalizeUsername(params.Username)

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	dbUser, err := m.db.CreateUser(ctx, database.CreateUserParams{
		Username:     username,
		FullName:     params.FullName,
		PasswordHash: string(hash),
		Team:         params.Team,
		Role:         "member",
	})
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	m.logger.Info("User registered", "user_id", dbUser.ID, "username", dbUser.Username)
	return fromDB(dbUser), nil
}

// Authenticate verifies username/password and returns the user. Lookup
// failure and password mismatch produce the same error so usernames cannot
// be enumerated.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (User, error) {
	dbUser, err := m.db.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(dbUser.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return fromDB(dbUser), nil
}

// Lookup resolves a username to its user record; the one canonical identity
// lookup used by both the session and the legacy header scheme.
func (m *Manager) Lookup(ctx context.Context, username string) (User, error) {
	dbUser, err := m.db.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return fromDB(dbUser), nil
}

func (m *Manager) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	dbUser, err := m.db.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return fromDB(dbUser), nil
}

type UpdateProfileParams struct {
	FullName util.Optional[string]
	Team     util.Optional[string]
}

func (m *Manager) UpdateProfile(ctx context.Context, id uuid.UUID, params UpdateProfileParams) (User, error) {
	if err := m.db.UpdateUserByID(ctx, id, database.UpdateUserParams{
		FullName: params.FullName,
		Team:     params.Team,
	}); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("failed to update user %s: %w", id, err)
	}

	dbUser, err := m.db.GetUserByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("failed to reload user %s: %w", id, err)
	}

	m.logger.Info("User profile updated", "user_id", id)
	return fromDB(dbUser), nil
}

// NormalizeUsername lowercases and trims; usernames are case-insensitive.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func fromDB(u database.User) User {
	return User{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Team:      u.Team,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
