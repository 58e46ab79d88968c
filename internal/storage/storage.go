package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// Storage persists meeting audio recordings.
type Storage interface {
	// Store saves a recording and returns the storage key.
	Store(ctx context.Context, ownerID uuid.UUID, filename string, content io.Reader, contentType string) (string, error)

	// Retrieve gets a recording by storage key.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a recording by storage key.
	Delete(ctx context.Context, key string) error

	// GetURL returns a time-limited URL for downloading the recording.
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

var (
	ErrObjectNotFound = errors.New("storage: object not found")

	// ErrNoDirectURL means the backend cannot hand out download links;
	// callers should stream the object through Retrieve instead.
	ErrNoDirectURL = errors.New("storage: backend has no direct URLs")
)

type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

type Config struct {
	Type      Type
	LocalPath string
	S3Bucket  string
	S3Region  string
}
