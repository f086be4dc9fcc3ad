package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrImageNotFound is returned by read and update operations when no image
// row exists for the requested id.
var ErrImageNotFound = errors.New("image not found")

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// CreateImage inserts the image row, resolves all tag names (creating
	// missing ones) and writes the associations in a single transaction, so a
	// failure on any tag leaves no partial image behind.
	CreateImage(ctx context.Context, image *Image, tagNames []string) error
	GetImageByID(ctx context.Context, id string) (*Image, error)
	GetAllImages(ctx context.Context) ([]*Image, error)
	UpdateFilename(ctx context.Context, id string, filename string) error

	// ReplaceTags substitutes the image's tag set with exactly tagNames.
	// Delete-then-insert runs in one transaction; on failure the prior set
	// stays intact.
	ReplaceTags(ctx context.Context, imageID string, tagNames []string) ([]*Tag, error)
	DeleteImage(ctx context.Context, id string) error
}
