package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}

	// SQLite supports a single writer; serializing writes through one
	// connection also keeps an in-memory database from being dropped between
	// pool connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS image_tags (
			image_id TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			tag_id TEXT NOT NULL REFERENCES tags(id),
			PRIMARY KEY (image_id, tag_id)
		)`,
	}
	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return nil, err
		}
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateImage(ctx context.Context, image *Image, tagNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO images (id, filename, blob_key, created_at) VALUES (?, ?, ?, ?)",
		image.ID, image.Filename, image.BlobKey, image.CreatedAt)
	if err != nil {
		return err
	}

	tags, err := upsertTags(ctx, tx, tagNames)
	if err != nil {
		return err
	}
	if err := insertAssociations(ctx, tx, image.ID, tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	image.Tags = tags
	return nil
}

func (s *SQLiteDatabase) GetImageByID(ctx context.Context, id string) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, filename, blob_key, created_at FROM images WHERE id = ?", id)

	var image Image
	if err := row.Scan(&image.ID, &image.Filename, &image.BlobKey, &image.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}

	tags, err := s.tagsForImage(ctx, image.ID)
	if err != nil {
		return nil, err
	}
	image.Tags = tags

	return &image, nil
}

func (s *SQLiteDatabase) GetAllImages(ctx context.Context) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, filename, blob_key, created_at FROM images ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var images []*Image
	for rows.Next() {
		var image Image
		if err := rows.Scan(&image.ID, &image.Filename, &image.BlobKey, &image.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, &image)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, image := range images {
		tags, err := s.tagsForImage(ctx, image.ID)
		if err != nil {
			return nil, err
		}
		image.Tags = tags
	}
	return images, nil
}

func (s *SQLiteDatabase) UpdateFilename(ctx context.Context, id string, filename string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE images SET filename = ? WHERE id = ?", filename, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (s *SQLiteDatabase) ReplaceTags(ctx context.Context, imageID string, tagNames []string) ([]*Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM images WHERE id = ?", imageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM image_tags WHERE image_id = ?", imageID); err != nil {
		return nil, err
	}

	tags, err := upsertTags(ctx, tx, tagNames)
	if err != nil {
		return nil, err
	}
	if err := insertAssociations(ctx, tx, imageID, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *SQLiteDatabase) DeleteImage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
	return err
}

// upsertTags resolves every name to a tag row, creating missing ones.
// ON CONFLICT DO NOTHING followed by a select keeps concurrent creation of
// the same name from producing duplicates: the unique constraint arbitrates
// and both callers read back the surviving row.
func upsertTags(ctx context.Context, tx *sql.Tx, tagNames []string) ([]*Tag, error) {
	tags := make([]*Tag, 0, len(tagNames))
	seen := make(map[string]bool, len(tagNames))

	for _, name := range tagNames {
		if name == "" {
			return nil, errors.New("tag name must not be empty")
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		_, err := tx.ExecContext(ctx,
			"INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
			NewTagID(), name)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert tag %q: %w", name, err)
		}

		var tag Tag
		err = tx.QueryRowContext(ctx, "SELECT id, name FROM tags WHERE name = ?", name).
			Scan(&tag.ID, &tag.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tag %q: %w", name, err)
		}
		tags = append(tags, &tag)
	}
	return tags, nil
}

func insertAssociations(ctx context.Context, tx *sql.Tx, imageID string, tags []*Tag) error {
	for _, tag := range tags {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO image_tags (image_id, tag_id) VALUES (?, ?)",
			imageID, tag.ID)
		if err != nil {
			return fmt.Errorf("failed to associate tag %q: %w", tag.Name, err)
		}
	}
	return nil
}

// tagsForImage returns the image's tags in association insertion order, so
// responses echo tags in the order the client sent them.
func (s *SQLiteDatabase) tagsForImage(ctx context.Context, imageID string) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.name FROM tags t
		JOIN image_tags it ON it.tag_id = t.id
		WHERE it.image_id = ?
		ORDER BY it.rowid`, imageID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tags []*Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}
