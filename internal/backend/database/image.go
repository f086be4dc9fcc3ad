package database

import "time"

type Image struct {
	ID        string    `db:"id"`
	Filename  string    `db:"filename"`
	BlobKey   string    `db:"blob_key"` // opaque object store key, never exposed to clients
	CreatedAt time.Time `db:"created_at"`
	Tags      []*Tag
}

type Tag struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}
