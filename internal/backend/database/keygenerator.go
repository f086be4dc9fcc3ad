package database

import "github.com/google/uuid"

// NewImageID returns the opaque identity assigned to an image at creation.
// UUIDv4 keeps ids collision-free across concurrent uploads without a
// database round trip.
func NewImageID() string {
	return uuid.NewString()
}

// NewTagID returns the identity for a newly created tag entity.
func NewTagID() string {
	return uuid.NewString()
}
