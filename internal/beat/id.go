package beat

import "github.com/google/uuid"

// NewID returns a new random beat ID.
func NewID() string {
	return uuid.NewString()
}

// IsValidID reports whether s has the shape of a beat ID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
