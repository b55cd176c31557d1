// Package notify delivers user notifications over WebSocket and suppresses
// duplicates that arrive within a short window.
package notify

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for notifications.
var (
	// ErrUnknownKind is returned for notification kinds outside the known set.
	ErrUnknownKind = errors.New("notify: unknown notification kind")
	// ErrEmptyMessage is returned when a notification has no message.
	ErrEmptyMessage = errors.New("notify: message is required")
	// ErrNoRecipient is returned when a notification has no user.
	ErrNoRecipient = errors.New("notify: user id is required")
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindFollow   Kind = "follow"
	KindFavorite Kind = "favorite"
	KindPurchase Kind = "purchase"
	KindSystem   Kind = "system"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindFollow, KindFavorite, KindPurchase, KindSystem:
		return true
	}
	return false
}

// Notification is a message for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the required fields.
func (n Notification) Validate() error {
	if n.UserID == "" {
		return ErrNoRecipient
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	if n.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}

// DedupKey identifies notifications that count as duplicates of each other.
func (n Notification) DedupKey() string {
	return n.UserID + "|" + string(n.Kind) + "|" + n.Message
}
