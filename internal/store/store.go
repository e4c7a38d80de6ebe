package store

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKey is returned when a [Key] has an empty user or domain.
var ErrInvalidKey = errors.New("store: user and domain are required")

// Key scopes history to one user within one domain.
type Key struct {
	User   string
	Domain string
}

// Validate reports whether both parts of the key are set.
func (k Key) Validate() error {
	if k.User == "" || k.Domain == "" {
		return ErrInvalidKey
	}
	return nil
}

// Entry is the stored record of one finished session run.
type Entry struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id,omitempty"`
	Query  string `json:"query"`

	// Answer is the extracted display text on success.
	Answer string `json:"answer,omitempty"`

	// Error is the surfaced failure message, if any.
	Error string `json:"error,omitempty"`

	// State is the terminal session state: done, failed or cancelled.
	State string `json:"state"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store defines the history repository.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Append adds entry to the end of key's history.
	Append(ctx context.Context, key Key, entry Entry) error

	// List returns key's history, oldest first. An unknown key yields an
	// empty slice.
	List(ctx context.Context, key Key) ([]Entry, error)

	// Clear removes all of key's history.
	Clear(ctx context.Context, key Key) error
}
