package taskpoll

import (
	"context"

	"github.com/jpalmerr/taskpoll/internal/store"
)

// HistoryKey scopes recorded runs to one user within one domain.
type HistoryKey = store.Key

// HistoryEntry is the record of one finished run.
type HistoryEntry = store.Entry

// HistoryStore is a full history repository: append, list and clear.
type HistoryStore = store.Store

// History receives finished runs from a [Session]. Every [HistoryStore]
// satisfies it.
type History interface {
	Append(ctx context.Context, key HistoryKey, entry HistoryEntry) error
}

// NewMemoryHistory returns an in-process [HistoryStore]. A positive limit
// keeps only the newest entries per key.
func NewMemoryHistory(limit int) HistoryStore {
	return store.NewMemoryStore(limit)
}
