package store

import (
	"context"
	"errors"
	"time"
)

// Registration links one Jira issue to one Slack thread.
//
// The (IssueID, ThreadID) pair is the compound key: a thread may be linked to
// many issues and an issue to many threads, but each pair exists at most once.
type Registration struct {
	IssueID  string
	ThreadID string
	// LinkID is the id of the remote link object inside Jira. Optional: a
	// record written by an older deployment may predate link tracking.
	LinkID    string
	CreatedAt time.Time
}

// Config configures the registration store.
//
// Driver values:
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the event workflows.
//
// Get returns (nil, nil) when no registration exists for the pair.
// Put overwrites any existing record for the same pair.
// QueryThread returns every registration of a thread, however many pages the
// backend needs to walk internally.
type Store interface {
	Get(ctx context.Context, issueID, threadID string) (*Registration, error)
	Put(ctx context.Context, reg Registration) error
	Delete(ctx context.Context, issueID, threadID string) error
	QueryThread(ctx context.Context, threadID string) ([]Registration, error)
	Close() error
}

var errUnknownDriver = errors.New("unknown store driver")
