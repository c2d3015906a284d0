// Package store is the transactional document store behind the match
// engine. Every mutation runs as an optimistic transaction: reads made
// through a Tx are watched, writes are staged and committed atomically only
// if nothing that was read changed in the meantime.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/liarslock/internal/domain"
)

var (
	// ErrConflict is returned when a transaction kept losing to concurrent
	// writers and ran out of retries.
	ErrConflict = errors.New("store: transaction conflict")
	ErrClosed   = errors.New("store: closed")
)

const DefaultMaxRetries = 8

// Tx is the view of the store inside one transaction. Read methods return
// (nil, nil) for a missing document. Staged writes are visible to later
// reads in the same transaction.
type Tx interface {
	Match(id string) (*domain.Match, error)
	Agent(id string) (*domain.Agent, error)
	AgentByName(name string) (*domain.Agent, error)
	AgentCount() (int, error)
	ActiveMatchID(agentID string) (string, error)
	QueueEntry(agentID string) (*domain.QueueEntry, error)
	// Queued returns up to limit waiting entries, oldest first.
	Queued(limit int) ([]domain.QueueEntry, error)

	PutMatch(m *domain.Match)
	PutAgent(a *domain.Agent)
	SetActive(agentID, matchID string)
	ClearActive(agentID string)
	Enqueue(e domain.QueueEntry)
	Dequeue(agentID string)
}

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	// Update runs fn in a transaction, retrying it on conflict. fn may run
	// more than once and must not have side effects outside tx. Returning
	// an error from fn discards every staged write.
	Update(ctx context.Context, fn func(tx Tx) error) error

	LoadMatch(ctx context.Context, id string) (*domain.Match, error)
	LoadAgent(ctx context.Context, id string) (*domain.Agent, error)
	AgentByName(ctx context.Context, name string) (*domain.Agent, error)
	AgentByKeyHash(ctx context.Context, hash string) (*domain.Agent, error)
	ActiveMatchID(ctx context.Context, agentID string) (string, error)
	// TopAgents returns agents by rating, highest first.
	TopAgents(ctx context.Context, limit int) ([]*domain.Agent, error)
	// DueMatches returns ids of non-terminal matches whose deadline is
	// strictly before now, earliest first.
	DueMatches(ctx context.Context, now time.Time, limit int) ([]string, error)
	QueueLength(ctx context.Context) (int, error)
	Close() error
}

// ConflictObserver is notified on every optimistic retry.
type ConflictObserver func(attempt int)
