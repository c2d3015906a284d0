// Package agent is the thin identity collaborator of the match engine:
// development registration, bearer-key lookup and read models.
package agent

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/obslog"
	"github.com/park285/liarslock/internal/rating"
	"github.com/park285/liarslock/internal/store"
)

const (
	MinNameLen        = 2
	MaxNameLen        = 32
	apiKeyBytes       = 32
	BadgeEarlyAdopter = "early_adopter"
)

var (
	ErrInvalidName  = errors.New("agent: name must be 2-32 characters")
	ErrNameTaken    = errors.New("agent: name already taken")
	ErrUnauthorized = errors.New("agent: invalid api key")
	ErrNotFound     = errors.New("agent: not found")
)

type Registry struct {
	store store.Store
	now   func() time.Time
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, now: time.Now}
}

// Register creates an agent and returns it with its plaintext API key. Only
// the key's SHA-256 is stored.
func (r *Registry) Register(ctx context.Context, name string) (*domain.Agent, string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < MinNameLen || n > MaxNameLen {
		return nil, "", ErrInvalidName
	}
	key, err := newAPIKey()
	if err != nil {
		return nil, "", err
	}

	var created *domain.Agent
	err = r.store.Update(ctx, func(tx store.Tx) error {
		created = nil
		existing, err := tx.AgentByName(name)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrNameTaken
		}
		count, err := tx.AgentCount()
		if err != nil {
			return err
		}
		now := r.now()
		a := &domain.Agent{
			ID:           uuid.NewString(),
			Name:         name,
			Rating:       rating.InitialRating(count),
			APIKeyHash:   HashKey(key),
			CreatedAt:    now,
			LastActiveAt: now,
		}
		if count < rating.EarlyAdopterSeats {
			a.Badges = []string{BadgeEarlyAdopter}
		}
		tx.PutAgent(a)
		created = a
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	obslog.L().Info("agent_registered",
		zap.String("agent_id", created.ID),
		zap.String("name", created.Name),
		zap.Int("rating", created.Rating),
	)
	return created, key, nil
}

// Authenticate resolves an "Authorization: Bearer <key>" value or a bare
// key to its agent.
func (r *Registry) Authenticate(ctx context.Context, header string) (*domain.Agent, error) {
	key := strings.TrimSpace(header)
	if len(key) > 7 && strings.EqualFold(key[:7], "bearer ") {
		key = strings.TrimSpace(key[7:])
	}
	if key == "" {
		return nil, ErrUnauthorized
	}
	a, err := r.store.AgentByKeyHash(ctx, HashKey(key))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrUnauthorized
	}
	return a, nil
}

func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	a, err := r.store.LoadAgent(ctx, id)
	return a != nil, err
}

func (r *Registry) Get(ctx context.Context, id string) (*domain.Agent, error) {
	a, err := r.store.LoadAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (r *Registry) ByName(ctx context.Context, name string) (*domain.Agent, error) {
	a, err := r.store.AgentByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// Rating returns the current rating of id.
func (r *Registry) Rating(ctx context.Context, id string) (int, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.Rating, nil
}

// Leaderboard lists agents by rating, highest first.
func (r *Registry) Leaderboard(ctx context.Context, limit int) ([]*domain.Agent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return r.store.TopAgents(ctx, limit)
}

// HashKey is the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "ll_" + hex.EncodeToString(b), nil
}
