package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/liarslock/internal/domain"
	"github.com/redis/go-redis/v9"
)

// finished matches stay readable for a week; the archive keeps them after.
const finishedMatchTTL = 7 * 24 * time.Hour

// RedisStore keeps documents as JSON strings and indexes as sorted sets.
// Transactions use WATCH/MULTI/EXEC on a dedicated connection.
type RedisStore struct {
	rdb  *redis.Client
	opts options
}

// OpenRedis connects to REDIS_URL style addresses and pings the server.
func OpenRedis(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	ropts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, opts...), nil
}

func NewRedisStore(rdb *redis.Client, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{rdb: rdb, opts: o}
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) keyMatch(id string) string { return s.opts.prefix + ":match:" + strings.TrimSpace(id) }
func (s *RedisStore) keyAgent(id string) string { return s.opts.prefix + ":agent:" + strings.TrimSpace(id) }
func (s *RedisStore) keyAgentName(name string) string {
	return s.opts.prefix + ":agent:name:" + nameKey(name)
}
func (s *RedisStore) keyAgentAPIKey(hash string) string {
	return s.opts.prefix + ":agent:key:" + strings.TrimSpace(hash)
}
func (s *RedisStore) keyActive(agentID string) string {
	return s.opts.prefix + ":active:" + strings.TrimSpace(agentID)
}
func (s *RedisStore) keyQueue() string       { return s.opts.prefix + ":queue" }
func (s *RedisStore) keyDeadlines() string   { return s.opts.prefix + ":deadlines" }
func (s *RedisStore) keyLeaderboard() string { return s.opts.prefix + ":leaderboard" }

func (s *RedisStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if s == nil || s.rdb == nil {
		return ErrClosed
	}
	for attempt := 1; attempt <= s.opts.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			rt := &redisTx{ctx: ctx, tx: tx, s: s, st: newStaging()}
			if err := fn(rt); err != nil {
				return err
			}
			if rt.st.empty() {
				return nil
			}
			return rt.commit()
		})
		if errors.Is(err, redis.TxFailedErr) {
			if s.opts.onConflict != nil {
				s.opts.onConflict(attempt)
			}
			if serr := sleepWithContext(ctx, retryBackoff(attempt)); serr != nil {
				return serr
			}
			continue
		}
		return err
	}
	return ErrConflict
}

type redisTx struct {
	ctx context.Context
	tx  *redis.Tx
	s   *RedisStore
	st  *staging
}

func (t *redisTx) watch(keys ...string) error {
	return t.tx.Watch(t.ctx, keys...).Err()
}

func (t *redisTx) Match(id string) (*domain.Match, error) {
	if m, ok := t.st.matches[id]; ok {
		return m.Clone(), nil
	}
	key := t.s.keyMatch(id)
	if err := t.watch(key); err != nil {
		return nil, err
	}
	return loadMatch(t.ctx, t.tx, key)
}

func (t *redisTx) Agent(id string) (*domain.Agent, error) {
	if a, ok := t.st.agents[id]; ok {
		return a.Clone(), nil
	}
	key := t.s.keyAgent(id)
	if err := t.watch(key); err != nil {
		return nil, err
	}
	var a domain.Agent
	ok, err := loadJSON(t.ctx, t.tx, key, &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (t *redisTx) AgentByName(name string) (*domain.Agent, error) {
	if a := t.st.agentByName(name); a != nil {
		return a, nil
	}
	key := t.s.keyAgentName(name)
	if err := t.watch(key); err != nil {
		return nil, err
	}
	id, err := t.tx.Get(t.ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.Agent(id)
}

func (t *redisTx) AgentCount() (int, error) {
	key := t.s.keyLeaderboard()
	if err := t.watch(key); err != nil {
		return 0, err
	}
	n, err := t.tx.ZCard(t.ctx, key).Result()
	if err != nil {
		return 0, err
	}
	var lookupErr error
	extra := t.st.newAgents(func(id string) bool {
		_, zerr := t.tx.ZScore(t.ctx, key, id).Result()
		if zerr != nil && zerr != redis.Nil {
			lookupErr = zerr
		}
		return zerr == nil
	})
	if lookupErr != nil {
		return 0, lookupErr
	}
	return int(n) + extra, nil
}

func (t *redisTx) ActiveMatchID(agentID string) (string, error) {
	if id, ok := t.st.active[agentID]; ok {
		return id, nil
	}
	key := t.s.keyActive(agentID)
	if err := t.watch(key); err != nil {
		return "", err
	}
	id, err := t.tx.Get(t.ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (t *redisTx) QueueEntry(agentID string) (*domain.QueueEntry, error) {
	if e, ok := t.st.queue[agentID]; ok {
		if e == nil {
			return nil, nil
		}
		c := *e
		return &c, nil
	}
	key := t.s.keyQueue()
	if err := t.watch(key); err != nil {
		return nil, err
	}
	score, err := t.tx.ZScore(t.ctx, key, agentID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.QueueEntry{AgentID: agentID, JoinedAt: time.UnixMilli(int64(score))}, nil
}

func (t *redisTx) Queued(limit int) ([]domain.QueueEntry, error) {
	key := t.s.keyQueue()
	if err := t.watch(key); err != nil {
		return nil, err
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit+len(t.st.queue)) - 1
	}
	zs, err := t.tx.ZRangeWithScores(t.ctx, key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	return t.st.mergeQueue(entriesFromZ(zs), limit), nil
}

func (t *redisTx) PutMatch(m *domain.Match)          { t.st.putMatch(m) }
func (t *redisTx) PutAgent(a *domain.Agent)          { t.st.putAgent(a) }
func (t *redisTx) SetActive(agentID, matchID string) { t.st.active[agentID] = matchID }
func (t *redisTx) ClearActive(agentID string)        { t.st.active[agentID] = "" }
func (t *redisTx) Enqueue(e domain.QueueEntry)       { t.st.enqueue(e) }
func (t *redisTx) Dequeue(agentID string)            { t.st.queue[agentID] = nil }

func (t *redisTx) commit() error {
	ctx, s := t.ctx, t.s
	type doc struct {
		key string
		raw []byte
		ttl time.Duration
	}
	var docs []doc
	for id, m := range t.st.matches {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal match %s: %w", id, err)
		}
		var ttl time.Duration
		if m.Terminal() {
			ttl = finishedMatchTTL
		}
		docs = append(docs, doc{key: s.keyMatch(id), raw: raw, ttl: ttl})
	}
	for id, a := range t.st.agents {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal agent %s: %w", id, err)
		}
		docs = append(docs, doc{key: s.keyAgent(id), raw: raw})
	}

	_, err := t.tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, d := range docs {
			p.Set(ctx, d.key, d.raw, d.ttl)
		}
		for id, m := range t.st.matches {
			if m.Terminal() {
				p.ZRem(ctx, s.keyDeadlines(), id)
			} else {
				p.ZAdd(ctx, s.keyDeadlines(), redis.Z{Score: float64(m.PhaseDeadline.UnixMilli()), Member: id})
			}
		}
		for id, a := range t.st.agents {
			p.Set(ctx, s.keyAgentName(a.Name), id, 0)
			if a.APIKeyHash != "" {
				p.Set(ctx, s.keyAgentAPIKey(a.APIKeyHash), id, 0)
			}
			p.ZAdd(ctx, s.keyLeaderboard(), redis.Z{Score: float64(a.Rating), Member: id})
		}
		for agentID, matchID := range t.st.active {
			if matchID == "" {
				p.Del(ctx, s.keyActive(agentID))
			} else {
				p.Set(ctx, s.keyActive(agentID), matchID, 0)
			}
		}
		for agentID, e := range t.st.queue {
			if e == nil {
				p.ZRem(ctx, s.keyQueue(), agentID)
			} else {
				p.ZAddNX(ctx, s.keyQueue(), redis.Z{Score: float64(e.JoinedAt.UnixMilli()), Member: agentID})
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) LoadMatch(ctx context.Context, id string) (*domain.Match, error) {
	return loadMatch(ctx, s.rdb, s.keyMatch(id))
}

func (s *RedisStore) LoadAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var a domain.Agent
	ok, err := loadJSON(ctx, s.rdb, s.keyAgent(id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (s *RedisStore) agentByIndex(ctx context.Context, key string) (*domain.Agent, error) {
	id, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.LoadAgent(ctx, id)
}

func (s *RedisStore) AgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	return s.agentByIndex(ctx, s.keyAgentName(name))
}

func (s *RedisStore) AgentByKeyHash(ctx context.Context, hash string) (*domain.Agent, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, nil
	}
	return s.agentByIndex(ctx, s.keyAgentAPIKey(hash))
}

func (s *RedisStore) ActiveMatchID(ctx context.Context, agentID string) (string, error) {
	id, err := s.rdb.Get(ctx, s.keyActive(agentID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (s *RedisStore) TopAgents(ctx context.Context, limit int) ([]*domain.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRevRange(ctx, s.keyLeaderboard(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := s.LoadAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *RedisStore) DueMatches(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.rdb.ZRangeByScore(ctx, s.keyDeadlines(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

func (s *RedisStore) QueueLength(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.keyQueue()).Result()
	return int(n), err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadJSON(ctx context.Context, g getter, key string, out any) (bool, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// loadMatch decodes a match document and rejects unknown phases.
func loadMatch(ctx context.Context, g getter, key string) (*domain.Match, error) {
	var m domain.Match
	ok, err := loadJSON(ctx, g, key, &m)
	if err != nil || !ok {
		return nil, err
	}
	if !m.Phase.Valid() {
		return nil, fmt.Errorf("decode %s: unknown phase %q", key, m.Phase)
	}
	return &m, nil
}

func entriesFromZ(zs []redis.Z) []domain.QueueEntry {
	out := make([]domain.QueueEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, domain.QueueEntry{AgentID: id, JoinedAt: time.UnixMilli(int64(z.Score))})
	}
	return out
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func retryBackoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(attempt) * 2 * time.Millisecond
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
