package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/pkg/matchdto"
)

// Schema creates the archive table. EnsureSchema applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS match_results (
	match_id             TEXT PRIMARY KEY,
	player1_id           TEXT NOT NULL,
	player2_id           TEXT NOT NULL,
	winner               TEXT NOT NULL,
	phase                TEXT NOT NULL,
	resolution           TEXT NOT NULL,
	player1_rating_delta INTEGER NOT NULL DEFAULT 0,
	player2_rating_delta INTEGER NOT NULL DEFAULT 0,
	player1_choice       SMALLINT,
	player2_choice       SMALLINT,
	player1_guess        SMALLINT,
	player2_guess        SMALLINT,
	created_at           TIMESTAMPTZ NOT NULL,
	completed_at         TIMESTAMPTZ NOT NULL,
	duration_ms          BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS match_results_completed_idx ON match_results (completed_at DESC);
CREATE INDEX IF NOT EXISTS match_results_player1_idx ON match_results (player1_id, completed_at DESC);
CREATE INDEX IF NOT EXISTS match_results_player2_idx ON match_results (player2_id, completed_at DESC);
`

const selectColumns = `match_id, player1_id, player2_id, winner, phase, resolution,
	player1_rating_delta, player2_rating_delta,
	player1_choice, player2_choice, player1_guess, player2_guess,
	created_at, completed_at`

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the pool settings used for every database
// handle in this service.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure match_results schema: %w", err)
	}
	return nil
}

// SaveResult inserts a finished match once; later saves of the same id are
// ignored.
func (p *Postgres) SaveResult(ctx context.Context, m *domain.Match) error {
	r := ResultOf(m)
	if p == nil || p.db == nil || r == nil {
		return nil
	}
	const q = `INSERT INTO match_results (
		match_id, player1_id, player2_id, winner, phase, resolution,
		player1_rating_delta, player2_rating_delta,
		player1_choice, player2_choice, player1_guess, player2_guess,
		created_at, completed_at, duration_ms
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (match_id) DO NOTHING`
	_, err := p.db.ExecContext(ctx, q,
		r.MatchID, r.Player1, r.Player2, r.Winner, r.Phase, r.Resolution,
		r.Player1RatingDelta, r.Player2RatingDelta,
		nullInt(r.Player1Choice), nullInt(r.Player2Choice),
		nullInt(r.Player1Guess), nullInt(r.Player2Guess),
		r.CreatedAt, r.CompletedAt, durationMillis(r),
	)
	if err != nil {
		return fmt.Errorf("insert match result %s: %w", r.MatchID, err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]*matchdto.MatchResult, error) {
	q := `SELECT ` + selectColumns + ` FROM match_results ORDER BY completed_at DESC, match_id DESC LIMIT $1`
	return p.query(ctx, q, clampLimit(limit))
}

func (p *Postgres) ByAgent(ctx context.Context, agentID string, limit int) ([]*matchdto.MatchResult, error) {
	q := `SELECT ` + selectColumns + ` FROM match_results
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY completed_at DESC, match_id DESC LIMIT $2`
	return p.query(ctx, q, strings.TrimSpace(agentID), clampLimit(limit))
}

func (p *Postgres) query(ctx context.Context, q string, args ...any) ([]*matchdto.MatchResult, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*matchdto.MatchResult, 0)
	for rows.Next() {
		var (
			r              matchdto.MatchResult
			c1, c2, g1, g2 sql.NullInt16
		)
		if err := rows.Scan(
			&r.MatchID, &r.Player1, &r.Player2, &r.Winner, &r.Phase, &r.Resolution,
			&r.Player1RatingDelta, &r.Player2RatingDelta,
			&c1, &c2, &g1, &g2,
			&r.CreatedAt, &r.CompletedAt,
		); err != nil {
			return nil, err
		}
		r.Player1Choice, r.Player2Choice = fromNull(c1), fromNull(c2)
		r.Player1Guess, r.Player2Guess = fromNull(g1), fromNull(g2)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func nullInt(p *int) sql.NullInt16 {
	if p == nil {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(*p), Valid: true}
}

func fromNull(n sql.NullInt16) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int16)
	return &v
}
