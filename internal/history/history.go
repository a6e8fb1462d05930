// Package history records discovery sessions in Postgres.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flexfinder/internal/logger"
	"flexfinder/internal/resolver"
)

const schema = `
CREATE TABLE IF NOT EXISTS discovery_history (
	session_id   UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	target_mac   TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	resolved_ip  TEXT,
	probed       INTEGER NOT NULL,
	responders   INTEGER NOT NULL,
	elapsed_ms   BIGINT NOT NULL
)`

const insert = `
INSERT INTO discovery_history
	(session_id, started_at, target_mac, outcome, resolved_ip, probed, responders, elapsed_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Execer is the subset of pgxpool.Pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one row of discovery history.
type Entry struct {
	SessionID  string
	StartedAt  time.Time
	TargetMAC  string
	Outcome    string
	ResolvedIP string
	Probed     int
	Responders int
	Elapsed    time.Duration
}

// FromSession flattens a finished session.
func FromSession(s *resolver.Session) Entry {
	e := Entry{
		SessionID:  s.ID.String(),
		StartedAt:  s.Started,
		TargetMAC:  s.Target.MAC,
		Outcome:    string(s.State),
		Probed:     s.Report.Probed,
		Responders: len(s.Report.Responders),
		Elapsed:    s.Elapsed(),
	}

	if s.Target.Resolved() {
		e.ResolvedIP = s.Target.ResolvedIP.String()
	}

	return e
}

type Store struct {
	db     Execer
	logger logger.Logger
}

func NewStore(db Execer, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Store{db: db, logger: log.WithComponent("history")}
}

// Open connects to dsn and makes sure the table exists. The returned func
// closes the pool.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := NewStore(pool, log)

	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return s, pool.Close, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating discovery_history: %w", err)
	}

	return nil
}

// Record inserts e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.SessionID == "" || e.TargetMAC == "" {
		return errors.New("history entry needs a session id and target MAC")
	}

	var ip *string
	if e.ResolvedIP != "" {
		ip = &e.ResolvedIP
	}

	tag, err := s.db.Exec(ctx, insert,
		e.SessionID, e.StartedAt, e.TargetMAC, e.Outcome, ip, e.Probed, e.Responders, e.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording session %s: %w", e.SessionID, err)
	}

	s.logger.Debug().Str("session", e.SessionID).Int64("rows", tag.RowsAffected()).Msg("session recorded")

	return nil
}
