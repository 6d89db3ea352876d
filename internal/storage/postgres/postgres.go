// Package postgres stores snapshots as rows of JSONB documents. Only the
// newest few rows are kept.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/princekumarofficial/winsome/internal/config"
	"github.com/princekumarofficial/winsome/internal/storage"
)

// keepSnapshots is how many rows survive each save.
const keepSnapshots = 5

type Postgres struct {
	Db     *sql.DB
	logger *slog.Logger
}

// DSN renders the connection string for cfg.
func DSN(cfg config.PQSQL) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

func NewPostgres(ctx context.Context, cfg config.PQSQL, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to Postgres database")

	pg := &Postgres{Db: db, logger: logger}
	if err := pg.CreateTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id SERIAL PRIMARY KEY,
		users JSONB NOT NULL,
		posts JSONB NOT NULL,
		next_post_id BIGINT NOT NULL,
		next_comment_id BIGINT NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := p.Db.ExecContext(ctx, query); err != nil {
		// Concurrent CREATE IF NOT EXISTS can still race on the catalog.
		var perr *pq.Error
		if errors.As(err, &perr) && perr.Code.Name() == "unique_violation" {
			p.logger.Warn("Snapshot table created concurrently", slog.String("code", perr.Code.Name()))
			return nil
		}
		return err
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, snap *storage.Snapshot) error {
	tx, err := p.Db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
	INSERT INTO snapshots (users, posts, next_post_id, next_comment_id, taken_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, query,
		[]byte(snap.Users), []byte(snap.Posts), snap.NextPostID, snap.NextCommentID, snap.TakenAt)
	if err != nil {
		return describe(err)
	}

	prune := `
	DELETE FROM snapshots
	WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT $1)
	`
	if _, err := tx.ExecContext(ctx, prune, keepSnapshots); err != nil {
		return describe(err)
	}

	return tx.Commit()
}

func (p *Postgres) Load(ctx context.Context) (*storage.Snapshot, error) {
	query := `
	SELECT users, posts, next_post_id, next_comment_id, taken_at
	FROM snapshots
	ORDER BY id DESC
	LIMIT 1
	`

	var (
		snap         storage.Snapshot
		users, posts []byte
	)
	err := p.Db.QueryRowContext(ctx, query).Scan(&users, &posts, &snap.NextPostID, &snap.NextCommentID, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoSnapshot
	}
	if err != nil {
		return nil, describe(err)
	}

	snap.Users, snap.Posts = users, posts
	return &snap, nil
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

// describe prefixes postgres errors with their condition name.
func describe(err error) error {
	var perr *pq.Error
	if errors.As(err, &perr) {
		return fmt.Errorf("postgres %s: %w", perr.Code.Name(), err)
	}
	return err
}
