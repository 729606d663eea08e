package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferScope/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS transfers (
	address           TEXT          NOT NULL,
	block_number      BIGINT        NOT NULL,
	transaction_index BIGINT        NOT NULL,
	log_index         BIGINT        NOT NULL,
	timestamp         BIGINT        NOT NULL,
	from_address      TEXT          NOT NULL,
	to_address        TEXT          NOT NULL,
	value             NUMERIC(78,0) NOT NULL,
	block_hash        TEXT,
	transaction_hash  TEXT          NOT NULL,
	created_at        TIMESTAMPTZ   NOT NULL DEFAULT now(),
	PRIMARY KEY (address, block_number, transaction_index, log_index)
);

CREATE TABLE IF NOT EXISTS transfer_cursors (
	token            TEXT        PRIMARY KEY,
	last_block       BIGINT      NOT NULL,
	last_tx_index    BIGINT      NOT NULL,
	last_log_index   BIGINT      NOT NULL,
	boundary_visited JSONB       NOT NULL DEFAULT '[]',
	persisted        BIGINT      NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for transfers and cursors.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "create schema")
	}
	return nil
}

// PutTransferBatch inserts transfers, skipping rows already stored.
func (s *Store) PutTransferBatch(ctx context.Context, transfers []model.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range transfers {
		batch.Queue(`
			INSERT INTO transfers (
				address, block_number, transaction_index, log_index, timestamp,
				from_address, to_address, value, block_hash, transaction_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10)
			ON CONFLICT (address, block_number, transaction_index, log_index) DO NOTHING
		`,
			strings.ToLower(t.Address),
			int64(t.BlockNumber),
			int64(t.TransactionIndex),
			int64(t.LogIndex),
			int64(t.Timestamp),
			t.Args.From,
			t.Args.To,
			t.Args.Value,
			t.BlockHash,
			t.TransactionHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transfers {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, "insert transfer")
		}
	}
	return nil
}

// LoadCheckpoint returns the stored cursor of a token.
func (s *Store) LoadCheckpoint(ctx context.Context, token string) (model.Checkpoint, bool, error) {
	if token == "" {
		return model.Checkpoint{}, false, errors.New("token required")
	}

	var (
		cp      model.Checkpoint
		lastBlk int64
		lastTx  int64
		lastLog int64
		visited []byte
		total   int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT last_block, last_tx_index, last_log_index, boundary_visited::text, persisted, updated_at::text
		FROM transfer_cursors WHERE token=$1
	`, strings.ToLower(token))
	if err := row.Scan(&lastBlk, &lastTx, &lastLog, &visited, &total, &cp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}
	if err := json.Unmarshal(visited, &cp.BoundaryVisited); err != nil {
		return model.Checkpoint{}, false, errors.Wrap(err, "parse boundary visited")
	}

	cp.Token = token
	cp.LastBlock = uint64(lastBlk)
	cp.LastTxIndex = uint64(lastTx)
	cp.LastLogIndex = uint64(lastLog)
	cp.Persisted = int(total)
	return cp, true, nil
}

// SaveCheckpoint upserts the cursor of a token.
func (s *Store) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	if cp.Token == "" {
		return errors.New("token required")
	}
	visited, err := json.Marshal(cp.BoundaryVisited)
	if err != nil {
		return errors.Wrap(err, "marshal boundary visited")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transfer_cursors (token, last_block, last_tx_index, last_log_index, boundary_visited, persisted, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, now())
		ON CONFLICT (token) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			last_tx_index = EXCLUDED.last_tx_index,
			last_log_index = EXCLUDED.last_log_index,
			boundary_visited = EXCLUDED.boundary_visited,
			persisted = EXCLUDED.persisted,
			updated_at = now()
	`,
		strings.ToLower(cp.Token),
		int64(cp.LastBlock),
		int64(cp.LastTxIndex),
		int64(cp.LastLogIndex),
		string(visited),
		int64(cp.Persisted),
	)
	return err
}
