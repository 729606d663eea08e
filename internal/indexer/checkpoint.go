package indexer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"transferScope/internal/model"
	"transferScope/internal/storage/postgres"
)

// CheckpointStore persists the pagination cursor of one token.
type CheckpointStore interface {
	Load(ctx context.Context, token string) (model.Checkpoint, bool, error)
	Save(ctx context.Context, cp model.Checkpoint) error
}

// FileCheckpointStore keeps one JSON checkpoint per token under dir.
type FileCheckpointStore struct {
	dir string
}

var _ CheckpointStore = (*FileCheckpointStore)(nil)

func NewFileCheckpointStore(dir string) *FileCheckpointStore {
	return &FileCheckpointStore{dir: dir}
}

// Path returns the checkpoint file used for token.
func (c *FileCheckpointStore) Path(token string) string {
	return filepath.Join(c.dir, strings.ToLower(token)+".json")
}

func (c *FileCheckpointStore) Load(_ context.Context, token string) (model.Checkpoint, bool, error) {
	path := c.Path(token)
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, errors.Wrap(err, "stat checkpoint")
	}
	if stat.IsDir() {
		return model.Checkpoint{}, false, errors.New("checkpoint path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Checkpoint{}, false, errors.Wrap(err, "read checkpoint")
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, false, errors.Wrap(err, "parse checkpoint")
	}
	if !strings.EqualFold(cp.Token, token) {
		return model.Checkpoint{}, false, errors.Newf("checkpoint token mismatch: %s", cp.Token)
	}

	return cp, true, nil
}

func (c *FileCheckpointStore) Save(_ context.Context, cp model.Checkpoint) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "create checkpoint dir")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}

	path := c.Path(cp.Token)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write checkpoint tmp")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "rename checkpoint")
	}

	return nil
}

// DBCheckpointStore keeps checkpoints in the transfer_cursors table.
type DBCheckpointStore struct {
	store *postgres.Store
}

var _ CheckpointStore = (*DBCheckpointStore)(nil)

func NewDBCheckpointStore(store *postgres.Store) *DBCheckpointStore {
	return &DBCheckpointStore{store: store}
}

func (c *DBCheckpointStore) Load(ctx context.Context, token string) (model.Checkpoint, bool, error) {
	if c.store == nil {
		return model.Checkpoint{}, false, errors.New("postgres store is nil")
	}
	return c.store.LoadCheckpoint(ctx, token)
}

func (c *DBCheckpointStore) Save(ctx context.Context, cp model.Checkpoint) error {
	if c.store == nil {
		return errors.New("postgres store is nil")
	}
	return c.store.SaveCheckpoint(ctx, cp)
}
