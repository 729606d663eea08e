package storage

import (
	"context"

	"transferScope/internal/model"
)

// Storage is an append-only sink for decoded transfers. Batches are
// written in the order given.
type Storage interface {
	PutTransferBatch(ctx context.Context, transfers []model.Transfer) error
}
