// Package source provides log sources the pagination loop pulls pages from.
package source

import (
	"context"

	"transferScope/internal/model"
)

// Request describes one page of logs.
type Request struct {
	// Address is the contract address, matched exactly.
	Address string
	// Topic0 is the event signature, matched exactly.
	Topic0 string
	// PageSize bounds the number of logs returned.
	PageSize int
	// UntilBlock is an inclusive upper bound. Nil fetches the most recent logs.
	UntilBlock *uint64
}

// LogSource returns up to PageSize logs sorted by block number descending.
type LogSource interface {
	FetchLogs(ctx context.Context, req Request) ([]model.RawLog, error)
}
