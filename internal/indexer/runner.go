package indexer

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"transferScope/internal/erc20"
	"transferScope/internal/errs"
	"transferScope/internal/model"
	"transferScope/internal/source"
	"transferScope/internal/storage"
)

// RunConfig holds runtime settings for one token run.
type RunConfig struct {
	Token          string
	EventSignature string
	PageSize       int
	// MaxIterations bounds the number of page fetches. Zero means no bound.
	MaxIterations   int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	// Out describes the sink target in progress logs.
	Out string
}

// State is the pagination state of a Runner.
type State string

const (
	StateFetching State = "fetching"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// StopReason tells why a run reached StateDone.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopBudget    StopReason = "budget"
)

// Cursor is the position of the last persisted transfer.
type Cursor struct {
	LastBlock    uint64
	LastTxIndex  uint64
	LastLogIndex uint64
}

// Result summarizes a run.
type Result struct {
	Token      string
	Persisted  int
	Fetches    int
	Rejected   int
	Duplicates int
	Cursor     *Cursor
	State      State
	Reason     StopReason
	Elapsed    time.Duration
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithCheckpoint enables resuming from and saving to store.
func WithCheckpoint(store CheckpointStore) RunnerOption {
	return func(r *Runner) {
		r.checkpoint = store
	}
}

// WithClock overrides the time source used for elapsed times.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner pages backward through the transfer history of one token and
// writes decoded transfers to storage.
type Runner struct {
	cfg        RunConfig
	source     source.LogSource
	storage    storage.Storage
	logger     *zap.Logger
	checkpoint CheckpointStore
	now        func() time.Time

	visited *VisitedSet
	cursor  *Cursor
	state   State
	// carried over from a checkpoint
	basePersisted int
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, src source.LogSource, storageSink storage.Storage, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		source:  src,
		storage: storageSink,
		logger:  logger.With(zap.String("token", cfg.Token)),
		now:     time.Now,
		visited: NewVisitedSet(),
		state:   StateFetching,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current pagination state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the pagination loop until the source is exhausted or the
// fetch budget is spent.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	result := Result{Token: r.cfg.Token, State: r.state}
	if r.source == nil {
		return result, errors.New("log source is nil")
	}
	if r.storage == nil {
		return result, errors.New("storage is nil")
	}
	if strings.TrimSpace(r.cfg.Token) == "" {
		return result, errors.Mark(errors.New("token is required"), errs.InvalidConfig)
	}
	if r.cfg.PageSize <= 0 {
		return result, errors.Mark(errors.New("page size must be greater than zero"), errs.InvalidConfig)
	}
	if r.cfg.MaxIterations < 0 {
		return result, errors.Mark(errors.New("max iterations must not be negative"), errs.InvalidConfig)
	}

	decoder, err := erc20.NewTransferDecoder(erc20.DecoderConfig{EventSignature: r.cfg.EventSignature})
	if err != nil {
		return result, errors.Mark(err, errs.InvalidConfig)
	}

	start := r.now()
	finish := func() Result {
		result.State = r.state
		result.Cursor = r.Cursor()
		result.Elapsed = r.now().Sub(start)
		return result
	}

	if err := r.resume(ctx); err != nil {
		return finish(), err
	}

	r.logger.Info("run start",
		zap.String("signature", decoder.Signature()),
		zap.Int("page_size", r.cfg.PageSize),
		zap.Int("max_iterations", r.cfg.MaxIterations),
		zap.String("out", r.cfg.Out),
	)

	for r.cfg.MaxIterations == 0 || result.Fetches < r.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		r.state = StateFetching
		req := source.Request{
			Address:    r.cfg.Token,
			Topic0:     decoder.Signature(),
			PageSize:   r.cfg.PageSize,
			UntilBlock: r.upperBound(),
		}
		logs, err := r.fetchWithRetry(ctx, req)
		result.Fetches++
		if err != nil {
			if ctx.Err() != nil {
				return finish(), err
			}
			return finish(), errors.Wrapf(errors.Mark(err, errs.SourceFailure), "fetch page %d", result.Fetches)
		}

		r.state = StateDraining
		batch, rejected, duplicates, err := r.drain(decoder, logs)
		result.Rejected += rejected
		result.Duplicates += duplicates
		if err != nil {
			return finish(), errors.Wrapf(errors.Mark(err, errs.SourceFailure), "decode page %d", result.Fetches)
		}

		if len(batch) == 0 {
			if duplicates > 0 && len(logs) >= r.cfg.PageSize {
				// A full page of already persisted transfers: the cursor block
				// holds at least a page of transfers and older blocks are unreachable.
				r.logger.Warn("page holds only visited transfers",
					zap.Uint64("block", r.cursor.LastBlock),
					zap.Int("page_size", r.cfg.PageSize),
					zap.Int("duplicates", duplicates),
				)
			}
			r.state = StateDone
			result.Reason = StopExhausted
			r.logComplete(result, start)
			return finish(), nil
		}

		if err := r.storage.PutTransferBatch(ctx, batch); err != nil {
			return finish(), errors.Wrap(errors.Mark(err, errs.SinkFailure), "store transfers")
		}
		result.Persisted += len(batch)
		r.advance(batch)

		if err := r.saveCheckpoint(ctx, result.Persisted); err != nil {
			return finish(), errors.Wrap(errors.Mark(err, errs.CheckpointFailure), "save checkpoint")
		}

		r.logger.Info("page saved",
			zap.Uint64("from_block", batch[len(batch)-1].BlockNumber),
			zap.Uint64("until_block", batch[0].BlockNumber),
			zap.Stringer("cursor", batch[len(batch)-1].Identity()),
			zap.Int("batch", len(batch)),
			zap.Int("total", r.basePersisted+result.Persisted),
			zap.Duration("elapsed", r.now().Sub(start)),
			zap.String("out", r.cfg.Out),
		)
	}

	r.state = StateDone
	result.Reason = StopBudget
	r.logComplete(result, start)
	return finish(), nil
}

// Cursor returns a copy of the current cursor, or nil before the first
// persisted batch.
func (r *Runner) Cursor() *Cursor {
	if r.cursor == nil {
		return nil
	}
	c := *r.cursor
	return &c
}

func (r *Runner) upperBound() *uint64 {
	if r.cursor == nil {
		return nil
	}
	bound := r.cursor.LastBlock
	return &bound
}

func (r *Runner) fetchWithRetry(ctx context.Context, req source.Request) ([]model.RawLog, error) {
	var logs []model.RawLog
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.cfg.RetryMaxBackoff,
		func(attempt uint, err error) {
			fields := []zap.Field{zap.Uint("attempt", attempt+1), zap.Error(err)}
			if req.UntilBlock != nil {
				fields = append(fields, zap.Uint64("until_block", *req.UntilBlock))
			}
			r.logger.Warn("fetch logs failed", fields...)
		},
		func(ctx context.Context) error {
			page, err := r.source.FetchLogs(ctx, req)
			if err != nil {
				return err
			}
			logs = page
			return nil
		},
	)
	return logs, err
}

// drain decodes a page in order, dropping rejected and already visited logs.
func (r *Runner) drain(decoder *erc20.TransferDecoder, logs []model.RawLog) ([]model.Transfer, int, int, error) {
	batch := make([]model.Transfer, 0, len(logs))
	var rejected, duplicates int
	for i, raw := range logs {
		transfer, reason, err := decoder.Decode(raw)
		if err != nil {
			return nil, rejected, duplicates, errors.Wrapf(err, "log %d", i)
		}
		if reason.Rejected() {
			rejected++
			continue
		}
		if r.visited.Contains(transfer.Identity()) {
			duplicates++
			continue
		}
		batch = append(batch, transfer)
	}
	return batch, rejected, duplicates, nil
}

// advance moves the cursor to the last transfer of a persisted batch and
// marks every transfer of the cursor block as visited, since the next
// page starts at that block again.
func (r *Runner) advance(batch []model.Transfer) {
	last := batch[len(batch)-1]
	r.cursor = &Cursor{
		LastBlock:    last.BlockNumber,
		LastTxIndex:  last.TransactionIndex,
		LastLogIndex: last.LogIndex,
	}
	for _, transfer := range batch {
		if transfer.BlockNumber == last.BlockNumber {
			r.visited.Add(transfer.Identity())
		}
	}
}

func (r *Runner) resume(ctx context.Context) error {
	if r.checkpoint == nil {
		return nil
	}
	cp, ok, err := r.checkpoint.Load(ctx, r.cfg.Token)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errs.CheckpointFailure), "load checkpoint")
	}
	if !ok {
		return nil
	}

	r.cursor = &Cursor{
		LastBlock:    cp.LastBlock,
		LastTxIndex:  cp.LastTxIndex,
		LastLogIndex: cp.LastLogIndex,
	}
	r.visited.Add(model.Identity{
		BlockNumber:      cp.LastBlock,
		TransactionIndex: cp.LastTxIndex,
		LogIndex:         cp.LastLogIndex,
	})
	for _, id := range cp.BoundaryVisited {
		r.visited.Add(id)
	}
	r.basePersisted = cp.Persisted

	r.logger.Info("resume from checkpoint",
		zap.Uint64("last_block", cp.LastBlock),
		zap.Int("boundary_visited", len(cp.BoundaryVisited)),
		zap.Int("persisted", cp.Persisted),
	)
	return nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, persisted int) error {
	if r.checkpoint == nil || r.cursor == nil {
		return nil
	}
	return r.checkpoint.Save(ctx, model.Checkpoint{
		Token:           r.cfg.Token,
		LastBlock:       r.cursor.LastBlock,
		LastTxIndex:     r.cursor.LastTxIndex,
		LastLogIndex:    r.cursor.LastLogIndex,
		BoundaryVisited: r.visited.InBlock(r.cursor.LastBlock),
		Persisted:       r.basePersisted + persisted,
		UpdatedAt:       r.now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Runner) logComplete(result Result, start time.Time) {
	fields := []zap.Field{
		zap.String("reason", string(result.Reason)),
		zap.Int("fetches", result.Fetches),
		zap.Int("persisted", result.Persisted),
		zap.Int("total", r.basePersisted+result.Persisted),
		zap.Int("rejected", result.Rejected),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("visited", r.visited.Len()),
		zap.Duration("elapsed", r.now().Sub(start)),
	}
	if r.cursor != nil {
		fields = append(fields, zap.Uint64("last_block", r.cursor.LastBlock))
	}
	r.logger.Info("run complete", fields...)
}
