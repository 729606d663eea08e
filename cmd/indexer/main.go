package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"transferScope/internal/chain"
	"transferScope/internal/config"
	"transferScope/internal/erc20"
	"transferScope/internal/errs"
	"transferScope/internal/indexer"
	"transferScope/internal/source"
	"transferScope/internal/storage"
	"transferScope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "ERC-20 transfer history indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Page backward through token transfer history",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("source", "http", "log source (http, rpc)")
	runCmd.Flags().String("api-url", config.DefaultAPIURL, "filter API endpoint")
	runCmd.Flags().String("api-key", "", "filter API key")
	runCmd.Flags().String("rpc", "", "JSON-RPC URL (rpc source, token metadata)")
	runCmd.Flags().StringSlice("token", []string{config.DefaultToken}, "token contract addresses (comma-separated)")
	runCmd.Flags().String("event-signature", config.DefaultEventSignature, "topic0 of the Transfer event")
	runCmd.Flags().Int("page-size", 100000, "logs per page")
	runCmd.Flags().Int("max-iterations", 20, "page fetches per token, 0 means unbounded")
	runCmd.Flags().String("sink", "jsonl", "output sink (jsonl, csv, postgres)")
	runCmd.Flags().String("out-dir", "./data", "output directory for file sinks")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("checkpoint-dir", "./data/checkpoints", "checkpoint directory")
	runCmd.Flags().Bool("checkpoint-enabled", false, "resume from and save checkpoints")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts per page")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("retry-max-backoff", 10*time.Second, "maximum retry backoff")
	runCmd.Flags().Duration("http-timeout", 60*time.Second, "filter API request timeout")
	runCmd.Flags().Uint64("rpc-block-window", 2000, "blocks per eth_getLogs call")
	runCmd.Flags().Int("concurrency", 1, "tokens indexed in parallel")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into transfers",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/transfers.jsonl", "output transfers JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("event-signature", config.DefaultEventSignature, "topic0 of the Transfer event")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainClient *chain.Client
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return errors.Wrap(err, "connect rpc")
		}
		defer chainClient.Close()

		chainID, err := chainClient.ChainID(ctx)
		if err != nil {
			return errors.Wrap(err, "get chain id")
		}
		logger.Info("rpc connected", zap.String("chain_id", chainID.String()))
	}

	logSource, err := newSource(cfg, chainClient)
	if err != nil {
		return err
	}

	var pgStore *postgres.Store
	if cfg.Sink == "postgres" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	var checkpoints indexer.CheckpointStore
	if cfg.CheckpointEnabled {
		if pgStore != nil {
			checkpoints = indexer.NewDBCheckpointStore(pgStore)
		} else {
			checkpoints = indexer.NewFileCheckpointStore(cfg.CheckpointDir)
		}
	}

	logger.Info("indexer start",
		zap.String("source", cfg.Source),
		zap.Strings("tokens", cfg.Tokens),
		zap.Int("page_size", cfg.PageSize),
		zap.Int("max_iterations", cfg.MaxIterations),
		zap.String("sink", cfg.Sink),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Int("concurrency", cfg.Concurrency),
	)

	startedAt := time.Now().Unix()
	results, err := indexer.RunTokens(ctx, cfg.Tokens, cfg.Concurrency, func(ctx context.Context, token string) (*indexer.Runner, func() error, error) {
		if chainClient != nil {
			logTokenMeta(ctx, chainClient, token, logger)
		}

		sink, out := newSink(cfg, token, startedAt, pgStore)
		runCfg := indexer.RunConfig{
			Token:           token,
			EventSignature:  cfg.EventSignature,
			PageSize:        cfg.PageSize,
			MaxIterations:   cfg.MaxIterations,
			MaxRetries:      cfg.MaxRetries,
			RetryBackoff:    cfg.RetryBackoff,
			RetryMaxBackoff: cfg.RetryMaxBackoff,
			Out:             out,
		}

		opts := make([]indexer.RunnerOption, 0, 1)
		if checkpoints != nil {
			opts = append(opts, indexer.WithCheckpoint(checkpoints))
		}
		return indexer.NewRunner(runCfg, logSource, sink, logger, opts...), nil, nil
	})

	for _, result := range results {
		if result.Token == "" {
			continue
		}
		logger.Info("token summary",
			zap.String("token", result.Token),
			zap.String("state", string(result.State)),
			zap.String("reason", string(result.Reason)),
			zap.Int("fetches", result.Fetches),
			zap.Int("persisted", result.Persisted),
			zap.Duration("elapsed", result.Elapsed),
		)
	}
	if err != nil {
		logger.Error("indexer failed", zap.String("stage", errs.Stage(err)), zap.Error(err))
		return err
	}
	return nil
}

func newSource(cfg config.Config, chainClient *chain.Client) (source.LogSource, error) {
	switch cfg.Source {
	case "rpc":
		if chainClient == nil {
			return nil, errors.New("rpc url is required for the rpc source")
		}
		return source.NewRPCSource(chainClient, cfg.RPCBlockWindow), nil
	default:
		opts := []source.HTTPOption{
			source.WithTimeout(cfg.HTTPTimeout),
			source.WithRetryWait(cfg.RetryBackoff, cfg.RetryMaxBackoff),
		}
		if cfg.APIKey != "" {
			opts = append(opts, source.WithHeader("X-API-Key", cfg.APIKey))
		}
		return source.NewHTTPSource(cfg.APIURL, opts...)
	}
}

// newSink returns the sink of one token and a description of its target.
func newSink(cfg config.Config, token string, startedAt int64, pgStore *postgres.Store) (storage.Storage, string) {
	switch cfg.Sink {
	case "postgres":
		return pgStore, "postgres:transfers"
	case "csv":
		sink := storage.NewCsvStorage(filepath.Join(cfg.OutDir, fmt.Sprintf("%s-%d.csv", strings.ToLower(token), startedAt)))
		return sink, sink.Path()
	default:
		sink := storage.NewJsonlStorage(filepath.Join(cfg.OutDir, fmt.Sprintf("%s-%d.jsonl", strings.ToLower(token), startedAt)))
		return sink, sink.Path()
	}
}

func logTokenMeta(ctx context.Context, chainClient *chain.Client, token string, logger *zap.Logger) {
	meta, err := erc20.FetchTokenMeta(ctx, chainClient, common.HexToAddress(token), logger)
	if err != nil {
		logger.Warn("token metadata unavailable", zap.String("token", token), zap.Error(err))
		return
	}
	logger.Info("token metadata",
		zap.String("token", meta.Address),
		zap.String("symbol", meta.Symbol),
		zap.String("name", meta.Name),
		zap.Uint8("decimals", meta.Decimals),
	)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
