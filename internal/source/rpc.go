package source

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"

	"transferScope/internal/model"
)

// LogFilterer is the subset of the chain client the RPC source needs.
type LogFilterer interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RPCSource serves filter API pages from a JSON-RPC node by walking
// eth_getLogs windows backward from the upper bound.
type RPCSource struct {
	chain  LogFilterer
	window uint64
}

var _ LogSource = (*RPCSource)(nil)

// NewRPCSource builds an RPCSource scanning window blocks per eth_getLogs call.
func NewRPCSource(chain LogFilterer, window uint64) *RPCSource {
	if window == 0 {
		window = 2000
	}
	return &RPCSource{chain: chain, window: window}
}

// FetchLogs collects up to PageSize logs at or below the upper bound.
func (s *RPCSource) FetchLogs(ctx context.Context, req Request) ([]model.RawLog, error) {
	if req.PageSize <= 0 {
		return nil, errors.New("page size must be greater than zero")
	}
	if !common.IsHexAddress(req.Address) {
		return nil, errors.Newf("invalid address: %s", req.Address)
	}
	address := common.HexToAddress(req.Address)
	topic0, err := parseTopic(req.Topic0)
	if err != nil {
		return nil, err
	}

	var upper uint64
	if req.UntilBlock != nil {
		upper = *req.UntilBlock
	} else {
		upper, err = s.chain.LatestBlockNumber(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "get latest block")
		}
	}

	collected := make([]types.Log, 0)
	to := upper
	for {
		from := uint64(0)
		if to >= s.window {
			from = to - s.window + 1
		}

		logs, err := s.chain.FilterLogs(ctx, from, to, address, topic0)
		if err != nil {
			return nil, errors.Wrapf(err, "filter logs %d-%d", from, to)
		}
		collected = append(collected, lo.Filter(logs, func(log types.Log, _ int) bool {
			return !log.Removed
		})...)

		if len(collected) >= req.PageSize || from == 0 {
			break
		}
		to = from - 1
	}

	sort.SliceStable(collected, func(i, j int) bool {
		a, b := collected[i], collected[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex > b.TxIndex
		}
		return a.Index > b.Index
	})
	if len(collected) > req.PageSize {
		collected = collected[:req.PageSize]
	}

	records := make([]model.RawLog, 0, len(collected))
	for _, log := range collected {
		ts, err := s.chain.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "block timestamp %d", log.BlockNumber)
		}
		records = append(records, buildRawLog(log, ts))
	}
	return records, nil
}

func buildRawLog(log types.Log, timestamp uint64) model.RawLog {
	blockNumber := log.BlockNumber
	txIndex := uint64(log.TxIndex)
	logIndex := uint64(log.Index)
	blockHash := log.BlockHash.Hex()

	record := model.RawLog{
		Address:          log.Address.Hex(),
		BlockNumber:      &blockNumber,
		Timestamp:        &timestamp,
		LogIndex:         &logIndex,
		TransactionHash:  log.TxHash.Hex(),
		TransactionIndex: &txIndex,
		BlockHash:        &blockHash,
		Data:             hexutil.Encode(log.Data),
	}
	record.SetTopics(lo.Map(log.Topics, func(topic common.Hash, _ int) string {
		return topic.Hex()
	}))
	return record
}

func parseTopic(input string) (common.Hash, error) {
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, errors.Newf("invalid topic0: %s", input)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, errors.Newf("invalid topic0 length: %s", input)
	}
	return common.BytesToHash(data), nil
}
