package storage

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gocarina/gocsv"

	"transferScope/internal/model"
)

type csvRow struct {
	Address          string `csv:"address"`
	BlockNumber      uint64 `csv:"block_number"`
	Timestamp        uint64 `csv:"timestamp"`
	LogIndex         uint64 `csv:"log_index"`
	From             string `csv:"from"`
	To               string `csv:"to"`
	Value            string `csv:"value"`
	BlockHash        string `csv:"block_hash"`
	TransactionHash  string `csv:"transaction_hash"`
	TransactionIndex uint64 `csv:"transaction_index"`
}

// CsvStorage writes transfers to a CSV file with a header row.
type CsvStorage struct {
	path string
	mu   sync.Mutex
}

func NewCsvStorage(path string) *CsvStorage {
	return &CsvStorage{path: path}
}

// Path returns the output file path.
func (s *CsvStorage) Path() string {
	return s.path
}

// PutTransferBatch appends a batch of transfers. The header is written
// only when the file is empty.
func (s *CsvStorage) PutTransferBatch(_ context.Context, transfers []model.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := openAppend(s.path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat output file")
	}

	rows := make([]csvRow, 0, len(transfers))
	for _, transfer := range transfers {
		rows = append(rows, toCsvRow(transfer))
	}

	if stat.Size() == 0 {
		err = gocsv.MarshalFile(&rows, file)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, file)
	}
	if err != nil {
		return errors.Wrap(err, "write csv rows")
	}
	return nil
}

func toCsvRow(transfer model.Transfer) csvRow {
	blockHash := ""
	if transfer.BlockHash != nil {
		blockHash = *transfer.BlockHash
	}
	return csvRow{
		Address:          transfer.Address,
		BlockNumber:      transfer.BlockNumber,
		Timestamp:        transfer.Timestamp,
		LogIndex:         transfer.LogIndex,
		From:             transfer.Args.From,
		To:               transfer.Args.To,
		Value:            transfer.Args.Value,
		BlockHash:        blockHash,
		TransactionHash:  transfer.TransactionHash,
		TransactionIndex: transfer.TransactionIndex,
	}
}

