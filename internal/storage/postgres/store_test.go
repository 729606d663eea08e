package postgres

import (
	"context"
	"os"
	"testing"

	"transferScope/internal/model"
)

// Set INDEXER_TEST_PG_DSN to run against a disposable database.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("INDEXER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("INDEXER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := store.pool.Exec(ctx, `TRUNCATE transfers, transfer_cursors`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestStoreTransfersIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	hash := "0xabc"
	transfers := []model.Transfer{
		{
			Address:          "0x6982508145454Ce325dDbE47a25d4ec3d2311933",
			BlockNumber:      105,
			Timestamp:        1700000000,
			LogIndex:         2,
			Args:             model.TransferArgs{From: "0x01", To: "0x02", Value: "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
			BlockHash:        &hash,
			TransactionHash:  "0xdef",
			TransactionIndex: 1,
		},
		{
			Address:         "0x6982508145454Ce325dDbE47a25d4ec3d2311933",
			BlockNumber:     104,
			Args:            model.TransferArgs{From: "0x02", To: "0x03", Value: "1"},
			TransactionHash: "0xfed",
		},
	}
	for i := 0; i < 2; i++ {
		if err := store.PutTransferBatch(ctx, transfers); err != nil {
			t.Fatalf("put batch %d: %v", i, err)
		}
	}

	var count int
	var maxValue string
	row := store.pool.QueryRow(ctx, `SELECT count(*), max(value)::text FROM transfers`)
	if err := row.Scan(&count, &maxValue); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
	if maxValue != transfers[0].Args.Value {
		t.Fatalf("value mismatch: %s", maxValue)
	}
}

func TestStoreCheckpoint(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	token := "0x6982508145454ce325ddbe47a25d4ec3d2311933"

	if _, ok, err := store.LoadCheckpoint(ctx, token); err != nil || ok {
		t.Fatalf("expected no checkpoint: %v %v", ok, err)
	}

	cp := model.Checkpoint{
		Token:           token,
		LastBlock:       103,
		LastTxIndex:     1,
		LastLogIndex:    4,
		BoundaryVisited: []model.Identity{{BlockNumber: 103, TransactionIndex: 1, LogIndex: 4}},
		Persisted:       10,
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	cp.LastBlock = 99
	cp.Persisted = 20
	cp.BoundaryVisited = nil
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok, err := store.LoadCheckpoint(ctx, token)
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if got.LastBlock != 99 || got.Persisted != 20 || got.LastLogIndex != 4 {
		t.Fatalf("checkpoint mismatch: %+v", got)
	}
	if len(got.BoundaryVisited) != 0 {
		t.Fatalf("boundary should be replaced: %+v", got.BoundaryVisited)
	}
}
