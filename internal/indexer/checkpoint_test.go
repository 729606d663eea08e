package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"transferScope/internal/model"
)

func TestFileCheckpointStoreRoundTrip(t *testing.T) {
	store := NewFileCheckpointStore(filepath.Join(t.TempDir(), "checkpoints"))
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, testToken); err != nil || ok {
		t.Fatalf("missing checkpoint should load empty: %v %v", ok, err)
	}

	cp := model.Checkpoint{
		Token:        testToken,
		LastBlock:    103,
		LastTxIndex:  4,
		LastLogIndex: 7,
		BoundaryVisited: []model.Identity{
			{BlockNumber: 103, TransactionIndex: 4, LogIndex: 7},
			{BlockNumber: 103, TransactionIndex: 4, LogIndex: 8},
		},
		Persisted: 42,
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(ctx, "0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if got.LastBlock != 103 || got.LastTxIndex != 4 || got.LastLogIndex != 7 || got.Persisted != 42 {
		t.Fatalf("checkpoint mismatch: %+v", got)
	}
	if len(got.BoundaryVisited) != 2 || got.BoundaryVisited[1].LogIndex != 8 {
		t.Fatalf("boundary mismatch: %+v", got.BoundaryVisited)
	}
	if _, err := os.Stat(store.Path(testToken) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be renamed away")
	}
}

func TestFileCheckpointStoreErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCheckpointStore(dir)
	ctx := context.Background()

	if err := os.WriteFile(store.Path(testToken), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load(ctx, testToken); err == nil {
		t.Fatalf("expected parse error")
	}

	other := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	if err := os.WriteFile(store.Path(other), []byte(`{"token":"`+testToken+`"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load(ctx, other); err == nil {
		t.Fatalf("expected token mismatch error")
	}
}

func TestVisitedSetInBlock(t *testing.T) {
	visited := NewVisitedSet()
	visited.Add(model.Identity{BlockNumber: 9, TransactionIndex: 2, LogIndex: 5})
	visited.Add(model.Identity{BlockNumber: 9, TransactionIndex: 1, LogIndex: 3})
	visited.Add(model.Identity{BlockNumber: 8, TransactionIndex: 0, LogIndex: 0})
	visited.Add(model.Identity{BlockNumber: 9, TransactionIndex: 1, LogIndex: 3})

	if visited.Len() != 3 {
		t.Fatalf("expected 3 identities, got %d", visited.Len())
	}
	if !visited.Contains(model.Identity{BlockNumber: 8}) {
		t.Fatalf("expected identity in set")
	}

	ids := visited.InBlock(9)
	if len(ids) != 2 || ids[0].TransactionIndex != 1 || ids[1].LogIndex != 5 {
		t.Fatalf("unexpected block identities: %+v", ids)
	}
	if len(visited.InBlock(7)) != 0 {
		t.Fatalf("expected no identities for unknown block")
	}
}
