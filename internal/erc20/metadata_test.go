package erc20

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeCaller struct {
	responses map[string][]byte
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	stringABI, err := metadataStringABI.get()
	if err != nil {
		return nil, err
	}
	for name, method := range stringABI.Methods {
		if bytes.Equal(msg.Data[:4], method.ID) {
			if resp, ok := f.responses[name]; ok {
				return resp, nil
			}
			return nil, fmt.Errorf("execution reverted")
		}
	}
	return nil, fmt.Errorf("unknown selector")
}

func TestFetchTokenMeta(t *testing.T) {
	stringABI, err := metadataStringABI.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	bytes32ABI, err := metadataBytes32ABI.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decimals, err := stringABI.Methods["decimals"].Outputs.Pack(uint8(18))
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	symbol, err := stringABI.Methods["symbol"].Outputs.Pack("PEPE")
	if err != nil {
		t.Fatalf("pack symbol: %v", err)
	}
	var rawName [32]byte
	copy(rawName[:], "Pepe")
	name, err := bytes32ABI.Methods["name"].Outputs.Pack(rawName)
	if err != nil {
		t.Fatalf("pack name: %v", err)
	}

	caller := &fakeCaller{responses: map[string][]byte{
		"decimals": decimals,
		"symbol":   symbol,
		"name":     name,
	}}

	token := common.HexToAddress("0x6982508145454ce325ddbe47a25d4ec3d2311933")
	meta, err := FetchTokenMeta(context.Background(), caller, token, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch meta: %v", err)
	}
	if meta.Decimals != 18 || meta.Symbol != "PEPE" || meta.Name != "Pepe" {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if meta.Address != token.Hex() {
		t.Fatalf("address mismatch: %s", meta.Address)
	}
}

func TestFetchTokenMetaRequiresDecimals(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{}}
	if _, err := FetchTokenMeta(context.Background(), caller, common.Address{1}, nil); err == nil {
		t.Fatalf("expected error when decimals call fails")
	}
	if _, err := FetchTokenMeta(context.Background(), nil, common.Address{1}, nil); err == nil {
		t.Fatalf("expected error for nil caller")
	}
}
