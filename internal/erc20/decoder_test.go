package erc20

import (
	"math/big"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"transferScope/internal/model"
)

func TestTransferDecoderRoundTrip(t *testing.T) {
	decoder, err := NewTransferDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	for _, value := range []*big.Int{big.NewInt(0), big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 70), maxUint256} {
		raw := buildRawLog(t, 105, from, to, value)

		transfer, reason, err := decoder.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if reason.Rejected() {
			t.Fatalf("unexpected rejection: %s", reason)
		}
		if transfer.Args.From != strings.ToLower(from.Hex()) || transfer.Args.To != strings.ToLower(to.Hex()) {
			t.Fatalf("address mismatch: %+v", transfer.Args)
		}
		if transfer.Args.Value != value.String() {
			t.Fatalf("value mismatch: %s != %s", transfer.Args.Value, value.String())
		}
		if transfer.BlockNumber != 105 || transfer.TransactionIndex != 3 || transfer.LogIndex != 9 {
			t.Fatalf("position mismatch: %+v", transfer)
		}
		if transfer.Timestamp != 1700000000 || transfer.TransactionHash != "0xdef" {
			t.Fatalf("metadata mismatch: %+v", transfer)
		}
		if transfer.BlockHash == nil || *transfer.BlockHash != "0xabc" {
			t.Fatalf("block hash mismatch")
		}
		if transfer.Address != raw.Address {
			t.Fatalf("contract address should be copied through")
		}
	}
}

func TestTransferDecoderLowercaseAddresses(t *testing.T) {
	decoder, err := NewTransferDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	from := common.HexToAddress("0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	to := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	transfer, reason, err := decoder.Decode(buildRawLog(t, 105, from, to, big.NewInt(7)))
	if err != nil || reason.Rejected() {
		t.Fatalf("decode: %v %q", err, reason)
	}

	if transfer.Args.From != "0x6982508145454ce325ddbe47a25d4ec3d2311933" {
		t.Fatalf("from should be lowercase hex: %s", transfer.Args.From)
	}
	if transfer.Args.To != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Fatalf("to should be lowercase hex: %s", transfer.Args.To)
	}
	if transfer.Args.From != transfer.Address {
		t.Fatalf("from should compare equal to the lowercase contract address: %s != %s", transfer.Args.From, transfer.Address)
	}
}

func TestTransferDecoderRejections(t *testing.T) {
	decoder, err := NewTransferDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	dirty := "0x0000000000000000000000010000000000000000000000000000000000000001"

	cases := []struct {
		name   string
		mutate func(raw *model.RawLog)
		want   RejectReason
	}{
		{"no topics", func(raw *model.RawLog) { raw.SetTopics(nil) }, RejectNoTopics},
		{"wrong signature", func(raw *model.RawLog) {
			raw.SetTopics([]string{common.HexToHash("0x01").Hex(), addressTopic(from), addressTopic(to)})
		}, RejectSignature},
		{"two topics", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature, addressTopic(from)})
		}, RejectTopicCount},
		{"four topics", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature, addressTopic(from), addressTopic(to), addressTopic(to)})
		}, RejectTopicCount},
		{"signature only", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature})
		}, RejectTopicCount},
		{"dirty from padding", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature, dirty, addressTopic(to)})
		}, RejectAddress},
		{"dirty to padding", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature, addressTopic(from), dirty})
		}, RejectAddress},
		{"short topic", func(raw *model.RawLog) {
			raw.SetTopics([]string{TransferEventSignature, from.Hex(), addressTopic(to)})
		}, RejectAddress},
		{"empty data", func(raw *model.RawLog) { raw.Data = "0x" }, RejectValue},
		{"malformed data", func(raw *model.RawLog) { raw.Data = "0xzz" }, RejectValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := buildRawLog(t, 100, from, to, big.NewInt(42))
			tc.mutate(&raw)

			_, reason, err := decoder.Decode(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reason != tc.want {
				t.Fatalf("reason mismatch: %q != %q", reason, tc.want)
			}
		})
	}
}

func TestTransferDecoderMissingField(t *testing.T) {
	decoder, err := NewTransferDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	raw := buildRawLog(t, 100, common.Address{1}, common.Address{2}, big.NewInt(1))
	raw.TransactionIndex = nil

	if _, _, err := decoder.Decode(raw); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}

	raw = buildRawLog(t, 100, common.Address{1}, common.Address{2}, big.NewInt(1))
	raw.BlockNumber = nil
	raw.Topic0 = nil
	if _, reason, err := decoder.Decode(raw); err != nil || reason != RejectNoTopics {
		t.Fatalf("non-transfer log should be rejected before field checks: %v %q", err, reason)
	}
}

func TestTransferDecoderSignatureCase(t *testing.T) {
	decoder, err := NewTransferDecoder(DecoderConfig{EventSignature: strings.ToUpper(TransferEventSignature[2:])})
	if err == nil {
		t.Fatalf("expected error for signature without prefix")
	}

	decoder, err = NewTransferDecoder(DecoderConfig{EventSignature: TransferEventSignature})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if decoder.Signature() != TransferEventSignature {
		t.Fatalf("signature mismatch: %s", decoder.Signature())
	}

	raw := buildRawLog(t, 100, common.Address{1}, common.Address{2}, big.NewInt(1))
	upper := "0x" + strings.ToUpper(TransferEventSignature[2:])
	raw.Topic0 = &upper
	if _, reason, err := decoder.Decode(raw); err != nil || reason.Rejected() {
		t.Fatalf("upper-case signature should match: %v %q", err, reason)
	}

	if _, err := NewTransferDecoder(DecoderConfig{EventSignature: "0x1234"}); err == nil {
		t.Fatalf("expected error for short signature")
	}
}

func TestDecodeAddressTopic(t *testing.T) {
	addr := common.HexToAddress("0x6982508145454Ce325dDbE47a25d4ec3d2311933")

	got, result := DecodeAddressTopic(addressTopic(addr))
	if result != AddressDecoded || got != addr {
		t.Fatalf("decode mismatch: %s %d", got.Hex(), result)
	}

	if _, result := DecodeAddressTopic(common.BigToHash(new(big.Int).Lsh(big.NewInt(1), 200)).Hex()); result != AddressInvalid {
		t.Fatalf("expected invalid for non-zero padding")
	}
	if _, result := DecodeAddressTopic("not-hex"); result != AddressInvalid {
		t.Fatalf("expected invalid for bad hex")
	}
}

func buildRawLog(t *testing.T, block uint64, from, to common.Address, value *big.Int) model.RawLog {
	t.Helper()

	parsed, err := TransferABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}

	txIndex, logIndex, ts := uint64(3), uint64(9), uint64(1700000000)
	blockHash := "0xabc"
	raw := model.RawLog{
		Address:          "0x6982508145454ce325ddbe47a25d4ec3d2311933",
		BlockNumber:      &block,
		Timestamp:        &ts,
		LogIndex:         &logIndex,
		TransactionHash:  "0xdef",
		TransactionIndex: &txIndex,
		BlockHash:        &blockHash,
		Data:             hexutil.Encode(data),
	}
	raw.SetTopics([]string{parsed.Events["Transfer"].ID.Hex(), addressTopic(from), addressTopic(to)})
	return raw
}

func addressTopic(addr common.Address) string {
	return common.BytesToHash(addr.Bytes()).Hex()
}
