package erc20

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"transferScope/internal/model"
)

// ErrMissingField is returned for raw logs lacking a position field the
// log source guarantees.
var ErrMissingField = errors.New("missing required field")

// RejectReason explains why a raw log is not a Transfer. The zero value
// means the log was accepted.
type RejectReason string

const (
	Accepted         RejectReason = ""
	RejectNoTopics   RejectReason = "no_topics"
	RejectSignature  RejectReason = "signature_mismatch"
	RejectTopicCount RejectReason = "topic_count"
	RejectAddress    RejectReason = "invalid_address"
	RejectValue      RejectReason = "invalid_value"
)

// Rejected reports whether the log was dropped.
func (r RejectReason) Rejected() bool {
	return r != Accepted
}

// AddressResult is the outcome of decoding an indexed address topic.
type AddressResult int

const (
	AddressInvalid AddressResult = iota
	AddressDecoded
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// EventSignature overrides the topic_0 filter key. Defaults to the
	// Transfer event ID.
	EventSignature string
}

// TransferDecoder turns raw filter API logs into Transfer records.
type TransferDecoder struct {
	event     abi.Event
	signature string
}

// NewTransferDecoder builds a Transfer decoder.
func NewTransferDecoder(cfg DecoderConfig) (*TransferDecoder, error) {
	parsed, err := TransferABI()
	if err != nil {
		return nil, errors.Wrap(err, "parse transfer abi")
	}
	event := parsed.Events["Transfer"]

	signature := event.ID.Hex()
	if cfg.EventSignature != "" {
		data, err := hexutil.Decode(cfg.EventSignature)
		if err != nil || len(data) != common.HashLength {
			return nil, errors.Newf("invalid event signature: %s", cfg.EventSignature)
		}
		signature = common.BytesToHash(data).Hex()
	}

	return &TransferDecoder{
		event:     event,
		signature: signature,
	}, nil
}

// Signature returns the topic_0 value the decoder accepts.
func (d *TransferDecoder) Signature() string {
	return d.signature
}

// Decode converts a raw log into a Transfer. Logs that are not
// well-formed Transfer events come back with a non-empty RejectReason and
// no error; an error is returned only for structurally impossible input.
func (d *TransferDecoder) Decode(raw model.RawLog) (model.Transfer, RejectReason, error) {
	topics := raw.Topics()
	if len(topics) == 0 {
		return model.Transfer{}, RejectNoTopics, nil
	}
	if !strings.EqualFold(topics[0], d.signature) {
		return model.Transfer{}, RejectSignature, nil
	}
	if len(topics) != 3 {
		return model.Transfer{}, RejectTopicCount, nil
	}

	if err := checkRequired(raw); err != nil {
		return model.Transfer{}, Accepted, err
	}

	from, fromResult := DecodeAddressTopic(topics[1])
	to, toResult := DecodeAddressTopic(topics[2])

	value, err := d.decodeValue(raw.Data)
	if err != nil {
		return model.Transfer{}, RejectValue, nil
	}

	if fromResult != AddressDecoded || toResult != AddressDecoded {
		return model.Transfer{}, RejectAddress, nil
	}

	return model.Transfer{
		Address:     raw.Address,
		BlockNumber: *raw.BlockNumber,
		Timestamp:   *raw.Timestamp,
		LogIndex:    *raw.LogIndex,
		Args: model.TransferArgs{
			From:  hexutil.Encode(from.Bytes()),
			To:    hexutil.Encode(to.Bytes()),
			Value: value.String(),
		},
		BlockHash:        raw.BlockHash,
		TransactionHash:  raw.TransactionHash,
		TransactionIndex: *raw.TransactionIndex,
	}, Accepted, nil
}

// DecodeAddressTopic decodes a 32-byte ABI-encoded address. Anything other
// than twelve zero bytes followed by twenty address bytes is invalid.
func DecodeAddressTopic(topic string) (common.Address, AddressResult) {
	data, err := hexutil.Decode(topic)
	if err != nil || len(data) != common.HashLength {
		return common.Address{}, AddressInvalid
	}
	padding := common.HashLength - common.AddressLength
	for _, b := range data[:padding] {
		if b != 0 {
			return common.Address{}, AddressInvalid
		}
	}
	return common.BytesToAddress(data[padding:]), AddressDecoded
}

func (d *TransferDecoder) decodeValue(dataHex string) (*big.Int, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid data")
	}
	values, err := d.event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", d.event.Name)
	}
	if len(values) != 1 {
		return nil, errors.Newf("unexpected transfer values: %d", len(values))
	}
	return asBigInt(values[0])
}

func checkRequired(raw model.RawLog) error {
	switch {
	case raw.BlockNumber == nil:
		return errors.Wrap(ErrMissingField, "block_number")
	case raw.Timestamp == nil:
		return errors.Wrap(ErrMissingField, "timestamp")
	case raw.LogIndex == nil:
		return errors.Wrap(ErrMissingField, "log_index")
	case raw.TransactionIndex == nil:
		return errors.Wrap(ErrMissingField, "transaction_index")
	case raw.TransactionHash == "":
		return errors.Wrap(ErrMissingField, "transaction_hash")
	}
	return nil
}
