package model

import "fmt"

// Transfer is a decoded ERC-20 Transfer event.
type Transfer struct {
	Address          string       `json:"address"`
	BlockNumber      uint64       `json:"block_number"`
	Timestamp        uint64       `json:"timestamp"`
	LogIndex         uint64       `json:"log_index"`
	Args             TransferArgs `json:"args"`
	BlockHash        *string      `json:"block_hash"`
	TransactionHash  string       `json:"transaction_hash"`
	TransactionIndex uint64       `json:"transaction_index"`
}

// TransferArgs holds the decoded event arguments. Value is the base-10
// representation of the uint256 amount.
type TransferArgs struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// Identity is the position of a log in chain history.
type Identity struct {
	BlockNumber      uint64 `json:"block_number"`
	TransactionIndex uint64 `json:"transaction_index"`
	LogIndex         uint64 `json:"log_index"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%d:%d:%d", id.BlockNumber, id.TransactionIndex, id.LogIndex)
}

// Identity returns the dedup key of the transfer.
func (t Transfer) Identity() Identity {
	return Identity{
		BlockNumber:      t.BlockNumber,
		TransactionIndex: t.TransactionIndex,
		LogIndex:         t.LogIndex,
	}
}
