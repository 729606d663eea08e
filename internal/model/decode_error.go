package model

// DecodeError records a raw log that could not be decoded.
type DecodeError struct {
	BlockNumber     *uint64 `json:"block_number"`
	TransactionHash string  `json:"transaction_hash"`
	LogIndex        *uint64 `json:"log_index"`
	Address         string  `json:"address"`
	Topic0          string  `json:"topic_0"`
	Error           string  `json:"error"`
}
