package model

// Checkpoint is the persisted pagination cursor of one token run.
type Checkpoint struct {
	Token        string `json:"token"`
	LastBlock    uint64 `json:"last_block"`
	LastTxIndex  uint64 `json:"last_tx_index"`
	LastLogIndex uint64 `json:"last_log_index"`
	// BoundaryVisited lists identities already persisted in LastBlock.
	BoundaryVisited []Identity `json:"boundary_visited"`
	Persisted       int        `json:"persisted"`
	UpdatedAt       string     `json:"updated_at"`
}
