package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Block is a fetched block reduced to what the scheduler needs.
// This is our domain model, independent of the RPC response format.
type Block struct {
	Slot         uint64              `json:"slot"`
	ParentSlot   uint64              `json:"parent_slot"`
	Blockhash    string              `json:"blockhash"`
	BlockTime    time.Time           `json:"block_time"`
	Transactions []*BlockTransaction `json:"transactions"`
}

// BlockTransaction is one decoded transaction of a block with its account
// accesses split into writable and read-only lists. Static keys come first
// in each list, followed by the addresses loaded from lookup tables.
type BlockTransaction struct {
	Index         int                `json:"index"` // position in the block
	Signatures    []string           `json:"signatures"`
	Fee           uint64             `json:"fee"`
	ComputeUnits  uint64             `json:"compute_units"` // 0 when the node did not report it
	WriteAccounts []solana.PublicKey `json:"write_accounts"`
	ReadAccounts  []solana.PublicKey `json:"read_accounts"`
	Err           *string            `json:"err,omitempty"` // nil if the transaction succeeded
}

// Signature returns the first signature, which identifies the transaction.
func (t *BlockTransaction) Signature() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return t.Signatures[0]
}

// Reads reports whether key is in the read-only set.
func (t *BlockTransaction) Reads(key solana.PublicKey) bool {
	for _, k := range t.ReadAccounts {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// IsVote reports whether the transaction loads the vote program read-only.
func (t *BlockTransaction) IsVote() bool {
	return t.Reads(solana.VoteProgramID)
}
