package detector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint is a snapshot of an account's voting power from a block on.
type Checkpoint struct {
	FromBlock uint64
	Votes     *big.Int
}

// Ledger reads historical voting power checkpoints of the governance token.
// Checkpoints are ascending by FromBlock with at most one per block.
type Ledger interface {
	NumCheckpoints(ctx context.Context, account common.Address, atBlock uint64) (uint32, error)
	Checkpoint(ctx context.Context, account common.Address, index uint32, atBlock uint64) (Checkpoint, error)
}
