package detector

import (
	"context"

	"influence-monitoring/internal/store"
)

// Sweeper evicts votes and proposals that fell out of the after-vote window.
type Sweeper struct {
	afterVote uint64
}

// NewSweeper returns a sweeper for the given retention window.
func NewSweeper(afterVote uint64) *Sweeper {
	return &Sweeper{afterVote: afterVote}
}

// Sweep deletes votes cast and proposals ended more than afterVote blocks
// before block.
func (s *Sweeper) Sweep(ctx context.Context, tx store.Tx, block uint64) (votes, proposals int64, err error) {
	if block <= s.afterVote {
		return 0, 0, nil
	}
	cutoff := block - s.afterVote

	votes, err = tx.DeleteVotesCastBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	proposals, err = tx.DeleteProposalsEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	if votes > 0 || proposals > 0 {
		log.Debugf("Evicted %d votes and %d proposals before block %d",
			votes, proposals, cutoff)
	}
	return votes, proposals, nil
}
