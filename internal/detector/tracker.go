package detector

import (
	"context"
	"math/big"

	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"
)

// Tracker watches delegate balance changes for voters shedding the power
// they voted with.
type Tracker struct {
	afterVote  uint64
	thresholds Thresholds
}

// NewTracker returns a tracker that follows votes for afterVote blocks.
func NewTracker(afterVote uint64, t Thresholds) *Tracker {
	return &Tracker{
		afterVote:  afterVote,
		thresholds: t,
	}
}

// candidates returns the votes a balance change at block is measured
// against: the flagged-before votes still inside the after-vote window,
// newest first, followed by the most recent vote of the window. votes must
// be ordered by block.
func (t *Tracker) candidates(votes []models.Vote, block uint64) []*models.Vote {
	cutoff := saturatingSub(block, t.afterVote)
	var (
		out    []*models.Vote
		latest *models.Vote
	)
	for i := len(votes) - 1; i >= 0; i-- {
		v := &votes[i]
		if v.BlockNumber > block {
			continue
		}
		if v.BlockNumber < cutoff {
			break
		}
		if latest == nil {
			latest = v
		}
		if v.Classification == models.ClassificationBefore {
			out = append(out, v)
		}
	}
	if latest != nil && latest.Classification != models.ClassificationBefore {
		out = append(out, latest)
	}
	return out
}

// Check evaluates a new delegate balance of voter observed at block. When
// the voter's tracked vote weight exceeds the new balance by more than the
// voting power threshold a DEC finding is returned, or a FULL finding when
// the vote was already flagged before the proposal started. Flagged-before
// votes are checked first so a round trip is not masked by a later vote.
func (t *Tracker) Check(ctx context.Context, tx store.VoteStore, a alerts, voter string, newBalance *big.Int, block uint64, txHash string) (*Finding, error) {
	votes, err := tx.FindVotesByVoter(ctx, voter)
	if err != nil {
		return nil, err
	}
	var (
		v     *models.Vote
		delta *big.Int
	)
	for _, c := range t.candidates(votes, block) {
		d := new(big.Int).Sub(c.Weight.Big(), newBalance)
		if t.thresholds.Exceeds(d) {
			v, delta = c, d
			break
		}
	}
	if v == nil {
		return nil, nil
	}

	kind, sev, next := t.thresholds.AfterOutcome(v.Classification, delta)
	if next != v.Classification {
		if err := tx.SetClassification(ctx, v.ID, v.Classification, next); err != nil {
			return nil, err
		}
		v.Classification = next
	}

	f := a.influence(kind, sev, v, delta, block, txHash)
	return &f, nil
}
