package detector

import (
	"context"
	"math/big"

	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Scanner looks for voting power acquired by a voter shortly before the
// proposal they vote on opened.
type Scanner struct {
	ledger     Ledger
	leadWindow uint64
	afterVote  uint64
	thresholds Thresholds
}

// NewScanner returns a scanner reading checkpoints from ledger.
func NewScanner(ledger Ledger, leadWindow, afterVote uint64, t Thresholds) *Scanner {
	return &Scanner{
		ledger:     ledger,
		leadWindow: leadWindow,
		afterVote:  afterVote,
		thresholds: t,
	}
}

// Delta walks the voter's checkpoints backwards from the second newest one
// and returns the first gain, measured against the newest checkpoint, that
// exceeds the voting power threshold. The walk stops at index 1 or at the
// first checkpoint older than the lead window. nil means nothing qualified.
func (s *Scanner) Delta(ctx context.Context, voter common.Address, startBlock, atBlock uint64) (*big.Int, error) {
	n, err := s.ledger.NumCheckpoints(ctx, voter, atBlock)
	if err != nil {
		return nil, ledgerError(err, "numCheckpoints %v", voter)
	}
	if n < 3 {
		// Index 0 is never compared so two checkpoints can not qualify.
		return nil, nil
	}

	latest, err := s.ledger.Checkpoint(ctx, voter, n-1, atBlock)
	if err != nil {
		return nil, ledgerError(err, "checkpoint %v/%d", voter, n-1)
	}
	current := votesOf(latest)

	lead := saturatingSub(startBlock, s.leadWindow)
	if latest.FromBlock < lead {
		return nil, nil
	}

	for i := n - 2; i >= 1; i-- {
		cp, err := s.ledger.Checkpoint(ctx, voter, i, atBlock)
		if err != nil {
			return nil, ledgerError(err, "checkpoint %v/%d", voter, i)
		}
		if cp.FromBlock < lead {
			break
		}
		delta := new(big.Int).Sub(current, votesOf(cp))
		if s.thresholds.Exceeds(delta) {
			return delta, nil
		}
	}
	return nil, nil
}

// Check runs the before-vote rule for a freshly stored vote. A hit moves the
// vote to flagged-before and returns the INC finding. Votes on unknown or
// expired proposals are ignored.
func (s *Scanner) Check(ctx context.Context, tx store.Tx, a alerts, v *models.Vote, voter common.Address, txHash string) (*Finding, error) {
	p, err := tx.FindProposal(ctx, v.ProposalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debugf("Vote of %v on unknown proposal %v", v.Voter, v.ProposalID)
		return nil, nil
	case err != nil:
		return nil, err
	}
	if p.EndBlock < saturatingSub(v.BlockNumber, s.afterVote) {
		log.Debugf("Vote of %v on expired proposal %v", v.Voter, v.ProposalID)
		return nil, nil
	}

	delta, err := s.Delta(ctx, voter, p.StartBlock, v.BlockNumber)
	if err != nil || delta == nil {
		return nil, err
	}

	if err := tx.SetClassification(ctx, v.ID, v.Classification, models.ClassificationBefore); err != nil {
		return nil, err
	}
	v.Classification = models.ClassificationBefore

	f := a.influence(KindIncrease, s.thresholds.Severity(delta), v, delta, v.BlockNumber, txHash)
	return &f, nil
}

func votesOf(c Checkpoint) *big.Int {
	if c.Votes == nil {
		return new(big.Int)
	}
	return c.Votes
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
