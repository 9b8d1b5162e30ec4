// Package events defines the decoded governance events the detector consumes.
package events

import (
	"fmt"
	"math/big"

	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one of ProposalCreated, VoteCast or DelegateVotesChanged.
type Event interface {
	// Validate reports a malformed event. Malformed events are dropped.
	Validate() error
	isEvent()
}

// ProposalCreated is GovernorBravo's ProposalCreated.
type ProposalCreated struct {
	ID          *big.Int
	Proposer    common.Address
	StartBlock  uint64
	EndBlock    uint64
	Description string
}

// VoteCast is GovernorBravo's VoteCast.
type VoteCast struct {
	Voter      common.Address
	ProposalID *big.Int
	Support    models.Support
	Votes      *big.Int
	Reason     string
}

// DelegateVotesChanged is emitted by the governance token whenever the
// voting power delegated to an address changes.
type DelegateVotesChanged struct {
	Delegate        common.Address
	PreviousBalance *big.Int
	NewBalance      *big.Int
}

func (ProposalCreated) isEvent()      {}
func (VoteCast) isEvent()             {}
func (DelegateVotesChanged) isEvent() {}

func (e ProposalCreated) Validate() error {
	switch {
	case e.ID == nil || e.ID.Sign() < 0:
		return fmt.Errorf("proposal created: missing id")
	case e.EndBlock <= e.StartBlock:
		return fmt.Errorf("proposal %v: end block %d not after start block %d",
			e.ID, e.EndBlock, e.StartBlock)
	}
	return nil
}

func (e VoteCast) Validate() error {
	switch {
	case e.Voter == (common.Address{}):
		return fmt.Errorf("vote cast: zero voter")
	case e.ProposalID == nil || e.ProposalID.Sign() < 0:
		return fmt.Errorf("vote cast by %v: missing proposal id", e.Voter)
	case e.Votes == nil || e.Votes.Sign() < 0:
		return fmt.Errorf("vote cast by %v: missing votes", e.Voter)
	case e.Support > models.SupportAbstain:
		return fmt.Errorf("vote cast by %v: unknown support %d", e.Voter, e.Support)
	}
	return nil
}

func (e DelegateVotesChanged) Validate() error {
	switch {
	case e.Delegate == (common.Address{}):
		return fmt.Errorf("delegate votes changed: zero delegate")
	case e.NewBalance == nil || e.NewBalance.Sign() < 0:
		return fmt.Errorf("delegate votes changed for %v: missing new balance", e.Delegate)
	}
	return nil
}

// Transaction is one mined transaction with its decoded governance events
// in log order.
type Transaction struct {
	Hash        common.Hash
	BlockNumber uint64
	Events      []Event
}

// AddressKey is the canonical store key of an address.
func AddressKey(a common.Address) string {
	return a.Hex()
}
