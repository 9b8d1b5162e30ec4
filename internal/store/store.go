// Package store defines the persistence contract of the detection engine.
// Backends live in the gormdb (postgres) and localdb (leveldb) subpackages.
package store

import (
	"context"

	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by Find calls when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable wraps every failure of the underlying storage engine.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrMalformed is returned when a record misses a required field. The
	// store is left untouched.
	ErrMalformed = errors.New("malformed record")

	// ErrInvalidTransition is returned when a classification update would
	// move a vote backwards.
	ErrInvalidTransition = errors.New("invalid classification transition")

	// ErrShutdown is returned when the store has been closed.
	ErrShutdown = errors.New("store is shutdown")
)

// ProposalStore is the keyed table of active proposals.
type ProposalStore interface {
	// UpsertProposal inserts p unless a proposal with the same ProposalID
	// exists. inserted reports whether a new row was written.
	UpsertProposal(ctx context.Context, p *models.Proposal) (inserted bool, err error)

	// FindProposal returns ErrNotFound when proposalID is unknown.
	FindProposal(ctx context.Context, proposalID string) (*models.Proposal, error)

	FindProposals(ctx context.Context) ([]models.Proposal, error)

	// DeleteProposalsEndedBefore deletes proposals with EndBlock < block.
	DeleteProposalsEndedBefore(ctx context.Context, block uint64) (int64, error)

	CountProposals(ctx context.Context) (int64, error)
}

// VoteStore is the keyed table of cast votes.
type VoteStore interface {
	// UpsertVote inserts v unless a vote for the same (Voter, ProposalID)
	// exists. When it exists, v is overwritten with the stored row so the
	// caller sees the current classification.
	UpsertVote(ctx context.Context, v *models.Vote) (inserted bool, err error)

	// FindVote returns ErrNotFound when the voter has no vote on proposalID.
	FindVote(ctx context.Context, voter, proposalID string) (*models.Vote, error)

	// FindVotesByVoter returns the voter's votes ordered by block number.
	FindVotesByVoter(ctx context.Context, voter string) ([]models.Vote, error)

	FindVotes(ctx context.Context) ([]models.Vote, error)

	// SetClassification moves vote id from one classification to another.
	// It fails with ErrInvalidTransition when the transition is not forward
	// or the stored classification is not from, and with ErrNotFound when
	// the vote does not exist.
	SetClassification(ctx context.Context, id uint, from, to models.Classification) error

	// DeleteVotesCastBefore deletes votes with BlockNumber < block.
	DeleteVotesCastBefore(ctx context.Context, block uint64) (int64, error)

	CountVotes(ctx context.Context) (int64, error)
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	ProposalStore
	VoteStore
}

// Store is a transactional proposal and vote store. Calls made directly on
// the Store run in their own implicit transaction.
type Store interface {
	Tx

	// Update runs fn inside a single transaction. Writes made through the
	// Tx are visible to later reads on the same Tx and are committed
	// atomically when fn returns nil. Any error rolls everything back.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// ValidateProposal checks the required fields of a proposal.
func ValidateProposal(p *models.Proposal) error {
	switch {
	case p == nil:
		return errors.Wrap(ErrMalformed, "nil proposal")
	case p.ProposalID == "":
		return errors.Wrap(ErrMalformed, "proposal id missing")
	case p.EndBlock <= p.StartBlock:
		return errors.Wrapf(ErrMalformed, "proposal %v: end block %v not after start block %v",
			p.ProposalID, p.EndBlock, p.StartBlock)
	}
	return nil
}

// ValidateVote checks the required fields of a vote.
func ValidateVote(v *models.Vote) error {
	switch {
	case v == nil:
		return errors.Wrap(ErrMalformed, "nil vote")
	case v.Voter == "":
		return errors.Wrap(ErrMalformed, "voter missing")
	case !common.IsHexAddress(v.Voter) || common.HexToAddress(v.Voter).Hex() != v.Voter:
		// Lookups by voter use the checksummed form only.
		return errors.Wrapf(ErrMalformed, "voter %q is not a checksummed address", v.Voter)
	case v.ProposalID == "":
		return errors.Wrap(ErrMalformed, "proposal id missing")
	case v.Weight.Sign() < 0:
		return errors.Wrapf(ErrMalformed, "vote %v/%v: negative weight", v.Voter, v.ProposalID)
	}
	switch v.Classification {
	case "", models.ClassificationNone, models.ClassificationBefore,
		models.ClassificationAfter, models.ClassificationFull:
	default:
		return errors.Wrapf(ErrMalformed, "unknown classification %q", v.Classification)
	}
	return nil
}

// Unavailable wraps err as a storage failure.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrUnavailable, "%v: %v", msg, err)
}
