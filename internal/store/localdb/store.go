package localdb

import (
	"context"

	"influence-monitoring/internal/models"
)

// The methods below run each call in its own view or transaction.

// UpsertProposal satisfies the store ProposalStore interface.
func (l *LocalDB) UpsertProposal(ctx context.Context, p *models.Proposal) (bool, error) {
	var inserted bool
	err := l.update(ctx, func(t *tx) error {
		var err error
		inserted, err = t.UpsertProposal(ctx, p)
		return err
	})
	return inserted, err
}

// FindProposal satisfies the store ProposalStore interface.
func (l *LocalDB) FindProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	var p *models.Proposal
	err := l.view(ctx, func(t *tx) error {
		var err error
		p, err = t.FindProposal(ctx, proposalID)
		return err
	})
	return p, err
}

// FindProposals satisfies the store ProposalStore interface.
func (l *LocalDB) FindProposals(ctx context.Context) ([]models.Proposal, error) {
	var ps []models.Proposal
	err := l.view(ctx, func(t *tx) error {
		var err error
		ps, err = t.FindProposals(ctx)
		return err
	})
	return ps, err
}

// DeleteProposalsEndedBefore satisfies the store ProposalStore interface.
func (l *LocalDB) DeleteProposalsEndedBefore(ctx context.Context, block uint64) (int64, error) {
	var n int64
	err := l.update(ctx, func(t *tx) error {
		var err error
		n, err = t.DeleteProposalsEndedBefore(ctx, block)
		return err
	})
	return n, err
}

// CountProposals satisfies the store ProposalStore interface.
func (l *LocalDB) CountProposals(ctx context.Context) (int64, error) {
	var n int64
	err := l.view(ctx, func(t *tx) error {
		var err error
		n, err = t.CountProposals(ctx)
		return err
	})
	return n, err
}

// UpsertVote satisfies the store VoteStore interface.
func (l *LocalDB) UpsertVote(ctx context.Context, v *models.Vote) (bool, error) {
	var inserted bool
	err := l.update(ctx, func(t *tx) error {
		var err error
		inserted, err = t.UpsertVote(ctx, v)
		return err
	})
	return inserted, err
}

// FindVote satisfies the store VoteStore interface.
func (l *LocalDB) FindVote(ctx context.Context, voter, proposalID string) (*models.Vote, error) {
	var v *models.Vote
	err := l.view(ctx, func(t *tx) error {
		var err error
		v, err = t.FindVote(ctx, voter, proposalID)
		return err
	})
	return v, err
}

// FindVotesByVoter satisfies the store VoteStore interface.
func (l *LocalDB) FindVotesByVoter(ctx context.Context, voter string) ([]models.Vote, error) {
	var vs []models.Vote
	err := l.view(ctx, func(t *tx) error {
		var err error
		vs, err = t.FindVotesByVoter(ctx, voter)
		return err
	})
	return vs, err
}

// FindVotes satisfies the store VoteStore interface.
func (l *LocalDB) FindVotes(ctx context.Context) ([]models.Vote, error) {
	var vs []models.Vote
	err := l.view(ctx, func(t *tx) error {
		var err error
		vs, err = t.FindVotes(ctx)
		return err
	})
	return vs, err
}

// SetClassification satisfies the store VoteStore interface.
func (l *LocalDB) SetClassification(ctx context.Context, id uint, from, to models.Classification) error {
	return l.update(ctx, func(t *tx) error {
		return t.SetClassification(ctx, id, from, to)
	})
}

// DeleteVotesCastBefore satisfies the store VoteStore interface.
func (l *LocalDB) DeleteVotesCastBefore(ctx context.Context, block uint64) (int64, error) {
	var n int64
	err := l.update(ctx, func(t *tx) error {
		var err error
		n, err = t.DeleteVotesCastBefore(ctx, block)
		return err
	})
	return n, err
}

// CountVotes satisfies the store VoteStore interface.
func (l *LocalDB) CountVotes(ctx context.Context) (int64, error) {
	var n int64
	err := l.view(ctx, func(t *tx) error {
		var err error
		n, err = t.CountVotes(ctx)
		return err
	})
	return n, err
}
