// Package gormdb implements the store interfaces on a relational database
// through GORM. The schema is created by db.AutoMigrate.
package gormdb

import (
	"context"
	"errors"

	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ store.Store = (*GormDB)(nil)
)

// GormDB is a store.Store backed by a *gorm.DB. Inside Update the same type
// wraps the transaction handle.
type GormDB struct {
	db *gorm.DB
}

// New wraps an opened and migrated database.
func New(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// Update satisfies the store Store interface.
func (g *GormDB) Update(ctx context.Context, fn func(store.Tx) error) error {
	var fnErr error
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormDB{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return store.Unavailable(err, "transaction")
	}
	return err
}

// Close satisfies the store Store interface.
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return pkgerrors.WithStack(err)
	}
	return sqlDB.Close()
}

// UpsertProposal satisfies the store ProposalStore interface.
func (g *GormDB) UpsertProposal(ctx context.Context, p *models.Proposal) (bool, error) {
	if err := store.ValidateProposal(p); err != nil {
		return false, err
	}
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return false, store.Unavailable(res.Error, "insert proposal")
	}
	if res.RowsAffected == 0 {
		log.Debugf("Proposal %v already stored", p.ProposalID)
	}
	return res.RowsAffected > 0, nil
}

// FindProposal satisfies the store ProposalStore interface.
func (g *GormDB) FindProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	var p models.Proposal
	err := g.db.WithContext(ctx).Where("proposal_id = ?", proposalID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable(err, "find proposal")
	}
	return &p, nil
}

// FindProposals satisfies the store ProposalStore interface.
func (g *GormDB) FindProposals(ctx context.Context) ([]models.Proposal, error) {
	var ps []models.Proposal
	if err := g.db.WithContext(ctx).Order("id ASC").Find(&ps).Error; err != nil {
		return nil, store.Unavailable(err, "find proposals")
	}
	return ps, nil
}

// DeleteProposalsEndedBefore satisfies the store ProposalStore interface.
func (g *GormDB) DeleteProposalsEndedBefore(ctx context.Context, block uint64) (int64, error) {
	res := g.db.WithContext(ctx).Where("end_block < ?", block).Delete(&models.Proposal{})
	if res.Error != nil {
		return 0, store.Unavailable(res.Error, "delete proposals")
	}
	return res.RowsAffected, nil
}

// CountProposals satisfies the store ProposalStore interface.
func (g *GormDB) CountProposals(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Proposal{}).Count(&n).Error; err != nil {
		return 0, store.Unavailable(err, "count proposals")
	}
	return n, nil
}

// UpsertVote satisfies the store VoteStore interface.
func (g *GormDB) UpsertVote(ctx context.Context, v *models.Vote) (bool, error) {
	if err := store.ValidateVote(v); err != nil {
		return false, err
	}
	if v.Classification == "" {
		v.Classification = models.ClassificationNone
	}
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "voter"}, {Name: "proposal_id"}},
			DoNothing: true,
		}).
		Create(v)
	if res.Error != nil {
		return false, store.Unavailable(res.Error, "insert vote")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := g.FindVote(ctx, v.Voter, v.ProposalID)
	if err != nil {
		return false, err
	}
	*v = *existing
	return false, nil
}

// FindVote satisfies the store VoteStore interface.
func (g *GormDB) FindVote(ctx context.Context, voter, proposalID string) (*models.Vote, error) {
	var v models.Vote
	err := g.db.WithContext(ctx).
		Where("voter = ? AND proposal_id = ?", voter, proposalID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable(err, "find vote")
	}
	return &v, nil
}

// FindVotesByVoter satisfies the store VoteStore interface.
func (g *GormDB) FindVotesByVoter(ctx context.Context, voter string) ([]models.Vote, error) {
	var vs []models.Vote
	err := g.db.WithContext(ctx).
		Where("voter = ?", voter).
		Order("block_number ASC, id ASC").
		Find(&vs).Error
	if err != nil {
		return nil, store.Unavailable(err, "find votes by voter")
	}
	return vs, nil
}

// FindVotes satisfies the store VoteStore interface.
func (g *GormDB) FindVotes(ctx context.Context) ([]models.Vote, error) {
	var vs []models.Vote
	if err := g.db.WithContext(ctx).Order("block_number ASC, id ASC").Find(&vs).Error; err != nil {
		return nil, store.Unavailable(err, "find votes")
	}
	return vs, nil
}

// SetClassification satisfies the store VoteStore interface. The from
// classification is part of the WHERE clause so a concurrent writer can not
// move the vote backwards.
func (g *GormDB) SetClassification(ctx context.Context, id uint, from, to models.Classification) error {
	if !from.CanTransition(to) {
		return pkgerrors.Wrapf(store.ErrInvalidTransition, "%v -> %v", from, to)
	}
	res := g.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("id = ? AND classification = ?", id, from).
		Update("classification", to)
	if res.Error != nil {
		return store.Unavailable(res.Error, "update classification")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	err := g.db.WithContext(ctx).Model(&models.Vote{}).Where("id = ?", id).Count(&n).Error
	switch {
	case err != nil:
		return store.Unavailable(err, "count vote")
	case n == 0:
		return store.ErrNotFound
	default:
		return pkgerrors.Wrapf(store.ErrInvalidTransition, "vote %v is not %v", id, from)
	}
}

// DeleteVotesCastBefore satisfies the store VoteStore interface.
func (g *GormDB) DeleteVotesCastBefore(ctx context.Context, block uint64) (int64, error) {
	res := g.db.WithContext(ctx).Where("block_number < ?", block).Delete(&models.Vote{})
	if res.Error != nil {
		return 0, store.Unavailable(res.Error, "delete votes")
	}
	return res.RowsAffected, nil
}

// CountVotes satisfies the store VoteStore interface.
func (g *GormDB) CountVotes(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Vote{}).Count(&n).Error; err != nil {
		return 0, store.Unavailable(err, "count votes")
	}
	return n, nil
}
