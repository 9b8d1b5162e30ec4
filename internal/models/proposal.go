// Package models defines the database models for governance influence monitoring.
package models

import "time"

// Proposal is a governance proposal observed through a ProposalCreated event.
// Rows are immutable once written and are removed by the retention sweep.
type Proposal struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	ProposalID   string    `gorm:"size:80;uniqueIndex;not null" json:"proposal_id"`
	StartBlock   uint64    `gorm:"not null" json:"start_block"`
	EndBlock     uint64    `gorm:"not null;index" json:"end_block"`
	CreatedBlock uint64    `json:"created_block"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
