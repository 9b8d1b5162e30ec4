package models

import "time"

// Support is the ballot choice of a GovernorBravo vote.
type Support uint8

const (
	SupportAgainst Support = 0
	SupportFor     Support = 1
	SupportAbstain Support = 2
)

func (s Support) String() string {
	switch s {
	case SupportAgainst:
		return "against"
	case SupportFor:
		return "for"
	case SupportAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Classification tracks which detection rules already fired for a vote.
type Classification string

const (
	ClassificationNone   Classification = "none"
	ClassificationBefore Classification = "flagged-before"
	ClassificationAfter  Classification = "flagged-after"
	ClassificationFull   Classification = "flagged-full"
)

// CanTransition reports whether c may move forward to next.
// flagged-full is terminal and flagged-after never changes again.
func (c Classification) CanTransition(next Classification) bool {
	switch c {
	case ClassificationNone, "":
		return next == ClassificationBefore || next == ClassificationAfter
	case ClassificationBefore:
		return next == ClassificationFull
	default:
		return false
	}
}

// Vote stores a cast vote together with its influence classification.
// A voter votes at most once per proposal.
type Vote struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Voter          string         `gorm:"size:64;not null;index:ux_voter_proposal,unique;index" json:"voter"`
	ProposalID     string         `gorm:"size:80;not null;index:ux_voter_proposal,unique" json:"proposal_id"`
	BlockNumber    uint64         `gorm:"not null;index" json:"block_number"`
	Support        Support        `json:"support"`
	Weight         BigInt         `gorm:"not null" json:"weight"`
	Reason         string         `gorm:"type:text" json:"reason"`
	Classification Classification `gorm:"size:16;not null;default:none;index" json:"classification"`
	TxHash         string         `gorm:"size:66" json:"tx_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
