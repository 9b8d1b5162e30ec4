package detector

import (
	"fmt"
	"math/big"

	"influence-monitoring/internal/models"

	"github.com/google/uuid"
)

// AlertKind identifies the rule that produced a finding.
type AlertKind string

const (
	KindNewProposal AlertKind = "NEW"  // proposal created
	KindIncrease    AlertKind = "INC"  // power gained before the proposal started
	KindDecrease    AlertKind = "DEC"  // power shed after the vote
	KindFull        AlertKind = "FULL" // both, a confirmed round trip
)

// Severity of a finding.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// FindingType separates informational findings from suspicious ones.
type FindingType string

const (
	TypeInfo       FindingType = "Info"
	TypeSuspicious FindingType = "Suspicious"
)

// Finding is an alert record handed to the sinks.
type Finding struct {
	ID          string            `json:"id"`
	AlertID     string            `json:"alert_id"`
	Kind        AlertKind         `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Type        FindingType       `json:"type"`
	Severity    Severity          `json:"severity"`
	ProposalID  string            `json:"proposal_id"`
	Voter       string            `json:"voter,omitempty"`
	Support     models.Support    `json:"support"`
	Weight      *big.Int          `json:"weight,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Delta       *big.Int          `json:"delta,omitempty"`
	BlockNumber uint64            `json:"block_number"`
	TxHash      string            `json:"tx_hash"`
	Metadata    map[string]string `json:"metadata"`
}

// alerts builds findings with the configured alert id prefix and windows
// in their descriptions.
type alerts struct {
	prefix     string
	leadWindow uint64
	afterVote  uint64
}

func (a alerts) alertID(k AlertKind) string {
	n := 0
	switch k {
	case KindIncrease:
		n = 1
	case KindDecrease:
		n = 2
	case KindNewProposal:
		n = 3
	case KindFull:
		n = 4
	}
	return fmt.Sprintf("%s-%d", a.prefix, n)
}

func (a alerts) newProposal(p *models.Proposal, block uint64, txHash string) Finding {
	return Finding{
		ID:          uuid.NewString(),
		AlertID:     a.alertID(KindNewProposal),
		Kind:        KindNewProposal,
		Name:        "Proposal Created Alert",
		Description: fmt.Sprintf("A new proposal with the id %s was created.", p.ProposalID),
		Type:        TypeInfo,
		Severity:    SeverityLow,
		ProposalID:  p.ProposalID,
		BlockNumber: block,
		TxHash:      txHash,
		Metadata: map[string]string{
			"proposalId": p.ProposalID,
			"startBlock": fmt.Sprint(p.StartBlock),
			"endBlock":   fmt.Sprint(p.EndBlock),
		},
	}
}

// influence builds an INC, DEC or FULL finding about v.
func (a alerts) influence(kind AlertKind, sev Severity, v *models.Vote, delta *big.Int, block uint64, txHash string) Finding {
	var desc string
	switch kind {
	case KindIncrease:
		desc = fmt.Sprintf("Address %s casting a vote had a significant change in voting power "+
			"in the %d blocks leading up to the proposal starting block number", v.Voter, a.leadWindow)
	case KindDecrease:
		desc = fmt.Sprintf("Address %s casting a vote had a significant change in voting power "+
			"in the %d blocks after the vote is cast", v.Voter, a.afterVote)
	case KindFull:
		desc = fmt.Sprintf("Address %s gained voting power in the %d blocks leading up to proposal %s "+
			"and released it in the %d blocks after the vote is cast", v.Voter, a.leadWindow, v.ProposalID, a.afterVote)
	}
	return Finding{
		ID:          uuid.NewString(),
		AlertID:     a.alertID(kind),
		Kind:        kind,
		Name:        "Influencing Governance Proposals Alert",
		Description: desc,
		Type:        TypeSuspicious,
		Severity:    sev,
		ProposalID:  v.ProposalID,
		Voter:       v.Voter,
		Support:     v.Support,
		Weight:      v.Weight.Big(),
		Reason:      v.Reason,
		Delta:       new(big.Int).Set(delta),
		BlockNumber: block,
		TxHash:      txHash,
		Metadata: map[string]string{
			"proposalId": v.ProposalID,
			"voter":      v.Voter,
			"support":    v.Support.String(),
			"weight":     v.Weight.String(),
			"delta":      delta.String(),
		},
	}
}
