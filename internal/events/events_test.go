package events

import (
	"math/big"
	"testing"

	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

func TestValidate(t *testing.T) {
	voter := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"proposal ok", ProposalCreated{ID: big.NewInt(1), StartBlock: 150, EndBlock: 250}, false},
		{"proposal no id", ProposalCreated{StartBlock: 150, EndBlock: 250}, true},
		{"proposal inverted", ProposalCreated{ID: big.NewInt(1), StartBlock: 250, EndBlock: 150}, true},
		{"vote ok", VoteCast{Voter: voter, ProposalID: big.NewInt(1), Support: models.SupportFor, Votes: big.NewInt(5)}, false},
		{"vote zero voter", VoteCast{ProposalID: big.NewInt(1), Votes: big.NewInt(5)}, true},
		{"vote no votes", VoteCast{Voter: voter, ProposalID: big.NewInt(1)}, true},
		{"vote bad support", VoteCast{Voter: voter, ProposalID: big.NewInt(1), Support: 7, Votes: big.NewInt(5)}, true},
		{"delegate ok", DelegateVotesChanged{Delegate: voter, NewBalance: big.NewInt(0)}, false},
		{"delegate no balance", DelegateVotesChanged{Delegate: voter}, true},
	}
	for _, tc := range tests {
		err := tc.ev.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%v: got err %v, want error %v", tc.name, err, tc.wantErr)
		}
	}
}
