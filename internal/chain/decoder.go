package chain

import (
	"math/big"
	"sort"

	"influence-monitoring/internal/events"
	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownEvent is returned for logs that are not governance events.
	ErrUnknownEvent = errors.New("unknown event")

	proposalCreatedID      = GovernorABI.Events["ProposalCreated"].ID
	voteCastID             = GovernorABI.Events["VoteCast"].ID
	delegateVotesChangedID = TokenABI.Events["DelegateVotesChanged"].ID
)

// Decoder turns raw logs of the governor and the token into typed events.
type Decoder struct {
	governor common.Address
	token    common.Address
}

// NewDecoder returns a decoder accepting logs emitted by governor and token.
func NewDecoder(governor, token common.Address) *Decoder {
	return &Decoder{governor: governor, token: token}
}

// Topics returns the event signatures to filter logs by.
func (d *Decoder) Topics() []common.Hash {
	return []common.Hash{proposalCreatedID, voteCastID, delegateVotesChangedID}
}

// Addresses returns the contracts to filter logs by.
func (d *Decoder) Addresses() []common.Address {
	return []common.Address{d.governor, d.token}
}

// Decode decodes one log. Removed logs and logs of other contracts or events
// return ErrUnknownEvent.
func (d *Decoder) Decode(l types.Log) (events.Event, error) {
	if l.Removed || len(l.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	switch {
	case l.Address == d.governor && l.Topics[0] == proposalCreatedID:
		return decodeProposalCreated(l)
	case l.Address == d.governor && l.Topics[0] == voteCastID:
		return decodeVoteCast(l)
	case l.Address == d.token && l.Topics[0] == delegateVotesChangedID:
		return decodeDelegateVotesChanged(l)
	}
	return nil, ErrUnknownEvent
}

func decodeProposalCreated(l types.Log) (events.Event, error) {
	vals, err := GovernorABI.Unpack("ProposalCreated", l.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unpack ProposalCreated")
	}
	if len(vals) != 9 {
		return nil, errors.Errorf("ProposalCreated: got %d values", len(vals))
	}
	id, ok1 := vals[0].(*big.Int)
	proposer, ok2 := vals[1].(common.Address)
	start, ok3 := vals[6].(*big.Int)
	end, ok4 := vals[7].(*big.Int)
	desc, ok5 := vals[8].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, errors.New("ProposalCreated: unexpected value types")
	}
	if !start.IsUint64() || !end.IsUint64() {
		return nil, errors.Errorf("ProposalCreated %v: block out of range", id)
	}
	return events.ProposalCreated{
		ID:          id,
		Proposer:    proposer,
		StartBlock:  start.Uint64(),
		EndBlock:    end.Uint64(),
		Description: desc,
	}, nil
}

func decodeVoteCast(l types.Log) (events.Event, error) {
	if len(l.Topics) != 2 {
		return nil, errors.Errorf("VoteCast: got %d topics", len(l.Topics))
	}
	vals, err := GovernorABI.Unpack("VoteCast", l.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unpack VoteCast")
	}
	if len(vals) != 4 {
		return nil, errors.Errorf("VoteCast: got %d values", len(vals))
	}
	id, ok1 := vals[0].(*big.Int)
	support, ok2 := vals[1].(uint8)
	votes, ok3 := vals[2].(*big.Int)
	reason, ok4 := vals[3].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("VoteCast: unexpected value types")
	}
	return events.VoteCast{
		Voter:      common.BytesToAddress(l.Topics[1].Bytes()),
		ProposalID: id,
		Support:    models.Support(support),
		Votes:      votes,
		Reason:     reason,
	}, nil
}

func decodeDelegateVotesChanged(l types.Log) (events.Event, error) {
	if len(l.Topics) != 2 {
		return nil, errors.Errorf("DelegateVotesChanged: got %d topics", len(l.Topics))
	}
	vals, err := TokenABI.Unpack("DelegateVotesChanged", l.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unpack DelegateVotesChanged")
	}
	if len(vals) != 2 {
		return nil, errors.Errorf("DelegateVotesChanged: got %d values", len(vals))
	}
	prev, ok1 := vals[0].(*big.Int)
	next, ok2 := vals[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, errors.New("DelegateVotesChanged: unexpected value types")
	}
	return events.DelegateVotesChanged{
		Delegate:        common.BytesToAddress(l.Topics[1].Bytes()),
		PreviousBalance: prev,
		NewBalance:      next,
	}, nil
}

// Group decodes logs and groups them into transactions ordered by block,
// transaction index and log index. Undecodable logs are logged and
// dropped.
func (d *Decoder) Group(logs []types.Log) []events.Transaction {
	sortLogs(logs)

	var (
		txs  []events.Transaction
		last common.Hash
	)
	for _, l := range logs {
		ev, err := d.Decode(l)
		switch {
		case errors.Is(err, ErrUnknownEvent):
			continue
		case err != nil:
			log.Warnf("Dropping log %v/%d in block %d: %v", l.TxHash, l.Index, l.BlockNumber, err)
			continue
		}
		if len(txs) == 0 || l.TxHash != last {
			txs = append(txs, events.Transaction{
				Hash:        l.TxHash,
				BlockNumber: l.BlockNumber,
			})
			last = l.TxHash
		}
		cur := &txs[len(txs)-1]
		cur.Events = append(cur.Events, ev)
	}
	return txs
}

func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.Index < b.Index
	})
}
