package chain

import (
	"context"
	"math/big"

	"influence-monitoring/internal/detector"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var _ detector.Ledger = (*Ledger)(nil)

// Ledger reads voting power checkpoints from the governance token with
// eth_call at a historical block. Queries are not retried.
type Ledger struct {
	caller ethereum.ContractCaller
	token  common.Address
}

// NewLedger returns a ledger reading the token at address token.
func NewLedger(caller ethereum.ContractCaller, token common.Address) *Ledger {
	return &Ledger{caller: caller, token: token}
}

func (l *Ledger) call(ctx context.Context, method string, atBlock uint64, args ...interface{}) ([]interface{}, error) {
	input, err := TokenABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %v", method)
	}
	msg := ethereum.CallMsg{To: &l.token, Data: input}
	out, err := l.caller.CallContract(ctx, msg, new(big.Int).SetUint64(atBlock))
	if err != nil {
		return nil, errors.Wrapf(err, "call %v at block %d", method, atBlock)
	}
	vals, err := TokenABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %v", method)
	}
	return vals, nil
}

// NumCheckpoints satisfies the detector Ledger interface.
func (l *Ledger) NumCheckpoints(ctx context.Context, account common.Address, atBlock uint64) (uint32, error) {
	vals, err := l.call(ctx, "numCheckpoints", atBlock, account)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, errors.Errorf("numCheckpoints: got %d values", len(vals))
	}
	n, ok := vals[0].(uint32)
	if !ok {
		return 0, errors.Errorf("numCheckpoints: unexpected type %T", vals[0])
	}
	return n, nil
}

// Checkpoint satisfies the detector Ledger interface.
func (l *Ledger) Checkpoint(ctx context.Context, account common.Address, index uint32, atBlock uint64) (detector.Checkpoint, error) {
	vals, err := l.call(ctx, "checkpoints", atBlock, account, index)
	if err != nil {
		return detector.Checkpoint{}, err
	}
	if len(vals) != 2 {
		return detector.Checkpoint{}, errors.Errorf("checkpoints: got %d values", len(vals))
	}
	from, ok1 := vals[0].(uint32)
	votes, ok2 := vals[1].(*big.Int)
	if !ok1 || !ok2 {
		return detector.Checkpoint{}, errors.Errorf("checkpoints: unexpected types %T, %T", vals[0], vals[1])
	}
	return detector.Checkpoint{FromBlock: uint64(from), Votes: votes}, nil
}
