package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"influence-monitoring/internal/events"
	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/go-cmp/cmp"
)

var (
	governor = common.HexToAddress("0x408ED6354d4973f66138C91495F2f2FCbd8724C0")
	token    = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	voter    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func pack(t *testing.T, abiEvent string, isGovernor bool, args ...interface{}) []byte {
	t.Helper()
	a := TokenABI
	if isGovernor {
		a = GovernorABI
	}
	b, err := a.Events[abiEvent].Inputs.NonIndexed().Pack(args...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func voteLog(t *testing.T, block uint64, txIndex, index uint, tx common.Hash) types.Log {
	return types.Log{
		Address:     governor,
		Topics:      []common.Hash{voteCastID, common.BytesToHash(voter.Bytes())},
		Data:        pack(t, "VoteCast", true, big.NewInt(1), uint8(1), big.NewInt(10300), "gm"),
		BlockNumber: block,
		TxIndex:     txIndex,
		Index:       index,
		TxHash:      tx,
	}
}

func proposalLog(t *testing.T, block uint64, tx common.Hash) types.Log {
	data := pack(t, "ProposalCreated", true,
		big.NewInt(1), voter,
		[]common.Address{token}, []*big.Int{big.NewInt(0)},
		[]string{"transfer(address,uint256)"}, [][]byte{{0x01}},
		big.NewInt(150), big.NewInt(250), "# Proposal")
	return types.Log{
		Address:     governor,
		Topics:      []common.Hash{proposalCreatedID},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

func balanceLog(t *testing.T, block uint64, txIndex, index uint, tx common.Hash) types.Log {
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{delegateVotesChangedID, common.BytesToHash(voter.Bytes())},
		Data:        pack(t, "DelegateVotesChanged", false, big.NewInt(10300), big.NewInt(100)),
		BlockNumber: block,
		TxIndex:     txIndex,
		Index:       index,
		TxHash:      tx,
	}
}

func TestDecode(t *testing.T) {
	d := NewDecoder(governor, token)

	ev, err := d.Decode(proposalLog(t, 150, common.Hash{1}))
	if err != nil {
		t.Fatal(err)
	}
	p := ev.(events.ProposalCreated)
	if p.ID.Int64() != 1 || p.StartBlock != 150 || p.EndBlock != 250 || p.Proposer != voter {
		t.Errorf("got %+v", p)
	}

	ev, err = d.Decode(voteLog(t, 160, 0, 0, common.Hash{2}))
	if err != nil {
		t.Fatal(err)
	}
	want := events.VoteCast{
		Voter:      voter,
		ProposalID: big.NewInt(1),
		Support:    models.SupportFor,
		Votes:      big.NewInt(10300),
		Reason:     "gm",
	}
	if diff := cmp.Diff(want, ev, cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })); diff != "" {
		t.Error(diff)
	}

	ev, err = d.Decode(balanceLog(t, 170, 0, 0, common.Hash{3}))
	if err != nil {
		t.Fatal(err)
	}
	c := ev.(events.DelegateVotesChanged)
	if c.Delegate != voter || c.NewBalance.Int64() != 100 || c.PreviousBalance.Int64() != 10300 {
		t.Errorf("got %+v", c)
	}
}

func TestDecodeRejects(t *testing.T) {
	d := NewDecoder(governor, token)

	foreign := voteLog(t, 160, 0, 0, common.Hash{2})
	foreign.Address = token
	if _, err := d.Decode(foreign); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("foreign contract: got %v", err)
	}

	removed := voteLog(t, 160, 0, 0, common.Hash{2})
	removed.Removed = true
	if _, err := d.Decode(removed); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("removed: got %v", err)
	}

	truncated := voteLog(t, 160, 0, 0, common.Hash{2})
	truncated.Data = truncated.Data[:40]
	if _, err := d.Decode(truncated); err == nil || errors.Is(err, ErrUnknownEvent) {
		t.Errorf("truncated: got %v", err)
	}
}

func TestGroup(t *testing.T) {
	d := NewDecoder(governor, token)
	txA, txB := common.Hash{0xa}, common.Hash{0xb}

	bad := voteLog(t, 160, 1, 5, txB)
	bad.Data = nil
	logs := []types.Log{
		balanceLog(t, 160, 1, 4, txB),
		voteLog(t, 160, 0, 1, txA),
		bad,
		proposalLog(t, 150, common.Hash{0xc}),
	}
	txs := d.Group(logs)

	type got struct {
		Hash   common.Hash
		Block  uint64
		Events int
	}
	var g []got
	for _, tx := range txs {
		g = append(g, got{tx.Hash, tx.BlockNumber, len(tx.Events)})
	}
	want := []got{
		{common.Hash{0xc}, 150, 1},
		{txA, 160, 1},
		{txB, 160, 1},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Error(diff)
	}
}

type fakeCaller struct {
	checkpoints []struct {
		from  uint32
		votes *big.Int
	}
	blocks []*big.Int
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.blocks = append(f.blocks, block)
	m, err := TokenABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "numCheckpoints":
		return m.Outputs.Pack(uint32(len(f.checkpoints)))
	case "checkpoints":
		i := args[1].(uint32)
		if int(i) >= len(f.checkpoints) {
			return nil, errors.New("execution reverted")
		}
		cp := f.checkpoints[i]
		return m.Outputs.Pack(cp.from, cp.votes)
	}
	return nil, errors.New("unknown method")
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	f := &fakeCaller{}
	f.checkpoints = append(f.checkpoints,
		struct {
			from  uint32
			votes *big.Int
		}{100, big.NewInt(100)},
		struct {
			from  uint32
			votes *big.Int
		}{140, big.NewInt(10300)},
	)
	l := NewLedger(f, token)

	n, err := l.NumCheckpoints(ctx, voter, 160)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("got %d checkpoints", n)
	}
	cp, err := l.Checkpoint(ctx, voter, 1, 160)
	if err != nil {
		t.Fatal(err)
	}
	if cp.FromBlock != 140 || cp.Votes.Int64() != 10300 {
		t.Errorf("got %+v", cp)
	}
	if _, err := l.Checkpoint(ctx, voter, 5, 160); err == nil {
		t.Error("expected error for missing checkpoint")
	}
	for _, b := range f.blocks {
		if b.Uint64() != 160 {
			t.Errorf("queried at block %v", b)
		}
	}
}

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

type fakeClient struct {
	fakeCaller
	errs  []error
	calls int
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return nil, nil
}

func (f *fakeClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func TestRangeTooLargeIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"limit exceeded code", rpcError{code: -32005, msg: "query returned more than 10000 results"}},
		{"block range message", errors.New("eth_getLogs block range is limited to 2000 blocks")},
	}
	for _, tc := range tests {
		c := &fakeClient{errs: []error{tc.err}}
		f := NewFetcher(c, NewDecoder(governor, token))
		_, err := f.Range(context.Background(), 100, 5000)
		if !errors.Is(err, ErrRangeTooLarge) {
			t.Errorf("%v: got %v, want ErrRangeTooLarge", tc.name, err)
		}
		if c.calls != 1 {
			t.Errorf("%v: got %d calls, want 1", tc.name, c.calls)
		}
	}
}

func TestRangeRetriesTransientErrors(t *testing.T) {
	c := &fakeClient{errs: []error{errors.New("connection reset by peer")}}
	f := NewFetcher(c, NewDecoder(governor, token))
	txs, err := f.Range(context.Background(), 100, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 || c.calls != 2 {
		t.Errorf("got %d transactions after %d calls", len(txs), c.calls)
	}
}
