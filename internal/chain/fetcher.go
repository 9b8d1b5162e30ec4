package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"influence-monitoring/internal/events"
	"influence-monitoring/internal/retry"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// ErrRangeTooLarge is returned by Range when the node refuses the block span
// or the size of its result. Retrying the same span never helps; a smaller
// one may.
var ErrRangeTooLarge = errors.New("log range too large")

// Codes and messages nodes use to refuse an eth_getLogs span.
const codeLimitExceeded = -32005

var rangeMessages = []string{
	"block range",
	"query returned more than",
	"response size exceeded",
	"too many results",
}

func isRangeError(err error) bool {
	var rerr rpc.Error
	if errors.As(err, &rerr) && rerr.ErrorCode() == codeLimitExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rangeMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Client is the subset of ethclient.Client the monitor needs.
type Client interface {
	ethereum.ContractCaller
	ethereum.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

// Fetcher pulls governance logs for block ranges and groups them into
// transactions.
type Fetcher struct {
	client  Client
	decoder *Decoder
	policy  retry.Policy
}

// NewFetcher returns a fetcher. RPC calls are retried with retry.RPC.
func NewFetcher(client Client, decoder *Decoder) *Fetcher {
	p := retry.RPC
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warnf("RPC attempt %d failed, retrying in %v: %v", attempt, wait, err)
	}
	return &Fetcher{
		client:  client,
		decoder: decoder,
		policy:  p,
	}
}

// Head returns the latest block number.
func (f *Fetcher) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		var err error
		head, err = f.client.BlockNumber(ctx)
		return err
	})
	return head, err
}

// Range returns the governance transactions mined in [from, to].
func (f *Fetcher) Range(ctx context.Context, from, to uint64) ([]events.Transaction, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: f.decoder.Addresses(),
		Topics:    [][]common.Hash{f.decoder.Topics()},
	}
	var logs []types.Log
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		var err error
		logs, err = f.client.FilterLogs(ctx, q)
		if err != nil && isRangeError(err) {
			return retry.Permanent(errors.Wrapf(ErrRangeTooLarge, "blocks %d-%d: %v", from, to, err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Fetched %d logs in blocks %d-%d", len(logs), from, to)
	return f.decoder.Group(logs), nil
}
