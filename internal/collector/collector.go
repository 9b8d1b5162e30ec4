// Package collector feeds mined governance transactions to the detector in
// block order and hands the findings to the sinks.
//
// New heads are discovered by polling the EVM node. When a CometBFT RPC is
// configured (EVM chains built on CometBFT), NewBlock events from its
// websocket trigger processing without waiting for the next poll.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"influence-monitoring/internal/chain"
	"influence-monitoring/internal/config"
	"influence-monitoring/internal/detector"
	"influence-monitoring/internal/events"
	"influence-monitoring/internal/labels"
	"influence-monitoring/internal/metrics"
	"influence-monitoring/internal/sink"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// TUIChannelBufferSize is the buffer of the TUI update channel.
	TUIChannelBufferSize = 64

	// TUICloseDelay lets the TUI drain before the process exits.
	TUICloseDelay = 200 * time.Millisecond

	subscriber      = "govmon"
	watchdogTimeout = 30 * time.Second
	reconnectDelay  = 3 * time.Second
	recentInStatus  = 20
)

var errReconnect = errors.New("reconnect: no blocks received")

// Source yields the chain head and the governance transactions of a block
// range.
type Source interface {
	Head(ctx context.Context) (uint64, error)
	Range(ctx context.Context, from, to uint64) ([]events.Transaction, error)
}

// Engine processes transactions one at a time.
type Engine interface {
	HandleTransaction(ctx context.Context, txn events.Transaction) ([]detector.Finding, error)
	Sweep(ctx context.Context, block uint64) error
}

// Counter reports the size of the store.
type Counter interface {
	CountProposals(ctx context.Context) (int64, error)
	CountVotes(ctx context.Context) (int64, error)
}

// Options are the optional collaborators of a Collector.
type Options struct {
	Labels  *labels.Resolver
	Metrics *metrics.Metrics
	Recent  *sink.Recent
	Updates chan<- interface{} // receives Status after every catch up
}

// Status is a snapshot of the collector progress.
type Status struct {
	Head          uint64
	Processed     uint64
	Transactions  uint64
	Findings      uint64
	Failures      uint64
	Proposals     int64
	Votes         int64
	LastBlockTime time.Time
	BlockTime     time.Duration
	Recent        []detector.Finding
}

type Collector struct {
	cfg     config.Config
	src     Source
	engine  Engine
	counter Counter
	out     sink.Sink
	opts    Options

	client *rpchttp.HTTP
	kick   chan struct{}

	lastBlockTime   time.Time
	lastBlockTimeMu sync.RWMutex

	mu      sync.RWMutex
	status  Status
	next    uint64
	batch   uint64 // shrinks when the node refuses a range
	started bool
}

func NewCollector(cfg config.Config, src Source, engine Engine, counter Counter, out sink.Sink, opts Options) *Collector {
	return &Collector{
		cfg:     cfg,
		src:     src,
		engine:  engine,
		counter: counter,
		out:     out,
		opts:    opts,
		kick:    make(chan struct{}, 1),
		batch:   max(cfg.BatchBlocks, 1),
	}
}

// Run processes blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.processLoop(gctx)
	})
	if c.cfg.CometRPCURL != "" {
		g.Go(func() error {
			return c.subscribeLoop(gctx)
		})
	}
	return g.Wait()
}

// Status returns the current progress.
func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	if c.opts.Recent != nil {
		s.Recent = c.opts.Recent.Snapshot(recentInStatus)
	}
	return s
}

func (c *Collector) processLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.CatchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("Catch up failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-c.kick:
		}
	}
}

// CatchUp processes every confirmed block not processed yet.
func (c *Collector) CatchUp(ctx context.Context) error {
	head, err := c.src.Head(ctx)
	if err != nil {
		return errors.Wrap(err, "head")
	}
	c.mu.Lock()
	c.status.Head = head
	c.mu.Unlock()
	if c.opts.Metrics != nil {
		c.opts.Metrics.HeadBlock.Set(float64(head))
	}

	if head < c.cfg.Confirmations {
		return nil
	}
	safe := head - c.cfg.Confirmations
	if !c.started {
		c.next = safe
		if c.cfg.StartBlock != 0 {
			c.next = c.cfg.StartBlock
		}
		c.started = true
		log.Infof("Starting at block %d (head %d)", c.next, head)
	}

	for c.next <= safe {
		to := c.next + c.batch - 1
		if to > safe {
			to = safe
		}
		txs, err := c.src.Range(ctx, c.next, to)
		if errors.Is(err, chain.ErrRangeTooLarge) && to > c.next {
			c.batch = (to - c.next + 1) / 2
			log.Warnf("Blocks %d-%d refused, fetching %d blocks at a time", c.next, to, c.batch)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "blocks %d-%d", c.next, to)
		}
		for _, txn := range txs {
			c.handle(ctx, txn)
		}
		if err := c.engine.Sweep(ctx, to); err != nil {
			log.Errorf("Sweep at block %d failed: %v", to, err)
		}

		c.mu.Lock()
		c.status.Processed = to
		c.mu.Unlock()
		if c.opts.Metrics != nil {
			c.opts.Metrics.ProcessedBlock.Set(float64(to))
		}
		c.next = to + 1
	}

	c.refreshCounts(ctx)
	c.publish()
	return nil
}

func (c *Collector) handle(ctx context.Context, txn events.Transaction) {
	findings, err := c.engine.HandleTransaction(ctx, txn)

	c.mu.Lock()
	c.status.Transactions++
	c.status.Findings += uint64(len(findings))
	if err != nil {
		c.status.Failures++
	}
	c.mu.Unlock()

	if m := c.opts.Metrics; m != nil {
		m.Transactions.Inc()
		for _, f := range findings {
			m.Findings.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
		}
	}
	if err != nil {
		log.Errorf("Tx %v in block %d: %v", txn.Hash, txn.BlockNumber, err)
		c.recordFailures(err)
	}
	if len(findings) == 0 {
		return
	}

	c.annotate(ctx, findings)
	if err := c.out.Emit(ctx, findings); err != nil {
		log.Errorf("Delivering %d findings of tx %v: %v", len(findings), txn.Hash, err)
		if c.opts.Metrics != nil {
			c.opts.Metrics.SinkFailures.Inc()
		}
	}
}

// recordFailures counts every phase failure joined into err.
func (c *Collector) recordFailures(err error) {
	if c.opts.Metrics == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			c.recordFailures(e)
		}
		return
	}
	var e *detector.Error
	if errors.As(err, &e) {
		c.opts.Metrics.PhaseFailures.WithLabelValues(string(e.Phase), e.Kind.String()).Inc()
	}
}

// annotate adds the voter label to the finding metadata.
func (c *Collector) annotate(ctx context.Context, findings []detector.Finding) {
	if c.opts.Labels == nil {
		return
	}
	for i := range findings {
		f := &findings[i]
		if f.Voter == "" {
			continue
		}
		if l := c.opts.Labels.Resolve(ctx, f.Voter); l != "" {
			if f.Metadata == nil {
				f.Metadata = map[string]string{}
			}
			f.Metadata["voterLabel"] = l
			f.Description = fmt.Sprintf("%s (%s)", f.Description, l)
		}
	}
}

func (c *Collector) refreshCounts(ctx context.Context) {
	if c.counter == nil {
		return
	}
	np, err1 := c.counter.CountProposals(ctx)
	nv, err2 := c.counter.CountVotes(ctx)
	if err1 != nil || err2 != nil {
		log.Debugf("Count store: %v %v", err1, err2)
		return
	}
	c.mu.Lock()
	c.status.Proposals = np
	c.status.Votes = nv
	c.mu.Unlock()
	if m := c.opts.Metrics; m != nil {
		m.Proposals.Set(float64(np))
		m.Votes.Set(float64(nv))
	}
}

// publish sends the status to the TUI without blocking.
func (c *Collector) publish() {
	if c.opts.Updates == nil {
		return
	}
	select {
	case c.opts.Updates <- c.Status():
	default:
	}
}

// notify wakes the process loop.
func (c *Collector) notify() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Collector) subscribeLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		err := c.runLoop(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		// Only log actual errors, not planned reconnects
		if !errors.Is(err, errReconnect) {
			log.Warnf("Head subscription error: %v, reconnecting...", err)
		}
		if c.opts.Metrics != nil {
			c.opts.Metrics.Reconnects.Inc()
		}
		select {
		case <-ctx.Done():
		case <-time.After(reconnectDelay):
		}
	}
	c.cleanupClient(context.Background())
	return nil
}

func (c *Collector) runLoop(ctx context.Context) error {
	// Cancelled on return so the handler of this connection stops.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.cleanupClient(loopCtx)
	if err := c.initClient(); err != nil {
		return err
	}

	blockCh, err := c.client.Subscribe(loopCtx, subscriber, "tm.event = 'NewBlock'")
	if err != nil {
		return errors.Wrap(err, "subscribe NewBlock")
	}
	log.Infof("Subscribed to NewBlock at %v", c.cfg.CometRPCURL)

	c.updateLastBlockTime()
	c.startEventHandler(loopCtx, "NewBlock", blockCh, func(ev rpccoretypes.ResultEvent) {
		if ev.Data == nil {
			return
		}
		c.handleNewBlock(ev)
	})

	return c.watchdogLoop(loopCtx)
}

// cleanupClient stops and cleans up the existing client
func (c *Collector) cleanupClient(ctx context.Context) {
	if c.client == nil {
		return
	}
	unsubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_ = c.client.UnsubscribeAll(unsubCtx, subscriber)
	_ = c.client.Stop()
	c.client = nil
}

func (c *Collector) initClient() error {
	client, err := rpchttp.New(c.cfg.CometRPCURL, c.cfg.WSURL())
	if err != nil {
		return errors.Wrap(err, "create rpc client")
	}
	if err := client.Start(); err != nil {
		return errors.Wrap(err, "start rpc client")
	}
	c.client = client
	return nil
}

func (c *Collector) startEventHandler(ctx context.Context, name string, ch <-chan rpccoretypes.ResultEvent, handler func(rpccoretypes.ResultEvent)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					log.Warnf("%s event channel closed", name)
					return
				}
				handler(ev)
			}
		}
	}()
}

func (c *Collector) handleNewBlock(ev rpccoretypes.ResultEvent) {
	data, ok := ev.Data.(cmttypes.EventDataNewBlock)
	if !ok {
		if d2, ok2 := ev.Data.(*cmttypes.EventDataNewBlock); ok2 && d2 != nil {
			data = *d2
			ok = true
		}
	}
	if !ok {
		log.Debugf("Unknown NewBlock event data type: %T", ev.Data)
		return
	}
	if data.Block == nil || data.Block.Header.Height == 0 {
		return
	}

	now := time.Now()
	c.lastBlockTimeMu.Lock()
	prev := c.lastBlockTime
	c.lastBlockTime = now
	c.lastBlockTimeMu.Unlock()

	c.mu.Lock()
	c.status.LastBlockTime = now
	if !prev.IsZero() {
		c.status.BlockTime = now.Sub(prev)
	}
	c.mu.Unlock()

	log.Debugf("NewBlock height=%d", data.Block.Header.Height)
	c.notify()
}

func (c *Collector) updateLastBlockTime() {
	c.lastBlockTimeMu.Lock()
	c.lastBlockTime = time.Now()
	c.lastBlockTimeMu.Unlock()
}

// watchdogLoop forces a reconnect when no block arrived for watchdogTimeout.
func (c *Collector) watchdogLoop(ctx context.Context) error {
	watchdog := time.NewTicker(watchdogTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watchdog.C:
			if c.shouldReconnect() {
				log.Warnf("No blocks received for %v, reconnecting websocket", watchdogTimeout)
				c.updateLastBlockTime()
				return errReconnect
			}
		}
	}
}

func (c *Collector) shouldReconnect() bool {
	c.lastBlockTimeMu.RLock()
	defer c.lastBlockTimeMu.RUnlock()
	return time.Since(c.lastBlockTime) > watchdogTimeout
}
