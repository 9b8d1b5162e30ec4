// Package detector implements the governance influence detection engine.
//
// A Monitor consumes mined transactions decoded into governance events and
// flags voters whose voting power rose sharply in the blocks before a
// proposal opened (INC), fell sharply in the blocks after they voted (DEC),
// or both (FULL). Proposal creation is reported as an informational NEW
// finding.
//
// Every transaction is processed in four phases, each inside its own store
// transaction: proposal ingestion, vote ingestion with the before-vote
// checkpoint scan, the after-vote balance check, and the eviction sweep. A
// failing phase rolls back and drops its findings without stopping the
// phases after it.
package detector

import (
	"context"
	"errors"

	"influence-monitoring/internal/config"
	"influence-monitoring/internal/events"
	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"
)

// Config holds the windows and thresholds of the engine.
type Config struct {
	LeadWindowSize  uint64
	AfterVoteWindow uint64
	Thresholds      Thresholds
	AlertPrefix     string
}

// NewConfig converts the loaded engine settings.
func NewConfig(e config.Engine, alertPrefix string) Config {
	return Config{
		LeadWindowSize:  e.LeadWindowSize,
		AfterVoteWindow: e.AfterVoteWindow,
		Thresholds: Thresholds{
			Voting: e.VotingPowerThreshold,
			Medium: e.MediumThreshold,
			High:   e.HighThreshold,
		},
		AlertPrefix: alertPrefix,
	}
}

// Monitor is the detection engine. HandleTransaction must not be called
// concurrently.
type Monitor struct {
	store   store.Store
	alerts  alerts
	scanner *Scanner
	tracker *Tracker
	sweeper *Sweeper
}

// New returns a monitor persisting to s and reading checkpoints from l.
func New(cfg Config, s store.Store, l Ledger) *Monitor {
	return &Monitor{
		store: s,
		alerts: alerts{
			prefix:     cfg.AlertPrefix,
			leadWindow: cfg.LeadWindowSize,
			afterVote:  cfg.AfterVoteWindow,
		},
		scanner: NewScanner(l, cfg.LeadWindowSize, cfg.AfterVoteWindow, cfg.Thresholds),
		tracker: NewTracker(cfg.AfterVoteWindow, cfg.Thresholds),
		sweeper: NewSweeper(cfg.AfterVoteWindow),
	}
}

// batch is a transaction's events split by type, in log order.
type batch struct {
	proposals []events.ProposalCreated
	votes     []events.VoteCast
	changes   []events.DelegateVotesChanged
}

func split(txn events.Transaction) batch {
	var b batch
	for _, ev := range txn.Events {
		if err := ev.Validate(); err != nil {
			log.Warnf("Dropping malformed event in tx %v: %v", txn.Hash, err)
			continue
		}
		switch e := ev.(type) {
		case events.ProposalCreated:
			b.proposals = append(b.proposals, e)
		case events.VoteCast:
			b.votes = append(b.votes, e)
		case events.DelegateVotesChanged:
			b.changes = append(b.changes, e)
		default:
			log.Debugf("Ignoring event %T in tx %v", ev, txn.Hash)
		}
	}
	return b
}

// phaseFunc runs one phase inside a store transaction. soft errors are
// reported without rolling the phase back.
type phaseFunc func(ctx context.Context, tx store.Tx) (found []Finding, soft []error, err error)

// HandleTransaction processes one transaction and returns its findings in
// phase order. The returned error joins one *Error per failed phase and
// per failed checkpoint scan; findings of the phases that succeeded are
// returned alongside it.
func (m *Monitor) HandleTransaction(ctx context.Context, txn events.Transaction) ([]Finding, error) {
	b := split(txn)
	txHash := txn.Hash.Hex()

	phases := []struct {
		phase Phase
		skip  bool
		run   phaseFunc
	}{
		{PhaseProposals, len(b.proposals) == 0, func(ctx context.Context, tx store.Tx) ([]Finding, []error, error) {
			return m.ingestProposals(ctx, tx, b.proposals, txn)
		}},
		{PhaseVotes, len(b.votes) == 0, func(ctx context.Context, tx store.Tx) ([]Finding, []error, error) {
			return m.ingestVotes(ctx, tx, b.votes, txn)
		}},
		{PhaseAfter, len(b.changes) == 0, func(ctx context.Context, tx store.Tx) ([]Finding, []error, error) {
			return m.scanAfter(ctx, tx, b.changes, txn)
		}},
		{PhaseSweep, false, func(ctx context.Context, tx store.Tx) ([]Finding, []error, error) {
			_, _, err := m.sweeper.Sweep(ctx, tx, txn.BlockNumber)
			return nil, nil, err
		}},
	}

	var (
		findings []Finding
		errs     []error
	)
	for _, p := range phases {
		if p.skip {
			continue
		}
		var (
			found []Finding
			soft  []error
		)
		err := m.store.Update(ctx, func(tx store.Tx) error {
			var err error
			found, soft, err = p.run(ctx, tx)
			return err
		})
		for _, e := range soft {
			errs = append(errs, phaseError(p.phase, txHash, e))
		}
		if err != nil {
			log.Errorf("Phase %v of tx %v failed: %v", p.phase, txHash, err)
			errs = append(errs, phaseError(p.phase, txHash, err))
			continue
		}
		findings = append(findings, found...)
	}

	return findings, errors.Join(errs...)
}

// Sweep runs the eviction sweep for a block without transactions.
func (m *Monitor) Sweep(ctx context.Context, block uint64) error {
	err := m.store.Update(ctx, func(tx store.Tx) error {
		_, _, err := m.sweeper.Sweep(ctx, tx, block)
		return err
	})
	if err != nil {
		return phaseError(PhaseSweep, "", err)
	}
	return nil
}

func (m *Monitor) ingestProposals(ctx context.Context, tx store.Tx, ps []events.ProposalCreated, txn events.Transaction) ([]Finding, []error, error) {
	var found []Finding
	for _, e := range ps {
		p := &models.Proposal{
			ProposalID:   e.ID.String(),
			StartBlock:   e.StartBlock,
			EndBlock:     e.EndBlock,
			CreatedBlock: txn.BlockNumber,
		}
		inserted, err := tx.UpsertProposal(ctx, p)
		switch {
		case errors.Is(err, store.ErrMalformed):
			log.Warnf("Dropping proposal %v: %v", p.ProposalID, err)
			continue
		case err != nil:
			return nil, nil, err
		case !inserted:
			log.Debugf("Proposal %v replayed", p.ProposalID)
			continue
		}
		log.Infof("Tracking proposal %v (blocks %d-%d)", p.ProposalID, p.StartBlock, p.EndBlock)
		found = append(found, m.alerts.newProposal(p, txn.BlockNumber, txn.Hash.Hex()))
	}
	return found, nil, nil
}

func (m *Monitor) ingestVotes(ctx context.Context, tx store.Tx, vs []events.VoteCast, txn events.Transaction) ([]Finding, []error, error) {
	var (
		found []Finding
		soft  []error
	)
	for _, e := range vs {
		v := &models.Vote{
			Voter:          events.AddressKey(e.Voter),
			ProposalID:     e.ProposalID.String(),
			BlockNumber:    txn.BlockNumber,
			Support:        e.Support,
			Weight:         models.NewBigInt(e.Votes),
			Reason:         e.Reason,
			Classification: models.ClassificationNone,
			TxHash:         txn.Hash.Hex(),
		}
		inserted, err := tx.UpsertVote(ctx, v)
		switch {
		case errors.Is(err, store.ErrMalformed):
			log.Warnf("Dropping vote of %v: %v", v.Voter, err)
			continue
		case err != nil:
			return nil, nil, err
		}
		if !inserted && v.Classification != models.ClassificationNone {
			// Replay of a vote that already fired.
			continue
		}

		f, err := m.scanner.Check(ctx, tx, m.alerts, v, e.Voter, txn.Hash.Hex())
		if err != nil {
			if IsKind(err, KindLedgerQuery) {
				log.Warnf("Before-vote scan of %v skipped: %v", v.Voter, err)
				soft = append(soft, err)
				continue
			}
			return nil, nil, err
		}
		if f != nil {
			found = append(found, *f)
		}
	}
	return found, soft, nil
}

func (m *Monitor) scanAfter(ctx context.Context, tx store.Tx, cs []events.DelegateVotesChanged, txn events.Transaction) ([]Finding, []error, error) {
	var found []Finding
	for _, e := range cs {
		f, err := m.tracker.Check(ctx, tx, m.alerts, events.AddressKey(e.Delegate),
			e.NewBalance, txn.BlockNumber, txn.Hash.Hex())
		if err != nil {
			return nil, nil, err
		}
		if f != nil {
			found = append(found, *f)
		}
	}
	return found, nil, nil
}
