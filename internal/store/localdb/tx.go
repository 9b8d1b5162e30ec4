package localdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"influence-monitoring/internal/models"
	"influence-monitoring/internal/store"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	prefixProposal = "proposal/"
	prefixVote     = "vote/"
	prefixVoter    = "voter/"
	keySeqVote     = "seq/vote"
	keySeqProposal = "seq/proposal"
)

var (
	_ store.Tx = (*tx)(nil)
)

// kv is the subset shared by *leveldb.Transaction and snapshot.
type kv interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

var errReadOnly = errors.New("write on a read-only snapshot")

// snapshot adapts a leveldb snapshot to kv. Writes fail.
type snapshot struct {
	*leveldb.Snapshot
}

func (snapshot) Put(key, value []byte, wo *opt.WriteOptions) error {
	return errReadOnly
}

func (snapshot) Delete(key []byte, wo *opt.WriteOptions) error {
	return errReadOnly
}

// tx implements the store Tx interface. Writes are only issued on a
// leveldb transaction, read-only views wrap a snapshot.
type tx struct {
	kv kv
}

func keyProposal(proposalID string) []byte {
	return []byte(prefixProposal + proposalID)
}

func keyVote(id uint) []byte {
	k := make([]byte, len(prefixVote)+8)
	copy(k, prefixVote)
	binary.BigEndian.PutUint64(k[len(prefixVote):], uint64(id))
	return k
}

func keyVoter(voter, proposalID string) []byte {
	return []byte(prefixVoter + voter + "/" + proposalID)
}

func (t *tx) get(key []byte, v interface{}) error {
	b, err := t.kv.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.Unavailable(err, "get")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}

func (t *tx) put(key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := t.kv.Put(key, b, nil); err != nil {
		return store.Unavailable(err, "put")
	}
	return nil
}

func (t *tx) del(key []byte) error {
	if err := t.kv.Delete(key, nil); err != nil {
		return store.Unavailable(err, "delete")
	}
	return nil
}

// next increments and returns the sequence stored under key.
func (t *tx) next(key string) (uint, error) {
	var seq uint64
	b, err := t.kv.Get([]byte(key), nil)
	switch {
	case err == nil && len(b) == 8:
		seq = binary.BigEndian.Uint64(b)
	case err == nil:
		return 0, errors.Errorf("corrupt sequence %v", key)
	case !errors.Is(err, leveldb.ErrNotFound):
		return 0, store.Unavailable(err, "get sequence")
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := t.kv.Put([]byte(key), buf[:], nil); err != nil {
		return 0, store.Unavailable(err, "put sequence")
	}
	return uint(seq), nil
}

// each calls fn with the raw value of every key under prefix.
func (t *tx) each(prefix string, fn func(key, value []byte) error) error {
	it := t.kv.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return store.Unavailable(err, "iterate")
	}
	return nil
}

func (t *tx) proposals() ([]models.Proposal, error) {
	var ps []models.Proposal
	err := t.each(prefixProposal, func(_, value []byte) error {
		var p models.Proposal
		if err := json.Unmarshal(value, &p); err != nil {
			return errors.WithStack(err)
		}
		ps = append(ps, p)
		return nil
	})
	return ps, err
}

func (t *tx) votes() ([]models.Vote, error) {
	var vs []models.Vote
	err := t.each(prefixVote, func(_, value []byte) error {
		var v models.Vote
		if err := json.Unmarshal(value, &v); err != nil {
			return errors.WithStack(err)
		}
		vs = append(vs, v)
		return nil
	})
	return vs, err
}

// UpsertProposal satisfies the store ProposalStore interface.
func (t *tx) UpsertProposal(ctx context.Context, p *models.Proposal) (bool, error) {
	if err := store.ValidateProposal(p); err != nil {
		return false, err
	}
	var existing models.Proposal
	err := t.get(keyProposal(p.ProposalID), &existing)
	switch {
	case err == nil:
		log.Debugf("Proposal %v already stored", p.ProposalID)
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	id, err := t.next(keySeqProposal)
	if err != nil {
		return false, err
	}
	now := time.Now()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := t.put(keyProposal(p.ProposalID), p); err != nil {
		return false, err
	}
	return true, nil
}

// FindProposal satisfies the store ProposalStore interface.
func (t *tx) FindProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	var p models.Proposal
	if err := t.get(keyProposal(proposalID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProposals satisfies the store ProposalStore interface.
func (t *tx) FindProposals(ctx context.Context) ([]models.Proposal, error) {
	ps, err := t.proposals()
	if err != nil {
		return nil, err
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps, nil
}

// DeleteProposalsEndedBefore satisfies the store ProposalStore interface.
func (t *tx) DeleteProposalsEndedBefore(ctx context.Context, block uint64) (int64, error) {
	ps, err := t.proposals()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, p := range ps {
		if p.EndBlock >= block {
			continue
		}
		if err := t.del(keyProposal(p.ProposalID)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CountProposals satisfies the store ProposalStore interface.
func (t *tx) CountProposals(ctx context.Context) (int64, error) {
	var n int64
	err := t.each(prefixProposal, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// UpsertVote satisfies the store VoteStore interface.
func (t *tx) UpsertVote(ctx context.Context, v *models.Vote) (bool, error) {
	if err := store.ValidateVote(v); err != nil {
		return false, err
	}
	existing, err := t.FindVote(ctx, v.Voter, v.ProposalID)
	switch {
	case err == nil:
		*v = *existing
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	id, err := t.next(keySeqVote)
	if err != nil {
		return false, err
	}
	now := time.Now()
	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Classification == "" {
		v.Classification = models.ClassificationNone
	}
	if err := t.put(keyVote(id), v); err != nil {
		return false, err
	}
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(id))
	if err := t.kv.Put(keyVoter(v.Voter, v.ProposalID), idx[:], nil); err != nil {
		return false, store.Unavailable(err, "put voter index")
	}
	return true, nil
}

// FindVote satisfies the store VoteStore interface.
func (t *tx) FindVote(ctx context.Context, voter, proposalID string) (*models.Vote, error) {
	b, err := t.kv.Get(keyVoter(voter, proposalID), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable(err, "get voter index")
	}
	if len(b) != 8 {
		return nil, errors.Errorf("corrupt voter index %v/%v", voter, proposalID)
	}
	var v models.Vote
	if err := t.get(keyVote(uint(binary.BigEndian.Uint64(b))), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVotesByVoter satisfies the store VoteStore interface.
func (t *tx) FindVotesByVoter(ctx context.Context, voter string) ([]models.Vote, error) {
	var ids []uint
	err := t.each(prefixVoter+voter+"/", func(_, value []byte) error {
		if len(value) != 8 {
			return errors.Errorf("corrupt voter index for %v", voter)
		}
		ids = append(ids, uint(binary.BigEndian.Uint64(value)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	vs := make([]models.Vote, 0, len(ids))
	for _, id := range ids {
		var v models.Vote
		if err := t.get(keyVote(id), &v); err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	sortVotes(vs)
	return vs, nil
}

// FindVotes satisfies the store VoteStore interface.
func (t *tx) FindVotes(ctx context.Context) ([]models.Vote, error) {
	vs, err := t.votes()
	if err != nil {
		return nil, err
	}
	sortVotes(vs)
	return vs, nil
}

// SetClassification satisfies the store VoteStore interface.
func (t *tx) SetClassification(ctx context.Context, id uint, from, to models.Classification) error {
	if !from.CanTransition(to) {
		return errors.Wrapf(store.ErrInvalidTransition, "%v -> %v", from, to)
	}
	var v models.Vote
	if err := t.get(keyVote(id), &v); err != nil {
		return err
	}
	current := v.Classification
	if current == "" {
		current = models.ClassificationNone
	}
	if current != from {
		return errors.Wrapf(store.ErrInvalidTransition,
			"vote %v is %v, not %v", id, current, from)
	}
	v.Classification = to
	v.UpdatedAt = time.Now()
	return t.put(keyVote(id), &v)
}

// DeleteVotesCastBefore satisfies the store VoteStore interface.
func (t *tx) DeleteVotesCastBefore(ctx context.Context, block uint64) (int64, error) {
	vs, err := t.votes()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, v := range vs {
		if v.BlockNumber >= block {
			continue
		}
		if err := t.del(keyVote(v.ID)); err != nil {
			return n, err
		}
		if err := t.del(keyVoter(v.Voter, v.ProposalID)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CountVotes satisfies the store VoteStore interface.
func (t *tx) CountVotes(ctx context.Context) (int64, error) {
	var n int64
	err := t.each(prefixVote, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func sortVotes(vs []models.Vote) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].BlockNumber != vs[j].BlockNumber {
			return vs[i].BlockNumber < vs[j].BlockNumber
		}
		return vs[i].ID < vs[j].ID
	})
}
