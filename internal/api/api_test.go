package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"influence-monitoring/internal/collector"
	"influence-monitoring/internal/detector"
	"influence-monitoring/internal/events"
	"influence-monitoring/internal/metrics"
	"influence-monitoring/internal/models"
	"influence-monitoring/internal/sink"
	"influence-monitoring/internal/store/localdb"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

type fixedStatus collector.Status

func (f fixedStatus) Status() collector.Status { return collector.Status(f) }

var voter = events.AddressKey(common.HexToAddress("0x00000000000000000000000000000000000000aa"))

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	s, err := localdb.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.UpsertProposal(ctx, &models.Proposal{ProposalID: "1", StartBlock: 150, EndBlock: 250}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertVote(ctx, &models.Vote{
		Voter:       voter,
		ProposalID:  "1",
		BlockNumber: 160,
		Weight:      models.NewBigInt(big.NewInt(10300)),
	}); err != nil {
		t.Fatal(err)
	}

	recent := sink.NewRecent(10)
	for _, id := range []string{"a", "b", "c"} {
		recent.Emit(ctx, []detector.Finding{{ID: id, Kind: detector.KindIncrease}})
	}

	st := fixedStatus{Head: 120, Processed: 100, Transactions: 4, Findings: 3, Votes: 1, Proposals: 1}
	return New(st, recent, s, metrics.New().Handler())
}

func get(t *testing.T, h http.Handler, path string, reply interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if reply != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), reply); err != nil {
			t.Fatalf("%v: %v", path, err)
		}
	}
	return rec.Code
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	var got Stats
	if code := get(t, srv, RouteStats, &got); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	want := Stats{Head: 120, Processed: 100, Lag: 20, Transactions: 4, Findings: 3, Proposals: 1, Votes: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error(diff)
	}
}

func TestFindings(t *testing.T) {
	srv := newTestServer(t)

	var fs []detector.Finding
	if code := get(t, srv, RouteFindings+"?limit=2", &fs); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	var ids []string
	for _, f := range fs {
		ids = append(ids, f.ID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Error(diff)
	}

	if code := get(t, srv, RouteFindings+"?limit=zero", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", code)
	}
}

func TestProposalsAndVotes(t *testing.T) {
	srv := newTestServer(t)

	var ps []models.Proposal
	if code := get(t, srv, RouteProposals, &ps); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	if len(ps) != 1 || ps[0].ProposalID != "1" {
		t.Errorf("got %+v", ps)
	}

	// Lower case addresses resolve to the checksummed store key.
	var vs []models.Vote
	if code := get(t, srv, "/v1/votes/0x00000000000000000000000000000000000000aa", &vs); code != http.StatusOK {
		t.Fatalf("got %d", code)
	}
	if len(vs) != 1 || vs[0].Weight.String() != "10300" {
		t.Errorf("got %+v", vs)
	}

	if code := get(t, srv, "/v1/votes/nope", nil); code != http.StatusBadRequest {
		t.Errorf("bad voter: got %d", code)
	}
}

func TestHealthMetricsNotFound(t *testing.T) {
	srv := newTestServer(t)
	if code := get(t, srv, RouteHealth, nil); code != http.StatusOK {
		t.Errorf("health: got %d", code)
	}
	if code := get(t, srv, RouteMetrics, nil); code != http.StatusOK {
		t.Errorf("metrics: got %d", code)
	}
	if code := get(t, srv, "/v2/nothing", nil); code != http.StatusNotFound {
		t.Errorf("unknown route: got %d", code)
	}
}
