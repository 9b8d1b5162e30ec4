package detector

import (
	"context"
	"math/big"
	"testing"

	"influence-monitoring/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

func TestSeverity(t *testing.T) {
	th := testConfig().Thresholds
	tests := []struct {
		delta int64
		want  Severity
	}{
		{1001, SeverityLow},
		{4999, SeverityLow},
		{5000, SeverityMedium},
		{9999, SeverityMedium},
		{10000, SeverityHigh},
		{10200, SeverityHigh},
	}
	for _, tc := range tests {
		if got := th.Severity(big.NewInt(tc.delta)); got != tc.want {
			t.Errorf("severity(%d) = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestExceedsIsStrict(t *testing.T) {
	th := testConfig().Thresholds
	if th.Exceeds(big.NewInt(1000)) {
		t.Error("threshold itself exceeds")
	}
	if !th.Exceeds(big.NewInt(1001)) {
		t.Error("1001 does not exceed")
	}
}

func TestAfterOutcome(t *testing.T) {
	th := testConfig().Thresholds
	delta := big.NewInt(2000)
	tests := []struct {
		from     models.Classification
		kind     AlertKind
		severity Severity
		next     models.Classification
	}{
		{models.ClassificationNone, KindDecrease, SeverityLow, models.ClassificationAfter},
		{models.ClassificationAfter, KindDecrease, SeverityLow, models.ClassificationAfter},
		{models.ClassificationBefore, KindFull, SeverityCritical, models.ClassificationFull},
		{models.ClassificationFull, KindFull, SeverityCritical, models.ClassificationFull},
	}
	for _, tc := range tests {
		kind, sev, next := th.AfterOutcome(tc.from, delta)
		if kind != tc.kind || sev != tc.severity || next != tc.next {
			t.Errorf("%v: got %v %v %v", tc.from, kind, sev, next)
		}
	}
}

func TestTrackerCandidates(t *testing.T) {
	tr := NewTracker(100, testConfig().Thresholds)
	votes := []models.Vote{
		{ID: 1, ProposalID: "1", BlockNumber: 120},
		{ID: 2, ProposalID: "2", BlockNumber: 180},
		{ID: 3, ProposalID: "3", BlockNumber: 260},
	}
	tests := []struct {
		block uint64
		want  []string
	}{
		{150, []string{"1"}},
		{200, []string{"2"}},
		{250, []string{"2"}},
		{300, []string{"3"}},
		{100, nil},
		{400, nil},
	}
	for _, tc := range tests {
		var got []string
		for _, v := range tr.candidates(votes, tc.block) {
			got = append(got, v.ProposalID)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("block %d: %v", tc.block, diff)
		}
	}
}

func TestTrackerCandidatesPreferFlaggedBefore(t *testing.T) {
	tr := NewTracker(100, testConfig().Thresholds)
	votes := []models.Vote{
		{ID: 1, ProposalID: "1", BlockNumber: 110, Classification: models.ClassificationBefore},
		{ID: 2, ProposalID: "2", BlockNumber: 160, Classification: models.ClassificationBefore},
		{ID: 3, ProposalID: "3", BlockNumber: 165},
	}
	tests := []struct {
		block uint64
		want  []string
	}{
		{170, []string{"2", "1", "3"}},
		// Vote 1 left the window.
		{215, []string{"2", "3"}},
		// Vote 3 is not cast yet, vote 2 is already first.
		{162, []string{"2", "1"}},
	}
	for _, tc := range tests {
		var got []string
		for _, v := range tr.candidates(votes, tc.block) {
			got = append(got, v.ProposalID)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("block %d: %v", tc.block, diff)
		}
	}
}

func TestScannerWindow(t *testing.T) {
	cfg := testConfig()
	// The proposal starts at 150, so the lead window opens at 100.
	tests := []struct {
		name  string
		cps   []Checkpoint
		delta int64 // 0 means no finding
	}{
		{
			name: "latest checkpoint before the lead window",
			cps:  checkpoints(10, 0, 20, 0, 90, 5000),
		},
		{
			name: "walk stops at the first checkpoint outside the window",
			cps:  checkpoints(10, 0, 20, 0, 90, 1400, 160, 1500),
		},
		{
			name:  "first qualifying checkpoint wins",
			cps:   checkpoints(10, 0, 105, 0, 130, 200, 160, 1500),
			delta: 1300,
		},
		{
			name: "two checkpoints never qualify",
			cps:  checkpoints(105, 0, 160, 5000),
		},
		{
			name:  "checkpoint on the window edge counts",
			cps:   checkpoints(10, 0, 100, 0, 160, 1500),
			delta: 1500,
		},
	}
	for _, tc := range tests {
		l := &fakeLedger{checkpoints: map[common.Address][]Checkpoint{voterA: tc.cps}}
		s := NewScanner(l, cfg.LeadWindowSize, cfg.AfterVoteWindow, cfg.Thresholds)
		got, err := s.Delta(context.Background(), voterA, 150, 160)
		if err != nil {
			t.Fatalf("%v: %v", tc.name, err)
		}
		var want *big.Int
		if tc.delta != 0 {
			want = big.NewInt(tc.delta)
		}
		if (got == nil) != (want == nil) || (got != nil && got.Cmp(want) != 0) {
			t.Errorf("%v: got delta %v, want %v", tc.name, got, want)
		}
	}
}
