package detector

import (
	"math/big"

	"influence-monitoring/internal/models"
)

// Thresholds are the voting power cut points. A delta must exceed Voting to
// be reported; Medium and High split reported deltas into severity tiers.
type Thresholds struct {
	Voting *big.Int
	Medium *big.Int
	High   *big.Int
}

// Exceeds reports whether delta is strictly above the reporting threshold.
func (t Thresholds) Exceeds(delta *big.Int) bool {
	return delta.Cmp(t.Voting) > 0
}

// Severity maps a delta to Low, Medium or High.
func (t Thresholds) Severity(delta *big.Int) Severity {
	switch {
	case delta.Cmp(t.Medium) < 0:
		return SeverityLow
	case delta.Cmp(t.High) < 0:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// AfterOutcome resolves the finding of a qualifying post-vote decrease for a
// vote currently classified c: the alert kind, its severity, and the
// classification the vote moves to. next equals c when no transition is due.
func (t Thresholds) AfterOutcome(c models.Classification, delta *big.Int) (kind AlertKind, sev Severity, next models.Classification) {
	switch c {
	case models.ClassificationBefore:
		return KindFull, SeverityCritical, models.ClassificationFull
	case models.ClassificationFull:
		return KindFull, SeverityCritical, models.ClassificationFull
	case models.ClassificationAfter:
		return KindDecrease, t.Severity(delta), models.ClassificationAfter
	default:
		return KindDecrease, t.Severity(delta), models.ClassificationAfter
	}
}
