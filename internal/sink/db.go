package sink

import (
	"context"

	"influence-monitoring/internal/detector"
	"influence-monitoring/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBSink stores findings in the findings table.
type DBSink struct {
	db *gorm.DB
}

// NewDBSink returns a sink writing to db. The findings table must exist.
func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

// Record converts a finding into its database row.
func Record(f detector.Finding) models.Finding {
	r := models.Finding{
		FindingID:   f.ID,
		AlertID:     f.AlertID,
		Kind:        string(f.Kind),
		Severity:    string(f.Severity),
		Type:        string(f.Type),
		Name:        f.Name,
		Description: f.Description,
		ProposalID:  f.ProposalID,
		Voter:       f.Voter,
		Support:     f.Support,
		Reason:      f.Reason,
		BlockNumber: f.BlockNumber,
		TxHash:      f.TxHash,
	}
	if f.Weight != nil {
		w := models.NewBigInt(f.Weight)
		r.Weight = &w
	}
	if f.Delta != nil {
		d := models.NewBigInt(f.Delta)
		r.Delta = &d
	}
	return r
}

func (s *DBSink) Emit(ctx context.Context, fs []detector.Finding) error {
	if len(fs) == 0 {
		return nil
	}
	rows := make([]models.Finding, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, Record(f))
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "finding_id"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return errors.Wrap(err, "store findings")
	}
	log.Debugf("Stored %d findings", len(rows))
	return nil
}

// Close is a no-op, the database is owned by the caller.
func (s *DBSink) Close() error { return nil }
