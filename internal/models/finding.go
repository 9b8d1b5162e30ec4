package models

import "time"

// Finding is an emitted alert as persisted by the database sink.
type Finding struct {
	ID          uint      `gorm:"primaryKey"`
	FindingID   string    `gorm:"size:36;uniqueIndex;not null"`
	AlertID     string    `gorm:"size:32;index"`
	Kind        string    `gorm:"size:8;index"`
	Severity    string    `gorm:"size:16;index"`
	Type        string    `gorm:"size:16"`
	Name        string    `gorm:"size:128"`
	Description string    `gorm:"type:text"`
	ProposalID  string    `gorm:"size:80;index"`
	Voter       string    `gorm:"size:64;index"`
	Support     Support
	Weight      *BigInt
	Delta       *BigInt
	Reason      string    `gorm:"type:text"`
	BlockNumber uint64    `gorm:"index"`
	TxHash      string    `gorm:"size:66"`
	CreatedAt   time.Time `gorm:"index"`
}
