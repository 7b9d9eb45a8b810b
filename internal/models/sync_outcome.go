package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncOutcome is one entry of the append-only sync log.
type SyncOutcome struct {
	ID              string     `json:"id" gorm:"primaryKey;column:id"`
	SyncTime        time.Time  `json:"sync_time" gorm:"column:sync_time;not null"`
	Mode            SyncMode   `json:"mode" gorm:"column:mode"`
	ProductsUpdated int        `json:"products_updated" gorm:"column:products_updated"`
	ProductsAdded   int        `json:"products_added" gorm:"column:products_added"`
	ProductsFailed  int        `json:"products_failed" gorm:"column:products_failed"`
	Status          SyncStatus `json:"status" gorm:"column:status;not null"`
	ErrorMessage    *string    `json:"error_message,omitempty" gorm:"column:error_message"`
}

type SyncStatus string

const (
	SyncStatusSuccess        SyncStatus = "SUCCESS"
	SyncStatusPartialSuccess SyncStatus = "PARTIAL_SUCCESS"
	SyncStatusFailed         SyncStatus = "FAILED"
)

type SyncMode string

const (
	SyncModeFull        SyncMode = "FULL"
	SyncModeIncremental SyncMode = "INCREMENTAL"
)

// ParseSyncMode accepts the mode names case-insensitively, plus the
// "initial" alias for a full load.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FULL", "INITIAL":
		return SyncModeFull, nil
	case "INCREMENTAL", "":
		return SyncModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

func (SyncOutcome) TableName() string {
	return "sync_outcomes"
}

func (o *SyncOutcome) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}
