package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncRun is the persisted history of one batch synchronization. The
// in-flight run itself lives in the coordinator; this row exists so
// operators can query past runs after the fact.
type SyncRun struct {
	BatchID    string         `gorm:"primaryKey;type:text" json:"batch_id"`
	UserID     string         `gorm:"type:text;index;not null" json:"user_id"`
	Total      int            `gorm:"not null;default:0" json:"total"`
	Processed  int            `gorm:"not null;default:0" json:"processed"`
	Status     string         `gorm:"type:text;not null" json:"status"`
	LastError  *string        `gorm:"type:text" json:"last_error,omitempty"`
	StatsJSON  datatypes.JSON `gorm:"type:jsonb" json:"stats,omitempty"`
	StartedAt  time.Time      `gorm:"type:timestamptz;not null" json:"started_at"`
	FinishedAt *time.Time     `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
