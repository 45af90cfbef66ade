package models

import (
	"time"
)

// Todo keeps the external record id as its primary key so repeated sync
// passes update in place instead of duplicating rows.
type Todo struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedBy string    `gorm:"type:text" json:"created_by"`
	UpdatedBy string    `gorm:"type:text" json:"updated_by"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null" json:"updated_at"`
}

func (Todo) TableName() string {
	return "todos"
}
