package models

import (
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// DisabledPassword marks accounts provisioned by the synchronizer. It is
// not a hash of anything, so such accounts can never authenticate.
const DisabledPassword = "$disabled$"

type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:text;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:text;not null" json:"email"`
	Password  string    `gorm:"type:text;not null" json:"-"`
	Role      string    `gorm:"type:text;not null;default:USER" json:"role"`
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
