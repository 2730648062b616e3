package entity

import "time"

// Tombstone records a signal id whose originating message was deleted.
// A tombstoned id must never become an active signal again.
type Tombstone struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	DeletedAt time.Time `gorm:"index" json:"deleted_at"`
}

// TableName overrides the gorm table name.
func (Tombstone) TableName() string {
	return "tombstones"
}
