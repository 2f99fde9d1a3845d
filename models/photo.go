package models

import "time"

// Photo is an uploaded image stored on disk and owned by exactly one Entry.
type Photo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Filename  string    `gorm:"size:256;not null" json:"filename"`
	EntryID   uint      `gorm:"index;not null" json:"entry_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName pins the table name.
func (Photo) TableName() string { return "photos" }

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Entry{}, &Photo{}}
}
