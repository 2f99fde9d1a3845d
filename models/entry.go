package models

import (
	"time"

	"gorm.io/gorm"
)

// Entry is one diary record for a calendar date.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	When      time.Time `gorm:"column:when;type:date;not null;index" json:"when"`
	DayNumber *int      `json:"day_number"`
	Weight    *float64  `json:"weight"`
	Energy    *int      `json:"energy"`
	WaterML   *int      `gorm:"column:water_ml" json:"water_ml"`
	Mood      *string   `gorm:"size:32" json:"mood"`
	Feelings  *string   `gorm:"type:text" json:"feelings"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	Photos    []Photo   `gorm:"foreignKey:EntryID" json:"photos"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "entries" }

// BeforeSave keeps the calendar date free of a time-of-day component.
func (e *Entry) BeforeSave(tx *gorm.DB) error {
	e.When = DateOnly(e.When)
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
