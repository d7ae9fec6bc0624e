package model

import "time"

// ActivityPlan is a student-organization activity proposal.
type ActivityPlan struct {
	RequestHeader `gorm:"embedded"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	Category      string    `gorm:"type:varchar(50)" json:"category"`
	Priority      string    `gorm:"type:varchar(20)" json:"priority"`
	Venue         string    `gorm:"type:varchar(255)" json:"venue"`
	Description   string    `gorm:"type:text" json:"description"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}
