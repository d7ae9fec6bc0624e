package model

import "github.com/shopspring/decimal"

// BudgetRequest asks for funds; it passes through the longest chain.
type BudgetRequest struct {
	RequestHeader `gorm:"embedded"`
	Title         string          `gorm:"type:varchar(255);not null" json:"title"`
	Category      string          `gorm:"type:varchar(50)" json:"category"`
	Priority      string          `gorm:"type:varchar(20)" json:"priority"`
	Justification string          `gorm:"type:text" json:"justification"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
}
