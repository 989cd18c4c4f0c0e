package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "pending"
	MilestoneFunded   MilestoneStatus = "funded"
	MilestoneReleased MilestoneStatus = "released"
)

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneFunded, MilestoneReleased:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is the single forward step from s.
// There are no backward transitions and no skips.
func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	switch s {
	case MilestonePending:
		return next == MilestoneFunded
	case MilestoneFunded:
		return next == MilestoneReleased
	}
	return false
}

type Milestone struct {
	ID         string          `json:"id"`
	ContractID string          `json:"contract_id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Status     MilestoneStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
