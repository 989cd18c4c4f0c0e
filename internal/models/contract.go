package models

import "time"

type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractDisputed  ContractStatus = "disputed"
)

// Contract links one project to one client and one freelancer. The engine only
// reads it to resolve who pays and who gets paid.
type Contract struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	ClientID     string         `json:"client_id"`
	FreelancerID string         `json:"freelancer_id"`
	Status       ContractStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c Contract) IsParticipant(userID string) bool {
	return userID != "" && (c.ClientID == userID || c.FreelancerID == userID)
}
