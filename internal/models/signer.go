package models

import "time"

// Signer represents an identity allowed to sign documents. The orchestrator
// snapshots Name and Role onto each signature record so later role changes do
// not rewrite history.
type Signer struct {
	ID     string
	Name   string
	Role   string
	Email  string
	OrgID  string
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
