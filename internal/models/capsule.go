package models

import "time"

// Capsule is the unit of multi-tenancy. Every memory belongs to exactly one
// capsule, and every capsule is owned by exactly one subject.
type Capsule struct {
	ID           string    `json:"id"`
	OwnerSubject string    `json:"owner_subject"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CapsuleGrant is a delegated-share edge giving a subject read access to a
// capsule it does not own. Grants are written by the external identity layer.
type CapsuleGrant struct {
	CapsuleID string    `json:"capsule_id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}
