// Package models defines the persistent entities of the identity core.
package models

import "time"

type Caregiver struct {
	ID           string
	Email        string // normalized to lowercase, globally unique
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
