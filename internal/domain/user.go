package domain

import "time"

// User represents a dashboard user. Email is the identity key across providers.
type User struct {
	ID             string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
