package domain

import "time"

// APIKey is an opaque bearer secret. Only the digest of the secret is kept.
type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Digest    string    `json:"-"`
	Label     string    `json:"name"`
	ExpiresAt time.Time `json:"expiration_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the key is past its expiration instant.
func (k *APIKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
