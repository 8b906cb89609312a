package domain

import "time"

// Provider identifies the credential mechanism backing an account.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// User represents an account within one marketplace namespace.
// Exactly one of the password material (PasswordHash+Salt) or GoogleID is
// authoritative, depending on Provider; accounts never switch providers.
type User struct {
	ID           string
	Namespace    string
	Email        string
	Name         string
	Provider     Provider
	PasswordHash string
	Salt         string
	GoogleID     string
	CreatedAt    time.Time
}
