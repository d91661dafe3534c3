package auth

import "time"

// Issuer is an account that issues invoices (a freelancer or a business).
type Issuer struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the authenticated caller as seen by request handlers.
type Identity struct {
	ID   string
	Name string
}
