package models

import "time"

// CAProviderConfig describes one certificate-authority backend. Built-in
// providers are seeded at process start; custom providers can be registered
// at runtime and merge into the same lookup table.
type CAProviderConfig struct {
	Code         string // unique, stored uppercase
	Name         string
	EndpointURL  string
	Algorithm    string // default signing algorithm, e.g. "ECDSA-SHA256"
	KeySize      int
	ValidityDays int
	SupportsHSM  bool
	Description  string
	Active       bool
	BuiltIn      bool

	CreatedAt time.Time
}
