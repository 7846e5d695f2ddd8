// Package tsa talks to a Timestamp Authority that countersigns a data hash
// with a trusted time value. Timestamping is an enhancement to a signature,
// not a precondition: callers treat any failure here as a degraded outcome,
// never as a reason to abort signing.
package tsa

import (
	"context"
	"errors"
	"time"
)

// ErrTokenMismatch is returned when a token does not cover the given hash.
var ErrTokenMismatch = errors.New("timestamp token does not match hash")

// Token is the TSA's countersignature over a data hash.
type Token struct {
	// Value is the opaque token issued by the TSA.
	Value string

	// URL identifies the authority that issued the token.
	URL string

	// SignedAt is the trusted time asserted by the TSA.
	SignedAt time.Time

	// SerialNumber is the TSA-assigned serial for this token.
	SerialNumber string
}

// Client is the capability set of a timestamp authority. A real RFC 3161
// client slots in here without changing the signing pipeline.
type Client interface {
	// Timestamp requests a token over the hex-encoded data hash.
	Timestamp(ctx context.Context, hashHex string) (*Token, error)

	// Verify re-validates a previously issued token against the hash it is
	// supposed to cover.
	Verify(ctx context.Context, token *Token, hashHex string) error
}
