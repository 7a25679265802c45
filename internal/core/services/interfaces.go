package services

import (
	"context"
	"time"
)

// TokenDenylist remembers revoked portal credentials until they would have
// expired anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// DocumentStore persists uploaded invoice documents and returns a reference
// that can later be attached to an invoice.
type DocumentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Owns reports whether ref is a reference this store returned for an
	// existing document whose key starts with keyPrefix.
	Owns(ctx context.Context, ref, keyPrefix string) (bool, error)
}
