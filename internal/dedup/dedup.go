// Package dedup decides whether an incoming article has been seen before.
// Identity is the SHA-256 of the article URL, so the same story fetched
// from two feeds with the same link collapses into one record.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/newspulse/newspulse/internal/store"
)

type Status int

const (
	StatusNew Status = iota
	StatusDuplicate
)

func (s Status) String() string {
	if s == StatusDuplicate {
		return "duplicate"
	}
	return "new"
}

// URLHash returns the canonical article ID for a URL.
func URLHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Resolver checks incoming articles against the store.
//
// Resolve is advisory: two concurrent cycles can both see StatusNew for the
// same URL. The store's insert-if-absent is the final arbiter, Resolve just
// spares the pipeline an enrichment pass for articles already persisted.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve reports whether the article at url is already known, along with
// its canonical ID.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, Status, error) {
	id := URLHash(url)
	exists, err := r.store.HasArticle(ctx, id)
	if err != nil {
		return id, StatusNew, fmt.Errorf("check article %s: %w", id, err)
	}
	if exists {
		return id, StatusDuplicate, nil
	}
	return id, StatusNew, nil
}
