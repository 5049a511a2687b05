// Copyright 2025 Traceprompt
//
// Process-wide hash chain linkage: a standalone, outbox-agnostic
// component whose head can be seeded from a replayed outbox on restart
// (audit.New does exactly that via Seed, with the head internal/outbox.Open
// replays).
package chain

import (
	"sync"

	"github.com/traceprompt/audit-go/internal/hasher"
)

// Chain maintains the process-wide chain_head and links new records into it.
// Callers serialize through Link; the mutex makes that safe even if a host
// application calls it from multiple goroutines.
type Chain struct {
	mu   sync.Mutex
	head *string // nil until the first record is linked
}

// New returns a chain with no head (the first linked record gets a nil
// prev_hash).
func New() *Chain {
	return &Chain{}
}

// Seed sets the chain head to an already-known leaf hash, used to resume a
// chain across process restarts from the tail of a replayed outbox.
func (c *Chain) Seed(leafHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := leafHash
	c.head = &h
}

// Head returns the current chain head, or "" if no record has been linked.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return ""
	}
	return *c.head
}

// Link computes the leaf hash of fields (the non-hash fields of a record,
// as a map ready for canonical encoding) with the current chain head
// injected as prev_hash, advances the chain head to the new leaf, and
// returns both values. fields is mutated: Link adds a "prev_hash" key and
// leaves it in place after returning.
func (c *Chain) Link(fields map[string]interface{}) (leafHash string, prevHash *string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev *string
	if c.head != nil {
		v := *c.head
		prev = &v
		fields["prev_hash"] = v
	} else {
		fields["prev_hash"] = nil
	}

	leaf, err := hasher.HashCanonical(fields)
	if err != nil {
		return "", nil, err
	}

	h := leaf
	c.head = &h
	return leaf, prev, nil
}
