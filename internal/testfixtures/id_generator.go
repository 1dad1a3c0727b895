package testfixtures

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator hands out deterministic identifiers such as "id-0001". The
// counter is zero padded so identifiers sort in the order they were issued,
// which keeps tie breaks on equal session start times predictable.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

// NewIDGenerator returns a generator using prefix, or "id" when empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next issues the next identifier. It is safe for concurrent use.
func (g *IDGenerator) Next() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.issued.Add(1))
}

// NextFunc returns Next for injection into services.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}
