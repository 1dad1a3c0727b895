package testfixtures

import (
	"sort"
	"sync"
	"testing"
)

func TestIDGeneratorSortsInIssueOrder(t *testing.T) {
	gen := NewIDGenerator("session")

	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		ids = append(ids, gen.Next())
	}
	if ids[0] != "session-0001" || ids[11] != "session-0012" {
		t.Fatalf("unexpected identifiers: %q, %q", ids[0], ids[11])
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("identifiers should sort in issue order: %v", ids)
	}
}

func TestIDGeneratorConcurrentUse(t *testing.T) {
	gen := NewIDGenerator("")
	next := gen.NextFunc()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 32 || gen.Issued() != 32 {
		t.Fatalf("expected 32 distinct identifiers, got %d (issued %d)", len(seen), gen.Issued())
	}
}
