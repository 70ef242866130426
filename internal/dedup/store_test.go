package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

func TestCheckAndMarkForwardsEachIDOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOf(rapid.StringMatching(`[a-e]{1,2}`)).Draw(t, "ids")

		s := New()
		var forwarded []string
		for _, id := range ids {
			if !s.CheckAndMark(id) {
				forwarded = append(forwarded, id)
			}
		}

		// Expected: distinct ids in first-seen order.
		seen := map[string]bool{}
		var want []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				want = append(want, id)
			}
		}
		if len(forwarded) != len(want) {
			t.Fatalf("forwarded %d events, want %d (%v vs %v)", len(forwarded), len(want), forwarded, want)
		}
		for i := range want {
			if forwarded[i] != want[i] {
				t.Fatalf("forwarded[%d] = %q, want %q", i, forwarded[i], want[i])
			}
		}
		if s.Len() != len(want) {
			t.Fatalf("Len = %d, want %d", s.Len(), len(want))
		}
	})
}

func TestClearMakesIDNewAgain(t *testing.T) {
	t.Parallel()
	s := New()
	if s.CheckAndMark("abc") {
		t.Fatal("first CheckAndMark reported duplicate")
	}
	if !s.CheckAndMark("abc") {
		t.Fatal("second CheckAndMark should report duplicate")
	}
	if n := s.Clear(); n != 1 {
		t.Fatalf("Clear evicted %d, want 1", n)
	}
	if s.CheckAndMark("abc") {
		t.Fatal("CheckAndMark right after Clear should treat id as new")
	}
}

func TestConcurrentCheckAndMarkSingleWinner(t *testing.T) {
	t.Parallel()
	s := New()
	const workers = 64
	var (
		wg    sync.WaitGroup
		fresh atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.CheckAndMark("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := fresh.Load(); got != 1 {
		t.Fatalf("%d callers saw the id as new, want exactly 1", got)
	}
}

func TestConcurrentClearNeverLosesWithinCycle(t *testing.T) {
	t.Parallel()
	s := New()
	const (
		ids    = 200
		rounds = 20
	)

	var (
		clears atomic.Int64
		fresh  [ids]atomic.Int64
		wg     sync.WaitGroup
		stop   = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Clear()
				clears.Add(1)
			}
		}
	}()

	var workers sync.WaitGroup
	for w := 0; w < 4; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for r := 0; r < rounds; r++ {
				for i := 0; i < ids; i++ {
					if !s.CheckAndMark(fmt.Sprintf("id-%d", i)) {
						fresh[i].Add(1)
					}
				}
			}
		}()
	}
	workers.Wait()
	close(stop)
	wg.Wait()

	// An id can only become new again across a clear boundary.
	limit := clears.Load() + 1
	for i := range fresh {
		if got := fresh[i].Load(); got < 1 || got > limit {
			t.Fatalf("id-%d seen as new %d times, clears=%d", i, got, clears.Load())
		}
	}
}
