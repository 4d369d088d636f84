package session

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// reconciler converges one counter fed by two writers: push deltas from the
// realtime channel and a periodic authoritative pull. The pull always wins;
// a push is only a low-latency preview until the next pull lands. Each pull
// carries a monotonically increasing fence so one that resolves out of order
// is discarded instead of clobbering a fresher value.
type reconciler struct {
	fetch    func() (int, error)
	apply    func(int)
	interval time.Duration

	fence atomic.Uint64

	mu      sync.Mutex
	applied uint64 // fence of the last pull that won
}

func newReconciler(fetch func() (int, error), apply func(int), interval time.Duration) *reconciler {
	return &reconciler{fetch: fetch, apply: apply, interval: interval}
}

// run pulls on a fixed interval until stop closes. Each pull runs on its own
// goroutine so a slow request never delays the ticker; the fence resolves
// any resulting races.
func (r *reconciler) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			go r.pull()
		}
	}
}

// Refresh schedules an immediate authoritative pull (window focus,
// reconnect).
func (r *reconciler) Refresh() {
	go r.pull()
}

// ApplyPush applies a pushed value immediately. It does not advance the
// fence, so the next completed pull overwrites it regardless of value.
func (r *reconciler) ApplyPush(n int) {
	r.apply(n)
}

func (r *reconciler) pull() {
	seq := r.fence.Add(1)
	n, err := r.fetch()
	if err != nil {
		// Keep the last displayed value; background reconciliation stays silent.
		log.Printf("reconcile: unread pull: %v", err)
		return
	}
	r.mu.Lock()
	if seq <= r.applied {
		r.mu.Unlock()
		return
	}
	r.applied = seq
	r.mu.Unlock()
	r.apply(n)
}
