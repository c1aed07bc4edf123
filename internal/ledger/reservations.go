package ledger

import "sync"

// Reservations tracks tip intents by idempotency key. Ledgers that share
// one see each other's in-flight and recently submitted tips, so two
// sessions on one wallet cannot submit the same intent twice.
type Reservations struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	pending  map[string]int64 // key -> submit time in ms
}

func NewReservations() *Reservations {
	return &Reservations{
		inflight: make(map[string]struct{}),
		pending:  make(map[string]int64),
	}
}

// reserve marks key as in flight unless it already is, or a pending tip
// with that key was submitted at or after cutoff.
func (r *Reservations) reserve(key string, cutoff int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inflight[key]; busy {
		return false
	}
	for k, ts := range r.pending {
		if ts < cutoff {
			delete(r.pending, k)
		}
	}
	if _, dup := r.pending[key]; dup {
		return false
	}
	r.inflight[key] = struct{}{}
	return true
}

func (r *Reservations) release(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// record notes a submitted pending tip. It must run before release.
func (r *Reservations) record(key string, ts int64) {
	r.mu.Lock()
	r.pending[key] = ts
	r.mu.Unlock()
}

// settle forgets the pending tip submitted at ts once it left pending.
func (r *Reservations) settle(key string, ts int64) {
	r.mu.Lock()
	if r.pending[key] == ts {
		delete(r.pending, key)
	}
	r.mu.Unlock()
}
