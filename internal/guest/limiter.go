// Package guest caps how many analyses an unauthenticated user may run.
// The counter is advisory: it lives in client-local state and clearing that
// state resets it.
package guest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/prefs"
)

const (
	// DefaultLimit is the number of analyses a guest may run.
	DefaultLimit = 5
	// DefaultKey is the storage key of the counter.
	DefaultKey = "btp_guest_usage"
)

// ErrLimitReached is returned to guests who used up their analyses.
var ErrLimitReached = eris.New("guest: analysis limit reached")

var errAlreadySettled = eris.New("guest: reservation already settled")

// Limiter reads and advances the guest counter.
type Limiter struct {
	store prefs.Store
	key   string
	limit int
	now   func() time.Time

	// ledger is shared by every session limiter derived from the same parent.
	ledger *ledger
}

// ledger serializes counter updates within this process and tracks slots
// held by analyses still in flight.
type ledger struct {
	mu      sync.Mutex
	pending map[string]int
}

func (g *ledger) release(key string) {
	if g.pending[key] <= 1 {
		delete(g.pending, key)
		return
	}
	g.pending[key]--
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithKey sets the storage key.
func WithKey(key string) Option {
	return func(l *Limiter) {
		l.key = key
	}
}

// WithLimit sets the number of allowed analyses.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		l.limit = n
	}
}

// NewLimiter creates a Limiter over store.
func NewLimiter(store prefs.Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, key: DefaultKey, limit: DefaultLimit, now: time.Now, ledger: &ledger{pending: make(map[string]int)}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ForSession returns a Limiter sharing store and limit whose counter is
// scoped to one guest session.
func (l *Limiter) ForSession(sessionID string) *Limiter {
	return &Limiter{store: l.store, key: l.key + ":" + sessionID, limit: l.limit, now: l.now, ledger: l.ledger}
}

// Limit returns the configured limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// Usage returns the stored counter. A missing counter reads as zero.
func (l *Limiter) Usage(ctx context.Context) (model.GuestUsage, error) {
	u, _, err := l.read(ctx)
	return u, err
}

// CanProceed reports whether another analysis is allowed. Slots held by
// unfinished reservations count as used.
func (l *Limiter) CanProceed(ctx context.Context) (bool, error) {
	l.ledger.mu.Lock()
	defer l.ledger.mu.Unlock()

	u, _, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	return u.Count+l.ledger.pending[l.key] < l.limit, nil
}

// Reservation holds one analysis slot until it is committed or released.
type Reservation struct {
	l    *Limiter
	once sync.Once
}

// Reserve claims a slot for an analysis about to run. It fails with
// ErrLimitReached when stored and in-flight analyses already reach the
// limit. The caller must Commit after a success and Release otherwise;
// Release after Commit does nothing, so deferring it is safe.
func (l *Limiter) Reserve(ctx context.Context) (*Reservation, error) {
	l.ledger.mu.Lock()
	defer l.ledger.mu.Unlock()

	u, _, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	if u.Count+l.ledger.pending[l.key] >= l.limit {
		return nil, eris.Wrapf(ErrLimitReached, "%d of %d analyses used", u.Count, l.limit)
	}
	l.ledger.pending[l.key]++
	return &Reservation{l: l}, nil
}

// Commit turns the slot into a recorded analysis.
func (r *Reservation) Commit(ctx context.Context) error {
	err := errAlreadySettled
	r.once.Do(func() {
		g := r.l.ledger
		g.mu.Lock()
		defer g.mu.Unlock()
		g.release(r.l.key)
		err = r.l.recordLocked(ctx)
	})
	return err
}

// Release gives the slot back without counting it.
func (r *Reservation) Release() {
	r.once.Do(func() {
		g := r.l.ledger
		g.mu.Lock()
		g.release(r.l.key)
		g.mu.Unlock()
	})
}

// Remaining returns the number of analyses left, never negative.
func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	u, _, err := l.read(ctx)
	if err != nil {
		return 0, err
	}
	return max(l.limit-u.Count, 0), nil
}

// RecordSuccess adds one to the counter. Call it only after an analysis
// succeeded. LastReset is set when the counter is first created.
func (l *Limiter) RecordSuccess(ctx context.Context) error {
	l.ledger.mu.Lock()
	defer l.ledger.mu.Unlock()
	return l.recordLocked(ctx)
}

func (l *Limiter) recordLocked(ctx context.Context) error {
	u, found, err := l.read(ctx)
	if err != nil {
		return err
	}
	if !found {
		u.LastReset = l.now().UTC()
	}
	u.Count++

	raw, err := json.Marshal(u)
	if err != nil {
		return eris.Wrap(err, "guest: marshal usage")
	}
	if err := l.store.Set(ctx, l.key, raw); err != nil {
		return eris.Wrap(err, "guest: save usage")
	}
	zap.L().Debug("guest: recorded analysis", zap.String("key", l.key), zap.Int("count", u.Count))
	return nil
}

func (l *Limiter) read(ctx context.Context) (model.GuestUsage, bool, error) {
	var u model.GuestUsage
	raw, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return u, false, eris.Wrap(err, "guest: load usage")
	}
	if !ok {
		return u, false, nil
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		// A corrupted counter restarts from zero rather than locking the guest out.
		zap.L().Warn("guest: malformed usage, starting over", zap.String("key", l.key), zap.Error(err))
		return model.GuestUsage{}, false, nil
	}
	return u, true, nil
}
