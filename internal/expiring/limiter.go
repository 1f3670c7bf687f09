package expiring

import "time"

type window struct {
	start time.Time
	hits  int
}

// Limiter allows up to limit hits per key inside fixed windows of length per,
// the window starting at the first hit.
type Limiter[K comparable] struct {
	windows *Map[K, window]
	limit   int
	per     time.Duration
	now     func() time.Time
}

func NewLimiter[K comparable](limit int, per time.Duration) *Limiter[K] {
	return &Limiter[K]{
		windows: New[K, window](per),
		limit:   limit,
		per:     per,
		now:     time.Now,
	}
}

// Allow records a hit for key. When the key is over its limit it returns false and
// the time left until the window resets.
func (l *Limiter[K]) Allow(key K) (bool, time.Duration) {
	now := l.now()
	allowed := true
	var retryAfter time.Duration
	l.windows.Update(key, func(w window, found bool) window {
		if !found || now.Sub(w.start) >= l.per {
			return window{start: now, hits: 1}
		}
		if w.hits >= l.limit {
			allowed = false
			retryAfter = l.per - now.Sub(w.start)
			return w
		}
		w.hits++
		return w
	})
	return allowed, retryAfter
}

// Reset forgets the window of key.
func (l *Limiter[K]) Reset(key K) {
	l.windows.Delete(key)
}
