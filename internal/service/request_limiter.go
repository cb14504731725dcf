package service

import (
	"sync"
	"time"
)

// RequestLimiter limita la frecuencia de solicitudes por clave (email normalizado).
type RequestLimiter interface {
	Allow(key string) bool
}

type memoryRequestLimiter struct {
	mu     sync.Mutex
	clock  Clock
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryRequestLimiter crea un limitador de ventana deslizante en memoria.
func NewMemoryRequestLimiter(clock Clock, window time.Duration, max int) RequestLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &memoryRequestLimiter{
		clock:  clock,
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRequestLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	// las entradas se agregan en orden, la ultima es la mas reciente
	for k, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
