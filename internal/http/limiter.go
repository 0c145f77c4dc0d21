package http

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedLimiters caps the limiter map; the oldest-looking entries are
// evicted when it fills.
const maxTrackedLimiters = 4096

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func newLimiterPool(rpm int) *limiterPool {
	burst := rpm / 6
	if burst < 1 {
		burst = 1
	}
	return &limiterPool{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Limit(float64(rpm) / 60),
		burst: burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	for k := range p.m {
		if len(p.m) < maxTrackedLimiters {
			break
		}
		delete(p.m, k)
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether key may make another request now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
