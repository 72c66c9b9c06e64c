// Package throttle provides global outbound-call throttling, grounded on
// the teacher's internal/services.RateLimiterService: a token-bucket
// limiter per key, created lazily and cached. Here the key is an MES
// dispatch target rather than an M3 environment, and limits come from
// static config instead of a settings table, since this domain has no
// per-environment settings store.
package throttle

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limits configures the token bucket for one dispatch target.
type Limits struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultLimits is applied to any target not explicitly configured.
var DefaultLimits = Limits{RequestsPerSecond: 10, Burst: 5}

// Service hands out a *rate.Limiter per target, constructing it lazily
// from configured (or default) limits on first use.
type Service struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	configs  map[string]Limits
	fallback Limits
}

// New builds a Service. configs maps dispatch target to its limits;
// targets absent from configs use fallback (DefaultLimits if zero-valued).
func New(configs map[string]Limits, fallback Limits) *Service {
	if fallback == (Limits{}) {
		fallback = DefaultLimits
	}
	return &Service{
		limiters: make(map[string]*rate.Limiter),
		configs:  configs,
		fallback: fallback,
	}
}

// GetLimiter returns or creates the limiter for target.
func (s *Service) GetLimiter(target string) *rate.Limiter {
	s.mu.RLock()
	limiter, ok := s.limiters[target]
	s.mu.RUnlock()
	if ok {
		return limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if limiter, ok := s.limiters[target]; ok {
		return limiter
	}

	limits, ok := s.configs[target]
	if !ok {
		limits = s.fallback
	}
	limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)
	s.limiters[target] = limiter
	return limiter
}

// Wait blocks until a request against target is allowed under its limit.
func (s *Service) Wait(ctx context.Context, target string) error {
	return s.GetLimiter(target).Wait(ctx)
}

// Allow reports whether a request against target may proceed immediately.
func (s *Service) Allow(target string) bool {
	return s.GetLimiter(target).Allow()
}
