// Package security enforces connection and operation rate limits and
// tracks per-IP blocks driven by repeated authentication failures.
package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thunder45/service-translate-sub001/internal/errs"
)

// OpLimit is one token bucket: sustained ops per second with a burst.
type OpLimit struct {
	PerSecond float64
	Burst     int
}

// Limits tunes the guard. Zero values fall back to defaults.
type Limits struct {
	// Connection level.
	ConnectionsPerIPPerMinute int
	MaxConcurrentPerIP        int

	// Operation level, keyed by operation name; Default applies otherwise.
	Operations map[string]OpLimit
	Default    OpLimit

	// Auth-failure driven blocking.
	AuthFailureThreshold int
	AuthFailureWindow    time.Duration
	BaseBlockDuration    time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.ConnectionsPerIPPerMinute <= 0 {
		l.ConnectionsPerIPPerMinute = 30
	}
	if l.MaxConcurrentPerIP <= 0 {
		l.MaxConcurrentPerIP = 20
	}
	if l.Default.PerSecond <= 0 {
		l.Default = OpLimit{PerSecond: 10, Burst: 20}
	}
	if l.Operations == nil {
		l.Operations = map[string]OpLimit{
			"authenticate":          {PerSecond: 0.5, Burst: 3},
			"token-refresh":         {PerSecond: 0.2, Burst: 2},
			"start-session":         {PerSecond: 0.5, Burst: 3},
			"end-session":           {PerSecond: 0.5, Burst: 3},
			"broadcast-translation": {PerSecond: 10, Burst: 30},
		}
	}
	if l.AuthFailureThreshold <= 0 {
		l.AuthFailureThreshold = 5
	}
	if l.AuthFailureWindow <= 0 {
		l.AuthFailureWindow = 5 * time.Minute
	}
	if l.BaseBlockDuration <= 0 {
		l.BaseBlockDuration = time.Minute
	}
	return l
}

type ipState struct {
	connLimiter  *rate.Limiter
	concurrent   int
	authFailures []time.Time
	blockedUntil time.Time
	blockCount   int
}

// Guard is the security middleware shared by the connection supervisor and
// the message router.
type Guard struct {
	mu     sync.Mutex
	limits Limits
	ips    map[string]*ipState
	ops    map[string]*rate.Limiter // key: actor + "|" + operation
}

func NewGuard(limits Limits) *Guard {
	return &Guard{
		limits: limits.withDefaults(),
		ips:    make(map[string]*ipState),
		ops:    make(map[string]*rate.Limiter),
	}
}

// AllowConnection gates a new websocket upgrade from ip.
func (g *Guard) AllowConnection(ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.ipLocked(ip)

	if until := st.blockedUntil; time.Now().Before(until) {
		return errs.New(errs.SystemRateLimited, "ip temporarily blocked").
			WithRetryAfter(time.Until(until).Round(time.Second))
	}
	if st.concurrent >= g.limits.MaxConcurrentPerIP {
		return errs.New(errs.SystemConnectionLimit, "too many concurrent connections from ip")
	}
	if !st.connLimiter.Allow() {
		return errs.New(errs.SystemRateLimited, "connection rate exceeded").
			WithRetryAfter(10 * time.Second)
	}
	st.concurrent++
	return nil
}

// ConnectionClosed releases the concurrency slot taken by AllowConnection.
func (g *Guard) ConnectionClosed(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.ips[ip]; ok && st.concurrent > 0 {
		st.concurrent--
	}
}

// AllowOperation gates one inbound message. actor is the admin id when
// authenticated, otherwise the socket id.
func (g *Guard) AllowOperation(actor, operation string) error {
	limit, ok := g.limits.Operations[operation]
	if !ok {
		limit = g.limits.Default
	}

	g.mu.Lock()
	key := actor + "|" + operation
	limiter, ok := g.ops[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst)
		g.ops[key] = limiter
	}
	g.mu.Unlock()

	res := limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		retryAfter := delay.Round(time.Second)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return errs.New(errs.SystemRateLimited, "operation rate exceeded for "+operation).
			WithRetryAfter(retryAfter).WithDetail("operation", operation)
	}
	return nil
}

// RecordAuthFailure notes a failed admin-auth from ip. Crossing the
// threshold inside the window blocks the ip; repeated blocks double.
func (g *Guard) RecordAuthFailure(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.ipLocked(ip)

	now := time.Now()
	cutoff := now.Add(-g.limits.AuthFailureWindow)
	kept := st.authFailures[:0]
	for _, ts := range st.authFailures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.authFailures = append(kept, now)

	if len(st.authFailures) >= g.limits.AuthFailureThreshold {
		st.blockCount++
		duration := g.limits.BaseBlockDuration << uint(st.blockCount-1)
		if max := time.Hour; duration > max {
			duration = max
		}
		st.blockedUntil = now.Add(duration)
		st.authFailures = st.authFailures[:0]
	}
}

// Blocked reports whether ip is currently blocked.
func (g *Guard) Blocked(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.ips[ip]
	return ok && time.Now().Before(st.blockedUntil)
}

// BlockedIPs returns the currently blocked addresses, for /security.
func (g *Guard) BlockedIPs() map[string]time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]time.Time)
	now := time.Now()
	for ip, st := range g.ips {
		if now.Before(st.blockedUntil) {
			out[ip] = st.blockedUntil
		}
	}
	return out
}

func (g *Guard) ipLocked(ip string) *ipState {
	st, ok := g.ips[ip]
	if !ok {
		perMin := rate.Limit(float64(g.limits.ConnectionsPerIPPerMinute) / 60.0)
		st = &ipState{connLimiter: rate.NewLimiter(perMin, g.limits.ConnectionsPerIPPerMinute)}
		g.ips[ip] = st
	}
	return st
}
