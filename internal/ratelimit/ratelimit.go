package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every caller of the guarded handler.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	burst   int
	now     func() time.Time
	// logged is set on the first denial and cleared on the next allow so
	// a burst of rejected requests produces one log line
	logged bool

	// OnFirstDenied is called once per denial streak, used for logging.
	OnFirstDenied func(r *http.Request, retryAfter time.Duration)

	// OnDenied is called on every denied request, used for metrics.
	OnDenied func(r *http.Request)
}

type Option func(*Limiter)

// WithBurst lets burst runs through back to back before the interval applies.
func WithBurst(burst int) Option {
	return func(l *Limiter) {
		if burst > 0 {
			l.burst = burst
		}
	}
}

func WithOnFirstDenied(fn func(r *http.Request, retryAfter time.Duration)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

func WithOnDenied(fn func(r *http.Request)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New allows one request per interval. A non-positive interval disables
// limiting.
func New(interval time.Duration, opts ...Option) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := &Limiter{burst: 1, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	// the bucket starts full, so it is built once burst is known
	l.limiter = rate.NewLimiter(limit, l.burst)
	return l
}

// Allow consumes a token if one is available. When it is not, retryAfter
// is how long until the next token.
func (l *Limiter) Allow() (ok bool, retryAfter time.Duration, first bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.limiter.AllowN(now, 1) {
		l.logged = false
		return true, 0, false
	}

	res := l.limiter.ReserveN(now, 1)
	if res.OK() {
		retryAfter = res.DelayFrom(now)
		res.CancelAt(now)
	}

	first = !l.logged
	l.logged = true
	return false, retryAfter, first
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter, first := l.Allow()
		if !ok {
			// hooks run outside the lock
			if first && l.OnFirstDenied != nil {
				l.OnFirstDenied(r, retryAfter)
			}
			if l.OnDenied != nil {
				l.OnDenied(r)
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"health-check run already requested recently"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) string {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
