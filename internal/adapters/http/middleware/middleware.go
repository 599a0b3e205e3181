package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/csrf"
)

const (
	// rateIdle is how long a silent client keeps its bucket.
	rateIdle = 5 * time.Minute
	// rateSweepEvery bounds how often Allow scans for idle buckets.
	rateSweepEvery = time.Minute
)

// RateLimiter is a token bucket per client holding at most rate tokens and
// gaining rate tokens every interval.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens   int
	refilled time.Time // start of the current interval
	seen     time.Time
}

func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

// Allow takes a token for client.
// POST: when denied, wait is how long until the next refill
func (rl *RateLimiter) Allow(client string) (ok bool, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rateSweepEvery {
		rl.sweepLocked(now)
	}

	b, found := rl.buckets[client]
	if !found {
		b = &bucket{tokens: rl.rate, refilled: now}
		rl.buckets[client] = b
	}
	b.seen = now
	if periods := int(now.Sub(b.refilled) / rl.interval); periods > 0 {
		b.tokens = min(b.tokens+periods*rl.rate, rl.rate)
		b.refilled = b.refilled.Add(time.Duration(periods) * rl.interval)
	}

	if b.tokens == 0 {
		return false, b.refilled.Add(rl.interval).Sub(now)
	}
	b.tokens--
	return true, 0
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for client, b := range rl.buckets {
		if now.Sub(b.seen) > rateIdle {
			delete(rl.buckets, client)
		}
	}
	rl.lastSweep = now
}

// clientIP strips the port from RemoteAddr so one client is one bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit answers 429 with Retry-After once a client's bucket is empty.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if ok, wait := limiter.Allow(ip); !ok {
				slog.Warn("rate_limit_exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets a same-origin CSP and the usual framing and sniffing headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// csrfExempt reports whether a request cannot be forged by a cross-site form.
// Browsers cannot send these content types or an Authorization header cross-origin
// without a CORS preflight, which this server never grants.
func csrfExempt(r *http.Request) bool {
	if IsBearerRequest(r) {
		return true
	}
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "text/calendar")
}

// CSRFOptions configures the CSRF middleware.
type CSRFOptions struct {
	// Key is the 32-byte authentication key.
	Key []byte
	// BaseURL is the public origin; its host is trusted for Origin checks.
	BaseURL string
	// Secure is true when the site is served over HTTPS.
	Secure bool
}

// CSRF returns a handler that protects form posts against CSRF attacks.
// JSON, ICS upload and bearer-token requests are exempted.
func CSRF(opts CSRFOptions) func(http.Handler) http.Handler {
	trusted := []string{"localhost:8080", "127.0.0.1:8080"}
	if u, err := url.Parse(opts.BaseURL); err == nil && u.Host != "" {
		trusted = append(trusted, u.Host)
	}
	protect := csrf.Protect(
		opts.Key,
		csrf.Secure(opts.Secure),
		csrf.Path("/"),
		csrf.TrustedOrigins(trusted),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("csrf_rejected", "path", r.URL.Path, "reason", csrf.FailureReason(r))
			http.Error(w, "Forbidden - CSRF token invalid", http.StatusForbidden)
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrfExempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !opts.Secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares in order; the last one listed is the outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}
