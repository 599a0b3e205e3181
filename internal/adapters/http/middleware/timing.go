package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"carecal/internal/adapters/http/perf"
)

// DefaultSlowRequestMs is the default threshold for slow request warnings.
const DefaultSlowRequestMs = 200

// RequestIDHeader carries the per-process request number back to the client.
const RequestIDHeader = "X-Request-ID"

var requestSeq atomic.Uint64

// statusWriter remembers the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wrote {
		sw.status, sw.wrote = code, true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wrote = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RouteLabel collapses identifier segments so "/events/3f2a.../qr" and
// "/events/9b1c.../qr" time as one route. A segment holding a digit is an identifier.
func RouteLabel(method, path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if strings.ContainsAny(s, "0123456789") {
			segs[i] = "{id}"
		}
	}
	return method + " " + strings.Join(segs, "/")
}

// Timing logs each request and records it in collector under its RouteLabel.
// /static/ is skipped. Requests at or above slowMs log at warn, others at debug;
// a non-positive slowMs uses DefaultSlowRequestMs. A nil collector only logs.
func Timing(collector *perf.Collector, slowMs int) func(http.Handler) http.Handler {
	if slowMs <= 0 {
		slowMs = DefaultSlowRequestMs
	}
	slow := time.Duration(slowMs) * time.Millisecond

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			id := requestSeq.Add(1)
			w.Header().Set(RequestIDHeader, strconv.FormatUint(id, 10))
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				elapsed := time.Since(start)
				ms := float64(elapsed.Microseconds()) / 1000.0
				route := RouteLabel(r.Method, r.URL.Path)

				level, msg := slog.LevelDebug, "request"
				if elapsed >= slow {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", id,
					"route", route,
					"path", r.URL.Path,
					"status", sw.status,
					"duration_ms", ms,
				)

				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       route,
						StatusCode: sw.status,
						DurationMs: ms,
						Timestamp:  start,
					})
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
