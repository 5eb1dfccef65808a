package api

import (
	"encoding/json/v2"
	"net/http"
)

// rateLimitMutations applies per-client rate limiting to mutating requests.
// Reads and the SSE stream are never limited. Keys on the client IP as
// resolved by the RealIP middleware.
func (s *Server) rateLimitMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !s.limiter.Allow(r.RemoteAddr) {
			s.logger.Warn("rate limit exceeded", "client", r.RemoteAddr, "path", r.URL.Path)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			body, _ := json.Marshal(map[string]string{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded, retry later",
			})
			_, _ = w.Write(body)
			return
		}

		next.ServeHTTP(w, r)
	})
}
