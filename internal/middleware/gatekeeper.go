package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// Gatekeeper lässt nur Anfragen von den angegebenen IPs durch (z.B. für /metrics).
// Eine leere Liste schaltet die Prüfung ab.
func Gatekeeper(allowedIPs []string) func(next http.Handler) http.Handler {
	ipMap := make(map[string]struct{})
	for _, ip := range allowedIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			ipMap[ip] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(ipMap) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remoteIP := ClientIP(r)
			if _, ok := ipMap[remoteIP]; !ok {
				slog.WarnContext(r.Context(), "Zugriff von nicht freigegebener IP blockiert",
					slog.String("remote_ip", remoteIP),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
