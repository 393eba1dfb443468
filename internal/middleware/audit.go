package middleware

import (
	"context"
	"net"
	"net/http"
)

type auditContextKey string

const (
	AuditContextKey auditContextKey = "auditData"
)

type AuditData struct {
	IPAddress string
	UserAgent string
}

// AuditContext läuft nach chi's RealIP, RemoteAddr ist dann bereits die Client-IP.
func AuditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := AuditData{
			IPAddress: ClientIP(r),
			UserAgent: r.UserAgent(),
		}

		ctx := context.WithValue(r.Context(), AuditContextKey, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetAuditDataFromContext(ctx context.Context) (AuditData, bool) {
	data, ok := ctx.Value(AuditContextKey).(AuditData)
	return data, ok
}

// ClientIP liefert RemoteAddr ohne Port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
