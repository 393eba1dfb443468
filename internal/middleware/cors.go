package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSAllowedHeaders sind die Header, die das Dashboard mitschickt.
var CORSAllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// CORS erlaubt jede Origin. Preflights beantwortet go-chi/cors, übrige
// OPTIONS-Anfragen enden hier mit einem leeren 200.
func CORS() func(http.Handler) http.Handler {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   CORSAllowedHeaders,
		AllowCredentials: false,
		MaxAge:           300,
	})

	return func(next http.Handler) http.Handler {
		return corsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
