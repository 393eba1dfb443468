package server

import (
	"backstage/internal/middleware"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// Resource wird beim Herunterfahren nach den HTTP-Servern geschlossen.
type Resource struct {
	Name  string
	Close func(ctx context.Context) error
}

// NewRedisClient verbindet sich mit Redis und prüft die Verbindung per PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("fehler bei der Verbindung zu Redis unter %s: %w", addr, err)
	}
	slog.Info("Erfolgreich mit Redis verbunden.", slog.String("address", addr))
	return rdb, nil
}

// NewServer instrumentiert den Handler mit OpenTelemetry.
func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      otelhttp.NewHandler(handler, "backstage"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMetricsServer stellt /metrics bereit, nur für die freigegebenen IPs.
func NewMetricsServer(port string, allowedIPs []string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", middleware.Gatekeeper(allowedIPs)(promhttp.Handler()))

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartAndShutdown startet beide Server und blockiert bis SIGINT/SIGTERM.
func StartAndShutdown(srv, metricsSrv *http.Server, resources ...Resource) {
	errCh := make(chan error, 2)
	serve := func(s *http.Server, name string) {
		slog.Info(name+" startet...", slog.String("address", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s: %w", name, err)
		}
	}

	go serve(srv, "Backstage-Auth-Service")
	if metricsSrv != nil {
		go serve(metricsSrv, "Metrik-Server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Fahre Server herunter (Graceful Shutdown)...", slog.String("signal", sig.String()))
	case err := <-errCh:
		slog.Error("Fehler beim Starten des Servers", slog.Any("error", err))
	}

	Shutdown(srv, metricsSrv, resources...)
}

// Shutdown stoppt die Server und schließt danach die Ressourcen in der angegebenen Reihenfolge.
func Shutdown(srv, metricsSrv *http.Server, resources ...Resource) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Fehler beim Graceful Shutdown des Servers", slog.Any("error", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			slog.Error("Fehler beim Shutdown des Metrik-Servers", slog.Any("error", err))
		}
	}

	for _, res := range resources {
		if err := res.Close(ctx); err != nil {
			slog.Error("Fehler beim Schließen einer Ressource", slog.String("resource", res.Name), slog.Any("error", err))
		}
	}

	slog.Info("Server erfolgreich heruntergefahren.")
}
