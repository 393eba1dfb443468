package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "backstage"

// Ergebniswerte für TwoFactorEvents.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var TwoFactorEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "twofactor",
		Name:      "events_total",
		Help:      "Anzahl der 2FA-Vorgänge nach Flow (setup/enable/verify/disable/recovery_request/recovery_verify) und Ergebnis.",
	},
	[]string{"flow", "result"},
)

var BackupCodesConsumed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "twofactor",
		Name:      "backup_codes_consumed_total",
		Help:      "Anzahl erfolgreich eingelöster Backup-Codes.",
	},
)

var RateLimitDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Entscheidungen des Versuchslimits nach Scope und Ergebnis (allowed/denied/error).",
	},
	[]string{"scope", "result"},
)

var BreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "circuitbreaker",
		Name:      "state",
		Help:      "Aktueller Zustand des Circuit Breakers (0=Closed, 1=HalfOpen, 2=Open).",
	},
	[]string{"breaker"},
)

func init() {
	prometheus.MustRegister(TwoFactorEvents, BackupCodesConsumed, RateLimitDecisions, BreakerState)
}

// ObserveTwoFactor zählt einen abgeschlossenen 2FA-Vorgang.
func ObserveTwoFactor(flow, result string) {
	TwoFactorEvents.WithLabelValues(flow, result).Inc()
}
