package handlers

import (
	"backstage/internal/database"
	"backstage/internal/twofactor"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Feldnamen in Validierungsfehlern entsprechen den JSON-Namen.
func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

func validateRequest(ctx context.Context, req interface{}) map[string]string {
	err := validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}
	errorMessages := make(map[string]string)

	for _, fieldErr := range validationErrors {
		fieldName := fieldErr.Field()
		switch fieldErr.Tag() {
		case "required":
			errorMessages[fieldName] = fmt.Sprintf("Field '%s' is required.", fieldName)
		case "email":
			errorMessages[fieldName] = fmt.Sprintf("Field '%s' must be a valid email address.", fieldName)
		case "min":
			errorMessages[fieldName] = fmt.Sprintf("Field '%s' must be at least %s characters long.", fieldName, fieldErr.Param())
		default:
			errorMessages[fieldName] = fmt.Sprintf("Field '%s' is invalid (%s).", fieldName, fieldErr.Tag())
		}
	}
	return errorMessages
}

// decodeAndValidate liest den Body in req und prüft ihn. Ein leerer Body zählt als
// leeres Objekt, damit fehlende Felder als Validierungsfehler gemeldet werden.
// Bei false ist die Antwort bereits geschrieben.
func decodeAndValidate(ctx context.Context, w http.ResponseWriter, r *http.Request, req interface{}, missingMsg string) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		slog.WarnContext(ctx, "Ungültiger JSON Body", slog.Any("error", err))
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}

	if fields := validateRequest(ctx, req); fields != nil {
		writeJSONResponse(w, ErrorResponse{Error: missingMsg, Fields: fields}, http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func writeJSONResponse(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Fehler beim Senden der JSON-Antwort", slog.Any("error", err))
	}
}

func statusForKind(kind twofactor.Kind) int {
	switch kind {
	case twofactor.KindUnauthorized:
		return http.StatusUnauthorized
	case twofactor.KindValidation:
		return http.StatusBadRequest
	case twofactor.KindNotFound:
		return http.StatusNotFound
	case twofactor.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError übersetzt Fehler des 2FA-Service in {error}-Antworten.
// Interne Ursachen werden geloggt, aber nie an den Client gegeben.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var tfErr *twofactor.Error
	if !errors.As(err, &tfErr) {
		slog.ErrorContext(ctx, "Unerwarteter Fehler im 2FA-Service", slog.Any("error", err))
		writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
		return
	}

	status := statusForKind(tfErr.Kind)
	message := tfErr.Message
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "2FA-Operation fehlgeschlagen", slog.String("kind", tfErr.Kind.String()), slog.Any("error", err))
		if message == "" {
			message = twofactor.MsgInternal
		}
	} else {
		slog.WarnContext(ctx, "2FA-Anfrage abgelehnt", slog.String("kind", tfErr.Kind.String()), slog.String("reason", message))
	}
	writeJSONError(w, message, status)
}

// failureReason liefert einen stabilen Grund für Audit-Events.
func failureReason(err error) string {
	var tfErr *twofactor.Error
	if errors.As(err, &tfErr) {
		return tfErr.Kind.String()
	}
	return "internal"
}

// isRejection unterscheidet abgelehnte Anfragen von Serverfehlern.
func isRejection(err error) bool {
	var tfErr *twofactor.Error
	return errors.As(err, &tfErr) && statusForKind(tfErr.Kind) < http.StatusInternalServerError
}

// PingFunc macht eine beliebige Ping-Funktion zu einem database.DBPinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

type HealthCheck struct {
	Name   string
	Pinger database.DBPinger
}

func HealthCheckHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check.Pinger.PingContext(r.Context()); err != nil {
				slog.ErrorContext(r.Context(), "Health Check fehlgeschlagen", slog.String("dependency", check.Name), slog.Any("error", err))
				http.Error(w, "NOK", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
