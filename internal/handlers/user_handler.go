package handlers

import (
	"backstage/internal/database"
	"errors"
	"log/slog"
	"net/http"
)

type UserHandlers struct {
	UserRepo  database.UserRepository
	TwoFactor StatusReader
}

func NewUserHandlers(userRepo database.UserRepository, twoFactor StatusReader) *UserHandlers {
	return &UserHandlers{
		UserRepo:  userRepo,
		TwoFactor: twoFactor,
	}
}

func (h *UserHandlers) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}

	user, err := h.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			slog.WarnContext(ctx, "Benutzer aus Token nicht in DB gefunden", slog.String("user_id", userID.String()))
			writeJSONError(w, "User not found", http.StatusNotFound)
		} else {
			slog.ErrorContext(ctx, "Fehler beim Abrufen des Benutzers nach ID", slog.Any("error", err), slog.String("user_id", userID.String()))
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	status, err := h.TwoFactor.Status(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, UserResponse{
		ID:               user.ID.String(),
		Email:            user.Email,
		TwoFactorEnabled: status.Enabled,
		CreatedAt:        user.CreatedAt,
	}, http.StatusOK)
}
