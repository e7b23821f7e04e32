package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/service/auth"
)

// RegisterHandler handles POST /register with a JSON body.
func RegisterHandler(users repository.UserRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, logger, fmt.Errorf("%w: malformed JSON body", model.ErrValidation))
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if err := auth.ValidateRegistration(req.Username, req.FullName, req.Password); err != nil {
			respondError(w, logger, err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		user := &model.User{Username: req.Username, FullName: req.FullName, PasswordHash: hash}
		if _, err := users.Create(r.Context(), user); err != nil {
			respondError(w, logger, err)
			return
		}

		logger.Info("User %s registered", user.Username)
		respondJSON(w, http.StatusCreated, user)
	}
}

// LoginHandler handles POST /login by checking credentials and issuing the auth cookie.
func LoginHandler(users repository.UserRepository, issuer *auth.TokenIssuer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")

		user, err := users.GetByUsername(r.Context(), username)
		if errors.Is(err, model.ErrNotFound) {
			logger.Warning("Failed login for unknown user %q", username)
			respondError(w, logger, auth.ErrInvalidCredentials)
			return
		}
		if err != nil {
			respondError(w, logger, err)
			return
		}
		if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
			logger.Warning("Failed login for user %q", username)
			respondError(w, logger, err)
			return
		}

		token, err := issuer.Issue(user.Username)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    "Bearer " + token,
			Path:     "/",
			MaxAge:   int(issuer.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "You've successfully logged in"})
	}
}

// LogoutHandler clears the auth cookie.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "You've successfully logged out"})
}

// WhoAmIHandler returns the authenticated user.
func WhoAmIHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Detail: auth.ErrInvalidToken.Error()})
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUserHandler handles DELETE /user/{id}. Users may only delete themselves.
func DeleteUserHandler(users repository.UserRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			respondError(w, logger, fmt.Errorf("%w: invalid user id", model.ErrValidation))
			return
		}

		if _, err := users.GetByID(r.Context(), id); err != nil {
			respondError(w, logger, err)
			return
		}
		if id != current.ID {
			respondError(w, logger, fmt.Errorf("%w: you can only delete your own account", model.ErrForbidden))
			return
		}
		if err := users.Delete(r.Context(), id); err != nil {
			respondError(w, logger, err)
			return
		}

		logger.Info("User %s deleted their account", current.Username)
		respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "User deleted"})
	}
}
