package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"tradeassist/src/auth"
	"tradeassist/src/model"
	"tradeassist/src/repository"
	"tradeassist/src/security"

	logger "github.com/sirupsen/logrus"
)

type userUpdater interface {
	Update(ctx context.Context, user *model.User) error
}

type brokerCredentialsPayload struct {
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
}

// UpdateBrokerCredentialsHandler stores encrypted broker credentials for
// the authenticated user. Plaintext never touches the database.
func UpdateBrokerCredentialsHandler(repo userUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload brokerCredentialsPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid broker credentials payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		payload.APIKey = strings.TrimSpace(payload.APIKey)
		payload.AccessToken = strings.TrimSpace(payload.AccessToken)
		if payload.APIKey == "" || payload.AccessToken == "" {
			http.Error(w, "api_key and access_token are required", http.StatusBadRequest)
			return
		}

		keyHash, err := security.EncryptString(payload.APIKey)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt broker API key")
			http.Error(w, "Unable to update credentials", http.StatusInternalServerError)
			return
		}
		tokenHash, err := security.EncryptString(payload.AccessToken)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt broker access token")
			http.Error(w, "Unable to update credentials", http.StatusInternalServerError)
			return
		}

		user.BrokerAPIKeyHash = keyHash
		user.BrokerAPISecretHash = tokenHash

		if err := repo.Update(r.Context(), user); err != nil {
			logger.WithError(err).Error("failed to update broker credentials")
			http.Error(w, "Unable to update credentials", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "credentials updated"}); err != nil {
			logger.WithError(err).Error("failed to encode credentials response")
		}
	}
}

type changePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePasswordHandler rotates the authenticated user's password.
func ChangePasswordHandler(repo userUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			logger.Warn("user not found in context during password change")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload changePasswordPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid change password payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if payload.CurrentPassword == "" || payload.NewPassword == "" {
			http.Error(w, "Current and new passwords are required", http.StatusBadRequest)
			return
		}

		if !user.CheckPassword(payload.CurrentPassword) {
			logger.WithField("user_id", user.ID).Warn("current password mismatch")
			http.Error(w, "Invalid current password", http.StatusUnauthorized)
			return
		}

		if err := user.SetPassword(payload.NewPassword); err != nil {
			logger.WithError(err).Error("failed to hash new password")
			http.Error(w, "Unable to update password", http.StatusInternalServerError)
			return
		}

		if err := repo.Update(r.Context(), user); err != nil {
			logger.WithError(err).Error("failed to update user password")
			http.Error(w, "Unable to update password", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "password updated"}); err != nil {
			logger.WithError(err).Error("failed to encode change password response")
		}
	}
}

// DefaultUserHandlers wire against the main read/write repository.
func DefaultUpdateBrokerCredentialsHandler() http.HandlerFunc {
	return UpdateBrokerCredentialsHandler(repository.NewUserRepository())
}

func DefaultChangePasswordHandler() http.HandlerFunc {
	return ChangePasswordHandler(repository.NewUserRepository())
}
