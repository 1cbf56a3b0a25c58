package auth

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
)

type userSource interface {
	GetUserByUserName(ctx context.Context, username string) (*model.User, error)
}

// BasicAuth validates HTTP basic credentials against the user store and
// puts the authenticated user on the request context.
func BasicAuth(users userSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="tradeassist"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := users.GetUserByUserName(r.Context(), username)
			if err != nil {
				logger.WithError(err).Error("auth lookup failed")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if user == nil || !user.Active || !user.CheckPassword(password) {
				logger.WithField("username", username).Warn("rejected credentials")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserKey, user)))
		})
	}
}
