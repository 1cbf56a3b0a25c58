package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"tradeassist/src/auth"
	"tradeassist/src/database"
	"tradeassist/src/model"
	"tradeassist/src/repository"

	logger "github.com/sirupsen/logrus"
)

type positionLister interface {
	FindOpenByUser(ctx context.Context, userID uint) ([]model.Position, error)
}

// ListPositionsHandler returns the authenticated user's open positions.
func ListPositionsHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		positions, err := repo.FindOpenByUser(r.Context(), user.ID)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if positions == nil {
			positions = []model.Position{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(positions); err != nil {
			logger.WithError(err).Error("failed to encode positions response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// DefaultListPositionsHandler wires the handler to the read-path repository.
func DefaultListPositionsHandler() http.HandlerFunc {
	return ListPositionsHandler(repository.NewPositionRepository().WithDB(database.ReadDB()))
}
