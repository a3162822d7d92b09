package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/core"
)

type karmaResponse struct {
	UserID     int64    `json:"user_id"`
	Balance    int64    `json:"balance"`
	Percentile *float64 `json:"percentile,omitempty"`
}

func (s *Service) handleKarma(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/karma/"), "/")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user := core.UserID(userID)
	balance, err := s.store.Balance(r.Context(), user)
	if err != nil {
		s.logger.Error("balance lookup failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := karmaResponse{UserID: userID, Balance: balance}
	if p, ok, err := s.store.Percentile(r.Context(), user); err == nil && ok {
		resp.Percentile = &p
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type leaderboardEntry struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = n
	}

	top, err := s.store.TopBalances(r.Context(), limit)
	if err != nil {
		s.logger.Error("leaderboard lookup failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	entries := make([]leaderboardEntry, 0, len(top))
	for _, b := range top {
		entries = append(entries, leaderboardEntry{UserID: int64(b.User), Balance: b.Balance})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"leaderboard": entries})
}
