package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/core"
)

type messageResponse struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	AuthorID  int64     `json:"author_id"`
	SentAt    time.Time `json:"sent_at"`
}

// handleMessage serves GET /api/messages/{chat}/{message}.
func (s *Service) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	chatID, err1 := strconv.ParseInt(parts[0], 10, 64)
	messageID, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	msg, err := s.store.GetMessage(r.Context(), core.MessageRef{
		Chat:      core.ChatID(chatID),
		MessageID: messageID,
	})
	if errors.Is(err, core.ErrUnknownMessage) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("message lookup failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messageResponse{
		ChatID:    int64(msg.Ref.Chat),
		MessageID: msg.Ref.MessageID,
		AuthorID:  int64(msg.Author),
		SentAt:    msg.SentAt,
	})
}
