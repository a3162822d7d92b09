package httpapi

import (
	"net/http"
)

func NewRouter(svc *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/karma/", svc.handleKarma)
	mux.HandleFunc("/api/leaderboard", svc.handleLeaderboard)
	mux.HandleFunc("/api/messages/", svc.handleMessage)
	mux.HandleFunc("/api/health", svc.handleHealth)
	return mux
}
