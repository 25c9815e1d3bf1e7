package handler

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/portfolio/backend/internal/repository"
)

// Handler serves the endpoints that only need the database handle.
type Handler struct {
	db repository.DB
}

func New(db repository.DB) *Handler {
	return &Handler{db: db}
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
