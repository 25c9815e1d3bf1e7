package handler

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/service"
)

// maxContactBodyBytes caps the POST /api/contact body.
const maxContactBodyBytes = 64 << 10

const (
	messageInvalidMethod = "Invalid request method"
	messageInvalidJSON   = "Invalid JSON payload"
)

// ContactHandler handles contact form submissions.
type ContactHandler struct {
	contactService service.ContactService
	ips            *ClientIPResolver
}

// NewContactHandler creates a ContactHandler with the given service.
func NewContactHandler(contactService service.ContactService, ips *ClientIPResolver) *ContactHandler {
	if ips == nil {
		ips = NewClientIPResolver(0)
	}
	return &ContactHandler{contactService: contactService, ips: ips}
}

// contactResponse is the JSON body of every /api/contact response.
type contactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Submit handles /api/contact. Only POST is accepted.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, contactResponse{Message: messageInvalidMethod})
		return
	}

	var payload model.ContactPayload
	body := http.MaxBytesReader(w, r.Body, maxContactBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, contactResponse{Message: messageInvalidJSON})
		return
	}

	res := h.contactService.Submit(r.Context(), service.SubmitRequest{
		Payload:    payload,
		SourceAddr: h.ips.fromRequest(r),
		UserAgent:  r.UserAgent(),
	})

	if res.HTTPStatus == http.StatusTooManyRequests && res.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(res.RetryAfter))
	}
	writeJSON(w, res.HTTPStatus, contactResponse{Success: res.Success(), Message: res.Message})
}
