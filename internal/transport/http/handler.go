package http

import (
	"encoding/json"
	"net/http"

	"github.com/manu030/geoconsole-credits/internal/errs"
	"github.com/manu030/geoconsole-credits/internal/model"
	"github.com/manu030/geoconsole-credits/internal/service"
)

// Handler exposes the ledger operations over HTTP. Authentication itself
// happens upstream; the handler only consumes the identity headers the auth
// proxy sets (X-User-Id, X-User-Admin).
type Handler struct {
	svc     service.CreditService
	metrics http.Handler
}

func NewHandler(svc service.CreditService, metrics http.Handler) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /credits", h.GetCredits)
	mux.HandleFunc("POST /credits/consume", h.ConsumeCredits)
	mux.HandleFunc("POST /credits/grant", h.GrantCredits)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	req := model.GetCreditsRequest{UserID: r.URL.Query().Get("user_id")}
	res, err := h.svc.GetUserCredits(r.Context(), req, callerFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ConsumeCredits(w http.ResponseWriter, r *http.Request) {
	var req model.ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errs.Validation("invalid json body"))
		return
	}
	res, err := h.svc.ConsumeCredits(r.Context(), req, callerFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var req model.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errs.Validation("invalid json body"))
		return
	}
	res, err := h.svc.GrantCredits(r.Context(), req, callerFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func callerFrom(r *http.Request) model.Caller {
	return model.Caller{
		ID:      r.Header.Get("X-User-Id"),
		IsAdmin: r.Header.Get("X-User-Admin") == "true",
	}
}

type errorBody struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"`
	// Present only on the insufficient-credits discriminator, where a zero
	// available balance must still be visible to clients.
	RequiredCredits  *int64 `json:"required_credits,omitempty"`
	AvailableCredits *int64 `json:"available_credits,omitempty"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	body := errorBody{
		Error: errs.UserMessage(err),
		Code:  errs.KindOf(err).String(),
	}
	if e, ok := errs.As(err); ok {
		body.CorrelationID = e.CorrelationID
		if e.Kind == errs.KindInsufficientCredits {
			body.RequiredCredits = &e.RequiredCredits
			body.AvailableCredits = &e.AvailableCredits
		}
	}
	h.respondJSON(w, errs.HTTPStatus(err), body)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
