package payment

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/pkg/dates"
	"github.com/nyumbahub/rentals/pkg/middleware"
	"github.com/nyumbahub/rentals/pkg/response"
)

// Handler handles HTTP requests for payment operations
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for payment endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Record)
	r.Get("/pending", h.Pending)
	r.Get("/pending-verification", h.PendingVerification)
	r.Get("/overdue", h.Overdue)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/verify", h.Verify)
	r.Post("/{id}/cancel", h.Cancel)
	r.Patch("/{id}/notes", h.UpdateNotes)

	return r
}

func principalOf(w http.ResponseWriter, r *http.Request) (directory.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
	}
	return p, ok
}

func paymentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid payment ID")
		return 0, false
	}
	return id, true
}

// Record handles POST /payments
// @Summary      Record a payment
// @Description  Submit proof of a rent, deposit or other payment. Rent is attached to the obligation for its due date.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body RecordPaymentRequest true "Payment"
// @Success      201 {object} response.APIResponse{data=PaymentResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /payments [post]
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	p, err := h.service.Record(r.Context(), principal, &req)
	if err != nil {
		response.FromError(w, err, "Failed to record payment")
		return
	}

	response.JSON(w, http.StatusCreated, p.ToResponse())
}

// GetByID handles GET /payments/{id}
// @Summary      Get a payment
// @Tags         payments
// @Produce      json
// @Param        id path int true "Payment ID"
// @Success      200 {object} response.APIResponse{data=PaymentResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /payments/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetByID(r.Context(), principal, id)
	if err != nil {
		response.FromError(w, err, "Failed to get payment")
		return
	}

	response.JSON(w, http.StatusOK, p.ToResponse())
}

// Pending handles GET /payments/pending
// @Summary      List pending payments
// @Tags         payments
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]PaymentResponse}
// @Router       /payments/pending [get]
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	payments, err := h.service.Pending(r.Context(), principal)
	if err != nil {
		response.FromError(w, err, "Failed to list pending payments")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(payments))
}

// PendingVerification handles GET /payments/pending-verification
// @Summary      List payments awaiting verification
// @Tags         payments
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]PaymentResponse}
// @Router       /payments/pending-verification [get]
func (h *Handler) PendingVerification(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	payments, err := h.service.PendingVerification(r.Context(), principal)
	if err != nil {
		response.FromError(w, err, "Failed to list payments awaiting verification")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(payments))
}

// Overdue handles GET /payments/overdue
// @Summary      List overdue payments
// @Description  Pending payments due before the evaluation date (default today), oldest first
// @Tags         payments
// @Produce      json
// @Param        date query string false "Evaluation date (YYYY-MM-DD)"
// @Success      200 {object} response.APIResponse{data=[]PaymentResponse}
// @Router       /payments/overdue [get]
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	eval := h.service.today()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			response.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		eval = d
	}

	payments, err := h.service.Overdue(r.Context(), principal, eval)
	if err != nil {
		response.FromError(w, err, "Failed to list overdue payments")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(payments))
}

// ListByLease handles GET /leases/{id}/payments
// @Summary      List payments of a lease
// @Tags         payments
// @Produce      json
// @Param        id path int true "Lease ID"
// @Success      200 {object} response.APIResponse{data=[]PaymentResponse}
// @Router       /leases/{id}/payments [get]
func (h *Handler) ListByLease(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	leaseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid lease ID")
		return
	}

	payments, err := h.service.ListByLease(r.Context(), principal, leaseID)
	if err != nil {
		response.FromError(w, err, "Failed to list lease payments")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(payments))
}

// Verify handles POST /payments/{id}/verify
// @Summary      Verify a payment
// @Description  Approve (completed, receipt issued) or reject a pending payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id      path int                  true "Payment ID"
// @Param        request body VerifyPaymentRequest true "Decision"
// @Success      200 {object} response.APIResponse{data=PaymentResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /payments/{id}/verify [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	var req VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	p, err := h.service.Verify(r.Context(), principal, id, &req)
	if err != nil {
		response.FromError(w, err, "Failed to verify payment")
		return
	}

	response.JSON(w, http.StatusOK, p.ToResponse())
}

// Cancel handles POST /payments/{id}/cancel
// @Summary      Cancel a pending payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id      path int                  true "Payment ID"
// @Param        request body CancelPaymentRequest true "Reason"
// @Success      200 {object} response.APIResponse{data=PaymentResponse}
// @Router       /payments/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	var req CancelPaymentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	p, err := h.service.Cancel(r.Context(), principal, id, req.Reason)
	if err != nil {
		response.FromError(w, err, "Failed to cancel payment")
		return
	}

	response.JSON(w, http.StatusOK, p.ToResponse())
}

// UpdateNotes handles PATCH /payments/{id}/notes
// @Summary      Update payment notes
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id      path int                true "Payment ID"
// @Param        request body UpdateNotesRequest true "Notes"
// @Success      200 {object} response.APIResponse{data=PaymentResponse}
// @Router       /payments/{id}/notes [patch]
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	var req UpdateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	p, err := h.service.UpdateNotes(r.Context(), principal, id, req.Notes)
	if err != nil {
		response.FromError(w, err, "Failed to update payment notes")
		return
	}

	response.JSON(w, http.StatusOK, p.ToResponse())
}
