package lease

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/pkg/dates"
	"github.com/nyumbahub/rentals/pkg/middleware"
	"github.com/nyumbahub/rentals/pkg/response"
)

// Handler handles HTTP requests for lease operations
type Handler struct {
	service *Service
}

// NewHandler creates a new lease handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for lease endpoints. extra mounts routes owned by
// other features under the same router, such as /{id}/payments.
func (h *Handler) Routes(extra ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/expiring-soon", h.ExpiringSoon)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/activate", h.Activate)
	r.Post("/{id}/terminate", h.Terminate)
	r.Post("/{id}/renew", h.Renew)
	r.Post("/{id}/deposit", h.MarkDepositPaid)
	r.Get("/{id}/refund", h.RefundEligibility)

	for _, mount := range extra {
		mount(r)
	}
	return r
}

func principalOf(w http.ResponseWriter, r *http.Request) (directory.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
	}
	return p, ok
}

func leaseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid lease ID")
		return 0, false
	}
	return id, true
}

func toResponses(leases []*Lease) []*LeaseResponse {
	out := make([]*LeaseResponse, len(leases))
	for i, l := range leases {
		out[i] = l.ToResponse()
	}
	return out
}

// Create handles POST /leases
// @Summary      Create a lease
// @Description  Create a draft lease for a vacant unit
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        request body CreateLeaseRequest true "Lease"
// @Success      201 {object} response.APIResponse{data=LeaseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /leases [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	var req CreateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	l, err := h.service.Create(r.Context(), principal, &req)
	if err != nil {
		response.FromError(w, err, "Failed to create lease")
		return
	}

	response.JSON(w, http.StatusCreated, l.ToResponse())
}

// List handles GET /leases
// @Summary      List leases
// @Description  Tenants see their own leases, owners the leases of their units
// @Tags         leases
// @Produce      json
// @Param        status  query string false "Status filter"
// @Param        unit_id query int    false "Unit filter"
// @Success      200 {object} response.APIResponse{data=[]LeaseResponse}
// @Router       /leases [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	var f Filter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		s := Status(v)
		if !s.Valid() {
			response.BadRequest(w, "Invalid status")
			return
		}
		f.Statuses = []Status{s}
	}
	if v := q.Get("unit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(w, "Invalid unit ID")
			return
		}
		f.UnitID = id
	}

	leases, err := h.service.List(r.Context(), principal, f)
	if err != nil {
		response.FromError(w, err, "Failed to list leases")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(leases))
}

// ExpiringSoon handles GET /leases/expiring-soon
// @Summary      List leases expiring soon
// @Tags         leases
// @Produce      json
// @Param        days query int false "Horizon in days (default 30)"
// @Success      200 {object} response.APIResponse{data=[]LeaseResponse}
// @Router       /leases/expiring-soon [get]
func (h *Handler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(w, "days must be a positive integer")
			return
		}
		days = n
	}

	leases, err := h.service.ExpiringSoon(r.Context(), principal, days)
	if err != nil {
		response.FromError(w, err, "Failed to list expiring leases")
		return
	}

	response.JSON(w, http.StatusOK, toResponses(leases))
}

// GetByID handles GET /leases/{id}
// @Summary      Get a lease
// @Tags         leases
// @Produce      json
// @Param        id path int true "Lease ID"
// @Success      200 {object} response.APIResponse{data=LeaseResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /leases/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	l, err := h.service.GetByID(r.Context(), principal, id)
	if err != nil {
		response.FromError(w, err, "Failed to get lease")
		return
	}

	response.JSON(w, http.StatusOK, l.ToResponse())
}

// Activate handles POST /leases/{id}/activate
// @Summary      Activate a lease
// @Description  Move a draft lease to active. The deposit must be paid unless an admin overrides.
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        id      path int                  true  "Lease ID"
// @Param        request body ActivateLeaseRequest false "Options"
// @Success      200 {object} response.APIResponse{data=LeaseResponse}
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /leases/{id}/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	var req ActivateLeaseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	l, err := h.service.Activate(r.Context(), principal, id, req.Override)
	if err != nil {
		response.FromError(w, err, "Failed to activate lease")
		return
	}

	response.JSON(w, http.StatusOK, l.ToResponse())
}

// Terminate handles POST /leases/{id}/terminate
// @Summary      Terminate a lease
// @Description  End a draft or active lease early and report the refundable deposit
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        id      path int                   true "Lease ID"
// @Param        request body TerminateLeaseRequest true "Termination"
// @Success      200 {object} response.APIResponse{data=TerminationResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /leases/{id}/terminate [post]
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	var req TerminateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	t, err := h.service.Terminate(r.Context(), principal, id, &req)
	if err != nil {
		response.FromError(w, err, "Failed to terminate lease")
		return
	}

	response.JSON(w, http.StatusOK, &TerminationResponse{
		Lease:             t.Lease.ToResponse(),
		Refund:            t.Refund.ToResponse(),
		CancelledPayments: t.CancelledPayments,
	})
}

// Renew handles POST /leases/{id}/renew
// @Summary      Renew a lease
// @Description  Supersede an active lease with a new term for the same tenant and unit
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        id      path int               true "Lease ID"
// @Param        request body RenewLeaseRequest true "Renewal"
// @Success      201 {object} response.APIResponse{data=LeaseResponse}
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /leases/{id}/renew [post]
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	var req RenewLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	l, err := h.service.Renew(r.Context(), principal, id, &req)
	if err != nil {
		response.FromError(w, err, "Failed to renew lease")
		return
	}

	response.JSON(w, http.StatusCreated, l.ToResponse())
}

// MarkDepositPaid handles POST /leases/{id}/deposit
// @Summary      Record the deposit
// @Tags         leases
// @Accept       json
// @Produce      json
// @Param        id      path int            true  "Lease ID"
// @Param        request body DepositRequest false "Deposit"
// @Success      200 {object} response.APIResponse{data=LeaseResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /leases/{id}/deposit [post]
func (h *Handler) MarkDepositPaid(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	var req DepositRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}
	paidOn := h.service.Today()
	if req.PaidOn != "" {
		d, err := dates.Parse(req.PaidOn)
		if err != nil {
			response.BadRequest(w, "paid_on must be YYYY-MM-DD")
			return
		}
		paidOn = d
	}

	l, err := h.service.MarkDepositPaid(r.Context(), principal, id, paidOn)
	if err != nil {
		response.FromError(w, err, "Failed to record deposit")
		return
	}

	response.JSON(w, http.StatusOK, l.ToResponse())
}

// RefundEligibility handles GET /leases/{id}/refund
// @Summary      Deposit refund eligibility
// @Description  Deposit minus outstanding late fees and damages, never below zero
// @Tags         leases
// @Produce      json
// @Param        id      path  int    true  "Lease ID"
// @Param        damages query string false "Damages to deduct"
// @Success      200 {object} response.APIResponse{data=RefundResponse}
// @Router       /leases/{id}/refund [get]
func (h *Handler) RefundEligibility(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := leaseID(w, r)
	if !ok {
		return
	}

	damages := decimal.Zero
	if v := r.URL.Query().Get("damages"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			response.BadRequest(w, "damages must be a number")
			return
		}
		damages = d
	}

	refund, err := h.service.RefundEligibility(r.Context(), principal, id, damages)
	if err != nil {
		response.FromError(w, err, "Failed to compute refund eligibility")
		return
	}

	response.JSON(w, http.StatusOK, refund.ToResponse())
}
