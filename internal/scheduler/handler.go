package scheduler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/pkg/dates"
	"github.com/nyumbahub/rentals/pkg/middleware"
	"github.com/nyumbahub/rentals/pkg/response"
)

// GenerateRentRequest selects the month to bill. Zero values mean the
// current month.
type GenerateRentRequest struct {
	Month  int  `json:"month" example:"3"`
	Year   int  `json:"year" example:"2026"`
	DryRun bool `json:"dry_run"`
}

// ReconcileRequest selects the evaluation date. Empty means today.
type ReconcileRequest struct {
	Date   string `json:"date" example:"2026-03-10"`
	DryRun bool   `json:"dry_run"`
}

// Handler exposes manual job runs
type Handler struct {
	jobs *Jobs
}

// NewHandler creates a new jobs handler
func NewHandler(jobs *Jobs) *Handler {
	return &Handler{jobs: jobs}
}

// Routes returns the router for job endpoints. Only admins may run jobs.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireRole(directory.RoleAdmin))

	r.Post("/generate-rent", h.GenerateRent)
	r.Post("/reconcile", h.Reconcile)

	return r
}

func decodeOptional(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// GenerateRent handles POST /jobs/generate-rent
// @Summary      Generate rent obligations
// @Description  Create the pending rent payment for every billable lease in a month. Safe to repeat.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body GenerateRentRequest false "Period"
// @Success      200 {object} response.APIResponse{data=billing.Summary}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /jobs/generate-rent [post]
func (h *Handler) GenerateRent(w http.ResponseWriter, r *http.Request) {
	var req GenerateRentRequest
	if err := decodeOptional(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	eval := h.jobs.Today()
	if req.Month != 0 || req.Year != 0 {
		if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
			response.BadRequest(w, "month must be 1-12 and year must be given")
			return
		}
		eval = time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	}

	summary, err := h.jobs.GenerateRent(r.Context(), eval, req.DryRun)
	if err != nil {
		response.FromError(w, err, "Failed to generate rent")
		return
	}

	response.JSON(w, http.StatusOK, summary)
}

// Reconcile handles POST /jobs/reconcile
// @Summary      Run reconciliation
// @Description  Expire and activate leases, accrue late fees and send reminders as of a date. Safe to repeat.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body ReconcileRequest false "Evaluation date"
// @Success      200 {object} response.APIResponse{data=reconcile.Summary}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /jobs/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := decodeOptional(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	eval := h.jobs.Today()
	if req.Date != "" {
		d, err := dates.Parse(req.Date)
		if err != nil {
			response.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		eval = d
	}

	summary, err := h.jobs.Reconcile(r.Context(), eval, req.DryRun)
	if err != nil {
		response.FromError(w, err, "Failed to run reconciliation")
		return
	}

	response.JSON(w, http.StatusOK, summary)
}
