package lease_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/internal/billing"
	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/pkg/middleware"
	"github.com/nyumbahub/rentals/pkg/response"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *response.APIError `json:"error"`
}

// serve sends body (raw when it is a string) as the given caller
func serve(h http.Handler, method, path string, as directory.Principal, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User-ID", strconv.FormatInt(as.UserID, 10))
	req.Header.Set("X-Test-User-Role", string(as.Role))
	rec := httptest.NewRecorder()
	middleware.TestUserMiddleware(h).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func path(id int64, suffix string) string {
	return "/" + strconv.FormatInt(id, 10) + suffix
}

func TestHandler_CreateAndGet(t *testing.T) {
	f := newFixture(t, lease.Policy{})
	h := lease.NewHandler(f.svc).Routes()

	rec := serve(h, http.MethodPost, "/", owner, createRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created lease.LeaseResponse
	env := decode(t, rec, &created)
	assert.True(t, env.Success)
	assert.Equal(t, lease.StatusDraft, created.Status)
	assert.Equal(t, "800000.00", created.RentAmount)
	assert.Equal(t, "2026-01-01", created.StartDate)

	rec = serve(h, http.MethodGet, path(created.ID, ""), tenant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got lease.LeaseResponse
	decode(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)

	t.Run("second lease on the unit", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/", owner, createRequest())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "PRECONDITION_FAILED", decode(t, rec, nil).Error.Code)
	})

	t.Run("tenant cannot create", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/", tenant, createRequest())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/", owner, `{"tenant_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", decode(t, rec, nil).Error.Code)
	})

	t.Run("invalid dates", func(t *testing.T) {
		req := createRequest()
		req.UnitID = 13
		req.EndDate = "31/12/2026"
		rec := serve(h, http.MethodPost, "/", owner, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, rec, nil).Error.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/abc", owner, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown lease", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/999", admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decode(t, rec, nil).Error.Code)
	})

	t.Run("stranger cannot view", func(t *testing.T) {
		stranger := directory.Principal{UserID: 55, Role: directory.RoleTenant}
		rec := serve(h, http.MethodGet, path(created.ID, ""), stranger, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandler_List(t *testing.T) {
	f := newFixture(t, lease.Policy{})
	f.seed(t, lease.StatusActive, date(2026, time.January, 1), date(2026, time.December, 31))
	h := lease.NewHandler(f.svc).Routes()

	rec := serve(h, http.MethodGet, "/?status=active", tenant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var leases []lease.LeaseResponse
	decode(t, rec, &leases)
	assert.Len(t, leases, 1)

	rec = serve(h, http.MethodGet, "/?status=archived", tenant, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/expiring-soon?days=0", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ActivateOverride(t *testing.T) {
	f := newFixture(t, lease.Policy{})
	l, err := f.svc.Create(context.Background(), owner, createRequest())
	require.NoError(t, err)
	h := lease.NewHandler(f.svc).Routes()

	// no body: deposit still unpaid
	rec := serve(h, http.MethodPost, path(l.ID, "/activate"), owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "PRECONDITION_FAILED", decode(t, rec, nil).Error.Code)

	rec = serve(h, http.MethodPost, path(l.ID, "/activate"), owner, lease.ActivateLeaseRequest{Override: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec, nil).Error.Code)

	rec = serve(h, http.MethodPost, path(l.ID, "/activate"), admin, lease.ActivateLeaseRequest{Override: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var active lease.LeaseResponse
	decode(t, rec, &active)
	assert.Equal(t, lease.StatusActive, active.Status)

	rec = serve(h, http.MethodPost, path(l.ID, "/activate"), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, rec, nil).Error.Code)
}

func TestHandler_TerminateDecodesDamages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, lease.Policy{})
	l := f.seed(t, lease.StatusActive, date(2026, time.January, 1), date(2026, time.December, 31))
	for _, m := range []time.Month{time.January, time.February, time.March} {
		_, err := f.generator.Run(ctx, date(2026, m, 1), billing.Options{})
		require.NoError(t, err)
	}
	f.clock = time.Date(2026, time.February, 20, 9, 0, 0, 0, time.UTC)
	h := lease.NewHandler(f.svc).Routes()

	rec := serve(h, http.MethodPost, path(l.ID, "/terminate"), tenant, `{"reason":"moving"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, http.MethodPost, path(l.ID, "/terminate"), owner, `{"reason":"x","damages":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec, nil).Error.Code)

	rec = serve(h, http.MethodPost, path(l.ID, "/terminate"), owner, `{"reason":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"termination_date":"2026-02-28","reason":"Tenant relocating","damages":"100000"}`
	rec = serve(h, http.MethodPost, path(l.ID, "/terminate"), owner, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out lease.TerminationResponse
	decode(t, rec, &out)
	assert.Equal(t, lease.StatusTerminated, out.Lease.Status)
	assert.Equal(t, "2026-02-28", out.Lease.TerminationDate)
	assert.Equal(t, "Tenant relocating", out.Lease.TerminationReason)
	assert.Equal(t, "100000.00", out.Refund.Damages)
	assert.Equal(t, "10000.00", out.Refund.OutstandingLateFees)
	assert.Equal(t, "1490000.00", out.Refund.Eligible)
	assert.Equal(t, 1, out.CancelledPayments)

	rec = serve(h, http.MethodPost, path(l.ID, "/terminate"), owner, `{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, rec, nil).Error.Code)
}

func TestHandler_RenewDecodesNewRent(t *testing.T) {
	f := newFixture(t, lease.Policy{RenewalWindowDays: 60})
	l := f.seed(t, lease.StatusActive, date(2026, time.January, 1), date(2026, time.December, 31))
	h := lease.NewHandler(f.svc).Routes()

	rec := serve(h, http.MethodPost, path(l.ID, "/renew"), owner, `{"new_end_date":"2027-12-31"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "outside the renewal window")

	f.clock = time.Date(2026, time.December, 1, 9, 0, 0, 0, time.UTC)
	rec = serve(h, http.MethodPost, path(l.ID, "/renew"), owner, `{"new_end_date":"2027-12-31","new_rent_amount":"850000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var next lease.LeaseResponse
	decode(t, rec, &next)
	assert.Equal(t, "850000.00", next.RentAmount)
	assert.Equal(t, "2027-01-01", next.StartDate)
	require.NotNil(t, next.RenewedFromID)
	assert.Equal(t, l.ID, *next.RenewedFromID)

	rec = serve(h, http.MethodPost, path(l.ID, "/renew"), owner, `{"new_end_date":"2028-12-31"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "the source is already renewed")
}

func TestHandler_DepositAndRefund(t *testing.T) {
	f := newFixture(t, lease.Policy{})
	l, err := f.svc.Create(context.Background(), owner, createRequest())
	require.NoError(t, err)
	h := lease.NewHandler(f.svc).Routes()

	rec := serve(h, http.MethodPost, path(l.ID, "/deposit"), owner, `{"paid_on":"01-01-2026"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, path(l.ID, "/deposit"), owner, lease.DepositRequest{PaidOn: "2026-01-02"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid lease.LeaseResponse
	decode(t, rec, &paid)
	assert.True(t, paid.DepositPaid)
	assert.Equal(t, "2026-01-02", paid.DepositPaidDate)

	rec = serve(h, http.MethodGet, path(l.ID, "/refund?damages=200000"), tenant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refund lease.RefundResponse
	decode(t, rec, &refund)
	assert.Equal(t, "1600000.00", refund.DepositAmount)
	assert.Equal(t, "200000.00", refund.Damages)
	assert.Equal(t, "1400000.00", refund.Eligible)

	rec = serve(h, http.MethodGet, path(l.ID, "/refund?damages=lots"), tenant, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ExtraRoutes(t *testing.T) {
	f := newFixture(t, lease.Policy{})
	h := lease.NewHandler(f.svc).Routes(func(r chi.Router) {
		r.Get("/{id}/payments", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, http.StatusOK, "payments of lease "+chi.URLParam(r, "id"))
		})
	})

	rec := serve(h, http.MethodGet, "/42/payments", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "payments of lease 42"))
}
