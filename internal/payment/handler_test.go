package payment_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/pkg/middleware"
	"github.com/nyumbahub/rentals/pkg/response"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *response.APIError `json:"error"`
}

// router mounts the payment routes the way the API does, including the
// per-lease listing that lives under /leases
func router(f *fixture) http.Handler {
	h := payment.NewHandler(f.svc)
	r := chi.NewRouter()
	r.Mount("/payments", h.Routes())
	r.Get("/leases/{id}/payments", h.ListByLease)
	return r
}

func serve(h http.Handler, method, path string, as directory.Principal, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
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

func rentBody(leaseID int64, amount, ref string) string {
	return fmt.Sprintf(`{"lease_id":%d,"amount":"%s","payment_method":"mpesa","transaction_reference":"%s"}`, leaseID, amount, ref)
}

func paymentPath(id int64, suffix string) string {
	return "/payments/" + strconv.FormatInt(id, 10) + suffix
}

func TestHandler_RecordAndApprove(t *testing.T) {
	f := newFixture(t)
	l := f.lease(t, 12, lease.StatusActive, true)
	h := router(f)

	rec := serve(h, http.MethodPost, "/payments", tenant, rentBody(l.ID, "800000", "QFT7Y2K1LM"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var submitted payment.PaymentResponse
	env := decode(t, rec, &submitted)
	assert.True(t, env.Success)
	assert.Equal(t, payment.StatusPending, submitted.Status)
	assert.True(t, submitted.PendingVerification)
	assert.Equal(t, payment.KindRent, submitted.Kind)
	assert.Equal(t, "800000.00", submitted.AmountPaid)
	assert.Equal(t, "2026-01-05", submitted.DueDate)
	assert.Equal(t, "QFT7Y2K1LM", submitted.TransactionReference)

	rec = serve(h, http.MethodGet, "/payments/pending-verification", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var awaiting []payment.PaymentResponse
	decode(t, rec, &awaiting)
	require.Len(t, awaiting, 1)
	assert.Equal(t, submitted.ID, awaiting[0].ID)

	rec = serve(h, http.MethodPost, paymentPath(submitted.ID, "/verify"), tenant, `{"approve":true}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec, nil).Error.Code)

	f.clock = time.Date(2026, time.January, 12, 8, 0, 0, 0, time.UTC)
	rec = serve(h, http.MethodPost, paymentPath(submitted.ID, "/verify"), owner, `{"approve":true,"notes":"Confirmed on statement"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done payment.PaymentResponse
	decode(t, rec, &done)
	assert.Equal(t, payment.StatusCompleted, done.Status)
	assert.False(t, done.PendingVerification)
	assert.Regexp(t, `^RCP-202601120800-\d{4}$`, done.ReceiptNumber)
	require.NotNil(t, done.VerifiedBy)
	assert.Equal(t, owner.UserID, *done.VerifiedBy)

	rec = serve(h, http.MethodPost, paymentPath(submitted.ID, "/verify"), owner, `{"approve":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, rec, nil).Error.Code)

	rec = serve(h, http.MethodPatch, paymentPath(submitted.ID, "/notes"), owner, `{"notes":"Receipt emailed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var noted payment.PaymentResponse
	decode(t, rec, &noted)
	assert.Equal(t, "Receipt emailed", noted.Notes)
	assert.Equal(t, payment.StatusCompleted, noted.Status)

	rec = serve(h, http.MethodPatch, paymentPath(submitted.ID, "/notes"), tenant, `{"notes":"mine"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_RejectReissuesRent(t *testing.T) {
	f := newFixture(t)
	l := f.lease(t, 12, lease.StatusActive, true)
	f.generate(t, date(2026, time.January, 1))
	h := router(f)

	rec := serve(h, http.MethodPost, "/payments", tenant, rentBody(l.ID, "800000", "QFT7Y2K1LM"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var submitted payment.PaymentResponse
	decode(t, rec, &submitted)

	rec = serve(h, http.MethodPost, paymentPath(submitted.ID, "/verify"), owner, `{"approve":false,"notes":"No such transaction"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rejected payment.PaymentResponse
	decode(t, rec, &rejected)
	assert.Equal(t, payment.StatusFailed, rejected.Status)
	assert.False(t, rejected.PendingVerification)
	assert.Empty(t, rejected.ReceiptNumber)

	rec = serve(h, http.MethodPost, paymentPath(submitted.ID, "/verify"), owner, `{"approve":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "a failed payment cannot be approved")

	rec = serve(h, http.MethodGet, "/payments/pending", tenant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []payment.PaymentResponse
	decode(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.NotEqual(t, submitted.ID, pending[0].ID)
	assert.Equal(t, "2026-01-05", pending[0].DueDate)
	assert.Equal(t, "800000.00", pending[0].Amount)
	assert.False(t, pending[0].PendingVerification)

	rec = serve(h, http.MethodGet, fmt.Sprintf("/leases/%d/payments", l.ID), owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []payment.PaymentResponse
	decode(t, rec, &history)
	require.Len(t, history, 2)
	statuses := []payment.Status{history[0].Status, history[1].Status}
	assert.ElementsMatch(t, []payment.Status{payment.StatusFailed, payment.StatusPending}, statuses)
}

func TestHandler_ShortPaymentReportsAmountPaid(t *testing.T) {
	f := newFixture(t, payment.MethodCash)
	l := f.lease(t, 12, lease.StatusActive, true)
	h := router(f)

	body := fmt.Sprintf(`{"lease_id":%d,"amount":"600000","payment_method":"cash"}`, l.ID)
	rec := serve(h, http.MethodPost, "/payments", owner, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var paid payment.PaymentResponse
	decode(t, rec, &paid)
	assert.Equal(t, payment.StatusCompleted, paid.Status)
	assert.Equal(t, "800000.00", paid.Amount)
	assert.Equal(t, "600000.00", paid.AmountPaid)

	rec = serve(h, http.MethodGet, "/payments/pending", tenant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []payment.PaymentResponse
	decode(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, payment.KindBalance, pending[0].Kind)
	assert.Equal(t, "200000.00", pending[0].Amount)

	balance := fmt.Sprintf(`{"lease_id":%d,"kind":"balance","amount":"200000","payment_method":"cash"}`, l.ID)
	rec = serve(h, http.MethodPost, "/payments", tenant, balance)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a balance needs payment_id")
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec, nil).Error.Code)
}

func TestHandler_BadInput(t *testing.T) {
	f := newFixture(t)
	l := f.lease(t, 12, lease.StatusActive, true)
	f.generate(t, date(2026, time.January, 1))
	h := router(f)

	tests := []struct {
		name   string
		method string
		path   string
		as     directory.Principal
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/payments", tenant, `{"lease_id":`, http.StatusBadRequest},
		{"unknown method", http.MethodPost, "/payments", tenant, fmt.Sprintf(`{"lease_id":%d,"amount":"1","payment_method":"barter"}`, l.ID), http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/payments", tenant, rentBody(l.ID, "0", "X"), http.StatusBadRequest},
		{"stranger", http.MethodPost, "/payments", directory.Principal{UserID: 55, Role: directory.RoleTenant}, rentBody(l.ID, "800000", "X"), http.StatusForbidden},
		{"bad payment id", http.MethodGet, "/payments/abc", owner, "", http.StatusBadRequest},
		{"unknown payment", http.MethodGet, "/payments/999", owner, "", http.StatusNotFound},
		{"bad lease id", http.MethodGet, "/leases/abc/payments", owner, "", http.StatusBadRequest},
		{"foreign lease history", http.MethodGet, fmt.Sprintf("/leases/%d/payments", l.ID), directory.Principal{UserID: 55, Role: directory.RoleOwner}, "", http.StatusForbidden},
		{"bad overdue date", http.MethodGet, "/payments/overdue?date=10-01-2026", owner, "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.False(t, decode(t, rec, nil).Success)
		})
	}
}

func TestHandler_OverdueAndCancel(t *testing.T) {
	f := newFixture(t)
	f.lease(t, 12, lease.StatusActive, true)
	f.generate(t, date(2026, time.January, 1))
	h := router(f)

	rec := serve(h, http.MethodGet, "/payments/overdue?date=2026-01-05", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var none []payment.PaymentResponse
	decode(t, rec, &none)
	assert.Empty(t, none, "not overdue on the due date itself")

	rec = serve(h, http.MethodGet, "/payments/overdue?date=2026-01-10", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var overdue []payment.PaymentResponse
	decode(t, rec, &overdue)
	require.Len(t, overdue, 1)

	// cancel takes an optional body
	rec = serve(h, http.MethodPost, paymentPath(overdue[0].ID, "/cancel"), owner, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled payment.PaymentResponse
	decode(t, rec, &cancelled)
	assert.Equal(t, payment.StatusCancelled, cancelled.Status)

	rec = serve(h, http.MethodPost, paymentPath(overdue[0].ID, "/cancel"), owner, `{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
